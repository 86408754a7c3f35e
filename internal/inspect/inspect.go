// Package inspect observes SUT processes from the outside: memory usage,
// lingering connections and the I/O readiness mechanism in use. All
// observations are read-only and best-effort; where the platform lacks the
// capability, calls return a model.InspectionUnavailableError so callers can
// degrade to an inconclusive outcome instead of failing.
package inspect

import (
	"context"
	"time"

	"github.com/Simonization/webservTester/internal/model"
)

// ProcessInspector is the platform capability for process-level observation.
type ProcessInspector interface {
	// ClassifyIOStrategy samples the syscalls the process is blocked in
	// over the given window and names the readiness mechanism observed.
	ClassifyIOStrategy(ctx context.Context, pid int, window time.Duration) (model.IOStrategy, error)

	// SampleMemory returns the process's resident set size in bytes.
	// Callable repeatedly to compute growth over a session.
	SampleMemory(pid int) (uint64, error)

	// CountEstablishedConnections counts established TCP connections whose
	// local port matches the given listening port.
	CountEstablishedConnections(port int) (int, error)
}

// unavailable is the ProcessInspector handed out on platforms (or procfs
// states) where no introspection is possible. Every call reports the same
// explicit unsupported result.
type unavailable struct {
	reason string
}

func (u unavailable) err() error {
	return model.InspectionUnavailableError{Reason: u.reason}
}

func (u unavailable) ClassifyIOStrategy(context.Context, int, time.Duration) (model.IOStrategy, error) {
	return model.IOStrategyUnknown, u.err()
}

func (u unavailable) SampleMemory(int) (uint64, error) {
	return 0, u.err()
}

func (u unavailable) CountEstablishedConnections(int) (int, error) {
	return 0, u.err()
}
