// Package sut owns the lifecycle of server-under-test processes: launch,
// readiness, liveness and guaranteed termination.
package sut

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Simonization/webservTester/internal/model"
)

// State is the liveness state of an instance.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateTerminating
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateTerminating:
		return "terminating"
	case StateExited:
		return "exited"
	}
	return "unknown"
}

// ErrForcedKill reports that an instance ignored the graceful termination
// signal and had to be killed. The owning section treats this as a
// graceful-shutdown violation.
var ErrForcedKill = errors.New("instance did not exit in time and was killed")

// Manager starts and stops SUT processes. The binary is invoked with the
// fixture path as its sole positional argument.
type Manager struct {
	binary      string
	settle      time.Duration
	stopTimeout time.Duration

	log *slog.Logger
}

func NewManager(binary string, settle, stopTimeout time.Duration, log *slog.Logger) *Manager {
	return &Manager{
		binary:      binary,
		settle:      settle,
		stopTimeout: stopTimeout,
		log:         log,
	}
}

// Instance is one running SUT process bound to a fixture.
type Instance struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	state atomic.Int32

	// waitDone is closed once the process has been reaped.
	waitDone chan struct{}
	waitErr  error

	stopOnce sync.Once
	stopErr  error

	outMu  sync.Mutex
	output bytes.Buffer
}

func (i *Instance) PID() int             { return i.pid }
func (i *Instance) StartedAt() time.Time { return i.startedAt }
func (i *Instance) State() State         { return State(i.state.Load()) }

// Alive reports whether the process has not yet been reaped.
func (i *Instance) Alive() bool {
	select {
	case <-i.waitDone:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code once the process has exited, -1 before.
func (i *Instance) ExitCode() int {
	select {
	case <-i.waitDone:
	default:
		return -1
	}

	if i.waitErr == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(i.waitErr, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

// Output returns the combined stdout/stderr captured so far.
func (i *Instance) Output() string {
	i.outMu.Lock()
	defer i.outMu.Unlock()
	return i.output.String()
}

type lockedBuffer struct {
	i *Instance
}

func (w lockedBuffer) Write(p []byte) (int, error) {
	w.i.outMu.Lock()
	defer w.i.outMu.Unlock()
	return w.i.output.Write(p)
}

// Start launches the binary with the given fixture path and waits the settle
// interval. A process exiting within the settle window yields a
// StartupFailureError carrying the exit code; this is the success condition
// for invalid-fixture tests and must never be conflated with a crash during
// normal operation.
func (m *Manager) Start(ctx context.Context, fixturePath string) (*Instance, error) {
	cmd := exec.Command(m.binary, fixturePath)

	inst := &Instance{
		cmd:       cmd,
		startedAt: time.Now(),
		waitDone:  make(chan struct{}),
	}
	cmd.Stdout = lockedBuffer{inst}
	cmd.Stderr = lockedBuffer{inst}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launching %s: %w", m.binary, err)
	}

	inst.pid = cmd.Process.Pid
	inst.state.Store(int32(StateStarting))

	go func() {
		inst.waitErr = cmd.Wait()
		inst.state.Store(int32(StateExited))
		close(inst.waitDone)
	}()

	m.log.Debug("instance launched", "pid", inst.pid, "fixture", fixturePath)

	settle := time.NewTimer(m.settle)
	defer settle.Stop()

	select {
	case <-inst.waitDone:
		return nil, model.StartupFailureError{
			ExitCode: inst.ExitCode(),
			Output:   inst.Output(),
		}
	case <-ctx.Done():
		// interrupted while settling: make sure the process is gone
		_ = m.Stop(inst)
		return nil, ctx.Err()
	case <-settle.C:
	}

	inst.state.Store(int32(StateReady))
	m.log.Debug("instance ready", "pid", inst.pid)

	return inst, nil
}

// Stop terminates an instance: graceful signal, bounded wait, then kill.
// It is idempotent and safe to call on an already-exited instance.
func (m *Manager) Stop(inst *Instance) error {
	if inst == nil {
		return nil
	}

	inst.stopOnce.Do(func() {
		inst.stopErr = m.stop(inst)
	})

	return inst.stopErr
}

func (m *Manager) stop(inst *Instance) error {
	if !inst.Alive() {
		return nil
	}

	inst.state.Store(int32(StateTerminating))

	if err := inst.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// process may have exited between the liveness check and the signal
		if inst.Alive() {
			return fmt.Errorf("signaling instance %d: %w", inst.pid, err)
		}
		return nil
	}

	select {
	case <-inst.waitDone:
		m.log.Debug("instance stopped", "pid", inst.pid)
		return nil
	case <-time.After(m.stopTimeout):
	}

	if err := inst.cmd.Process.Kill(); err != nil && inst.Alive() {
		return fmt.Errorf("killing instance %d: %w", inst.pid, err)
	}

	<-inst.waitDone
	m.log.Warn("instance killed after stop timeout", "pid", inst.pid)

	return ErrForcedKill
}

// AwaitExit blocks until the instance exits or the timeout elapses.
func (m *Manager) AwaitExit(inst *Instance, timeout time.Duration) bool {
	select {
	case <-inst.waitDone:
		return true
	case <-time.After(timeout):
		return false
	}
}

// AwaitPortRelease waits, bounded by the context, until the given endpoint is
// bindable again. Sequential sections reuse ports; starting a new instance
// before the old port is released would produce false "bind failed" results.
func (m *Manager) AwaitPortRelease(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	for {
		l, err := net.Listen("tcp", addr)
		if err == nil {
			l.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("port %s not released: %w", addr, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}
