//go:build !linux

package inspect

import (
	"log/slog"
	"runtime"
)

func New(_ *slog.Logger) ProcessInspector {
	return unavailable{reason: "not supported on " + runtime.GOOS}
}
