package webservtester

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Simonization/webservTester/internal/model"
)

type Hook interface {
	Name() string
	Init() error
}

type RunFinishedListener interface {
	Hook
	RunFinished(report model.Report)
}

type AsyncRunFinishedListener interface {
	Hook
	RunFinishedAsync(report model.Report, callback func(context map[string]any))
}

// AsyncHookCallback allows async hooks to add additional context to a run.
type AsyncHookCallback func(context map[string]any)

type hookManager struct {
	all              []Hook
	runFinished      []RunFinishedListener
	runFinishedAsync []AsyncRunFinishedListener

	asyncCallback asyncHookCallback

	asyncHooksRunning sync.WaitGroup

	log *slog.Logger
}

type asyncHookCallback func(h Hook, context map[string]any)

func newHookManager(callback asyncHookCallback, log *slog.Logger) *hookManager {
	return &hookManager{
		all:              []Hook{},
		runFinished:      []RunFinishedListener{},
		runFinishedAsync: []AsyncRunFinishedListener{},

		asyncCallback: callback,
		log:           log,
	}
}

func (m *hookManager) init() error {
	for _, h := range m.all {
		if err := h.Init(); err != nil {
			return fmt.Errorf("initiating hook %q: %w", h.Name(), err)
		}

		registeredHook := false

		if l, ok := h.(RunFinishedListener); ok {
			m.runFinished = append(m.runFinished, l)
			registeredHook = true
		}
		if l, ok := h.(AsyncRunFinishedListener); ok {
			m.runFinishedAsync = append(m.runFinishedAsync, l)
			registeredHook = true
		}

		if !registeredHook {
			return fmt.Errorf("hook %q does not implement any listener", h.Name())
		}
	}

	return nil
}

// shutdown returns a context that is canceled once all async hooks have
// finished.
func (m *hookManager) shutdown() context.Context {
	cancelCtx, cancel := context.WithCancel(context.Background())

	go func() {
		m.asyncHooksRunning.Wait()
		cancel()
	}()

	return cancelCtx
}

func (m *hookManager) notifyRunFinished(report model.Report) {
	for _, h := range m.runFinished {
		h.RunFinished(report)
	}
}

func (m *hookManager) notifyRunFinishedAsync(report model.Report) {
	for _, h := range m.runFinishedAsync {
		m.asyncHooksRunning.Add(1)

		hook := h
		go func() {
			defer m.asyncHooksRunning.Done()
			hook.RunFinishedAsync(report, m.newAsyncHookCallback(hook))
		}()
	}
}

func (m *hookManager) newAsyncHookCallback(h Hook) AsyncHookCallback {
	return func(c map[string]any) {
		m.asyncCallback(h, c)
	}
}
