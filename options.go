package webservtester

import "github.com/Simonization/webservTester/internal/config"

// WithScheduledRun triggers a conformance run at certain intervals.
// Ignored in CLI mode.
func WithScheduledRun(sr ScheduledRun) option {
	return func(s *Tester) {
		s.schedules = append(s.schedules, sr)
	}
}

// WithSection replaces the builtin catalog on first use and appends the
// given section.
func WithSection(sec Section) option {
	return func(s *Tester) {
		if !s.customSections {
			s.sections = nil
			s.customSections = true
		}
		s.sections = append(s.sections, sec)
	}
}

func WithHook(h Hook) option {
	return func(s *Tester) {
		if s.hooks == nil {
			s.hooks = newHookManager(s.asyncHookCallback, s.log)
		}
		s.hooks.all = append(s.hooks.all, h)
	}
}

func WithConfig(cfg *config.Config) option {
	return func(s *Tester) {
		s.cfg = cfg
	}
}

// WithHTTPClient overrides the probe transport, e.g. with a fake in tests.
func WithHTTPClient(c HTTPClient) option {
	return func(s *Tester) {
		s.httpClient = c
	}
}

func WithRawClient(c RawClient) option {
	return func(s *Tester) {
		s.rawClient = c
	}
}

func WithLoadGenerator(g LoadGenerator) option {
	return func(s *Tester) {
		s.loadGen = g
	}
}

func WithInspector(i ProcessInspector) option {
	return func(s *Tester) {
		s.inspector = i
	}
}
