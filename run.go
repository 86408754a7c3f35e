package webservtester

import (
	"context"
	"fmt"
	"time"

	"github.com/Simonization/webservTester/internal/evaluate"
	"github.com/Simonization/webservTester/internal/metric"
	"github.com/Simonization/webservTester/internal/model"
)

// runSection executes one section, recovers from panics and guarantees
// teardown of everything the section acquired.
func (s *Tester) runSection(ctx context.Context, sec Section) model.SectionRun {
	start := time.Now()

	severity := sec.Severity
	if severity == "" {
		severity = evaluate.SeverityOf(sec.Name)
	}

	sr := model.SectionRun{
		Name:     sec.Name,
		Severity: severity,
		Outcome:  model.OutcomePending,
		Start:    start,
	}

	running := metric.SectionsRunning.WithLabelValues(sec.Name)

	running.Inc()
	defer running.Dec()

	s.log.Info("section started", "section", sec.Name)

	c := &Check{
		section: sec.Name,
		s:       s,
		ctx:     ctx,
	}

	func() {
		defer func() {
			rec := recover()

			switch rec.(type) {
			case nil, failSectionErr, skipSectionErr:
			default:
				// a panic that does not originate from the harness
				c.Logf("%v", rec)
				c.Fail()
			}
		}()

		sec.Run(c)
	}()

	c.teardown()

	sr.Probes = c.probes
	sr.Logs = c.logs.String()
	sr.Outcome = c.outcome()
	sr.End = time.Now()
	sr.DurationInMS = sr.End.Sub(sr.Start).Milliseconds()

	s.log.Info("section finished", "section", sec.Name, "outcome", sr.Outcome,
		"duration", fmt.Sprintf("%dms", sr.DurationInMS))

	return sr
}
