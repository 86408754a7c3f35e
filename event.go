package webservtester

import (
	"time"

	"github.com/Simonization/webservTester/internal/evaluate"
	"github.com/Simonization/webservTester/internal/model"
)

type event interface {
	Apply(model.Report) model.Report
	RunID() int
}

type runIdentifier struct {
	runID int
}

func (e runIdentifier) RunID() int {
	return e.runID
}

type runStartedEvent struct {
	runIdentifier
	sutBinary   string
	scheduled   time.Time
	triggeredBy string
}

func (e runStartedEvent) Apply(r model.Report) model.Report {
	r.ID = e.runID
	r.SUTBinary = e.sutBinary
	r.Verdict = model.VerdictPending
	r.TriggeredBy = e.triggeredBy
	r.Scheduled = e.scheduled
	r.Sections = []model.SectionRun{}

	return r
}

type sectionFinishedEvent struct {
	runIdentifier
	section model.SectionRun
}

func (e sectionFinishedEvent) Apply(r model.Report) model.Report {
	r.Sections = append(r.Sections, e.section)

	return r
}

type runFinishedEvent struct {
	runIdentifier
	start time.Time
	end   time.Time
}

func (e runFinishedEvent) Apply(r model.Report) model.Report {
	r.Start = e.start
	r.End = e.end

	return evaluate.Summarize(r)
}
