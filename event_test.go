package webservtester

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simonization/webservTester/internal/model"
)

func TestRunStartedEventApply(t *testing.T) {
	now := time.Now()

	e := runStartedEvent{
		runIdentifier: runIdentifier{runID: 3},
		sutBinary:     "./webserv",
		scheduled:     now,
		triggeredBy:   "api",
	}

	r := e.Apply(model.Report{})

	assert.Equal(t, 3, r.ID)
	assert.Equal(t, "./webserv", r.SUTBinary)
	assert.Equal(t, model.VerdictPending, r.Verdict)
	assert.Equal(t, "api", r.TriggeredBy)
	assert.Equal(t, now, r.Scheduled)
	assert.NotNil(t, r.Sections)
	assert.False(t, r.Finished())
}

func TestSectionFinishedEventApply(t *testing.T) {
	r := model.Report{ID: 3, Sections: []model.SectionRun{}}

	r = sectionFinishedEvent{runIdentifier{3}, model.SectionRun{
		Name:    "Basic Checks",
		Outcome: model.OutcomePassed,
	}}.Apply(r)

	require.Len(t, r.Sections, 1)
	assert.Equal(t, "Basic Checks", r.Sections[0].Name)
}

func TestRunFinishedEventApplySummarizes(t *testing.T) {
	start := time.Now()
	end := start.Add(time.Second)

	r := model.Report{
		ID: 3,
		Sections: []model.SectionRun{
			{Name: "a", Severity: model.SeverityMinor, Outcome: model.OutcomePassed},
			{Name: "b", Severity: model.SeverityMinor, Outcome: model.OutcomeFailed},
		},
	}

	r = runFinishedEvent{runIdentifier: runIdentifier{3}, start: start, end: end}.Apply(r)

	assert.True(t, r.Finished())
	assert.Equal(t, model.VerdictNeedsWork, r.Verdict)
	assert.Equal(t, float64(50), r.Score)
	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, int64(1000), r.DurationInMS)
}
