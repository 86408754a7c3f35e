package webservtester

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simonization/webservTester/internal/model"
)

// fakeHTTPClient serves canned results keyed by URL; unknown URLs get a 200.
type fakeHTTPClient struct {
	responses map[string]model.ProbeResult
}

func (f *fakeHTTPClient) Do(ctx context.Context, p model.Probe) (*model.ProbeResult, error) {
	if res, ok := f.responses[p.URL]; ok {
		return &res, nil
	}

	return &model.ProbeResult{StatusCode: http.StatusOK}, nil
}

func passingSection(name string, sev model.Severity) Section {
	return Section{
		Name:     name,
		Severity: sev,
		Run: func(c *Check) {
			c.Record("check", model.OutcomePassed, "")
		},
	}
}

func failingSection(name string, sev model.Severity) Section {
	return Section{
		Name:     name,
		Severity: sev,
		Run: func(c *Check) {
			c.Record("check", model.OutcomeFailed, "broken")
		},
	}
}

func TestRunOnceMandatoryFailureForcesHardFail(t *testing.T) {
	tester := New(
		WithSection(passingSection("alpha", model.SeverityMinor)),
		WithSection(failingSection("gate", model.SeverityMandatory)),
		WithSection(passingSection("beta", model.SeverityMinor)),
	)

	report, err := tester.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.VerdictHardFail, report.Verdict)
	assert.Equal(t, float64(0), report.Score)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 1, report.Failed)

	gate, ok := report.SectionByName("gate")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeFailed, gate.Outcome)
	assert.Equal(t, "GRADE = 0", gate.GradeImpact)
}

func TestRunOnceAllPassing(t *testing.T) {
	tester := New(
		WithSection(passingSection("alpha", model.SeverityMandatory)),
		WithSection(passingSection("beta", model.SeverityMinor)),
	)

	report, err := tester.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.VerdictExcellent, report.Verdict)
	assert.Equal(t, float64(100), report.Score)
	assert.Equal(t, 2, report.Passed)
	assert.True(t, report.Finished())
	assert.Equal(t, 1, report.ID)
	assert.Equal(t, "cli", report.TriggeredBy)
}

func TestRunOnceInconclusiveExcludedFromScore(t *testing.T) {
	tester := New(
		WithSection(passingSection("alpha", model.SeverityMinor)),
		WithSection(Section{
			Name:     "skipped",
			Severity: model.SeverityMinor,
			Run: func(c *Check) {
				c.Inconclusive("capability unavailable")
				t.Error("code after Inconclusive must not run")
			},
		}),
	)

	report, err := tester.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.VerdictExcellent, report.Verdict)
	assert.Equal(t, float64(100), report.Score)
	assert.Equal(t, 1, report.Skipped)

	skipped, ok := report.SectionByName("skipped")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeInconclusive, skipped.Outcome)
	assert.Equal(t, "N/A", skipped.GradeImpact)
	assert.Contains(t, skipped.Logs, "capability unavailable")
}

func TestRunOncePanicFailsSectionAndRunContinues(t *testing.T) {
	tester := New(
		WithSection(Section{
			Name:     "panicky",
			Severity: model.SeverityMinor,
			Run: func(c *Check) {
				panic("boom")
			},
		}),
		WithSection(passingSection("after", model.SeverityMinor)),
	)

	report, err := tester.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Sections, 2)

	panicky, ok := report.SectionByName("panicky")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeFailed, panicky.Outcome)
	assert.Contains(t, panicky.Logs, "boom")

	after, ok := report.SectionByName("after")
	require.True(t, ok)
	assert.Equal(t, model.OutcomePassed, after.Outcome)
}

func TestRunOnceFatalfEndsSection(t *testing.T) {
	tester := New(
		WithSection(Section{
			Name:     "fatal",
			Severity: model.SeverityMinor,
			Run: func(c *Check) {
				c.Fatalf("cannot continue: %s", "reason")
				t.Error("code after Fatalf must not run")
			},
		}),
	)

	report, err := tester.RunOnce(context.Background())
	require.NoError(t, err)

	fatal, ok := report.SectionByName("fatal")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeFailed, fatal.Outcome)
	assert.Contains(t, fatal.Logs, "cannot continue: reason")
}

func TestRunOnceProbesThroughInjectedClient(t *testing.T) {
	fake := &fakeHTTPClient{responses: map[string]model.ProbeResult{
		"http://sut/ok":      {StatusCode: http.StatusOK, Body: "hello"},
		"http://sut/missing": {StatusCode: http.StatusNotFound},
	}}

	tester := New(
		WithHTTPClient(fake),
		WithSection(Section{
			Name:     "probing",
			Severity: model.SeverityMajor,
			Run: func(c *Check) {
				c.Probe(model.Probe{
					Name:   "ok",
					Method: http.MethodGet,
					URL:    "http://sut/ok",
					Expect: model.Expectation{Status: http.StatusOK},
				})
				c.Probe(model.Probe{
					Name:   "missing",
					Method: http.MethodGet,
					URL:    "http://sut/missing",
					Expect: model.Expectation{Status: http.StatusOK},
				})
			},
		}),
	)

	report, err := tester.RunOnce(context.Background())
	require.NoError(t, err)

	probing, ok := report.SectionByName("probing")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeFailed, probing.Outcome)

	require.Len(t, probing.Probes, 2)
	assert.Equal(t, model.OutcomePassed, probing.Probes[0].Outcome)
	assert.Equal(t, model.OutcomeFailed, probing.Probes[1].Outcome)
	assert.Equal(t, "got status 404, expected 200", probing.Probes[1].Detail)
}

func TestSectionSeverityDefaultsFromCatalog(t *testing.T) {
	tester := New(
		WithSection(Section{
			Name: "Basic Checks",
			Run: func(c *Check) {
				c.Record("check", model.OutcomePassed, "")
			},
		}),
	)

	report, err := tester.RunOnce(context.Background())
	require.NoError(t, err)

	sr, ok := report.SectionByName("Basic Checks")
	require.True(t, ok)
	assert.Equal(t, model.SeverityMandatory, sr.Severity)
}

func TestBuiltinSectionsCatalog(t *testing.T) {
	sections := BuiltinSections()

	require.Len(t, sections, 10)

	severities := map[string]model.Severity{}
	for _, sec := range sections {
		severities[sec.Name] = sec.Severity
		require.NotNil(t, sec.Run, sec.Name)
	}

	assert.Equal(t, model.SeverityMandatory, severities["Memory Stability"])
	assert.Equal(t, model.SeverityMandatory, severities["I/O Multiplexing"])
	assert.Equal(t, model.SeverityMandatory, severities["Configuration"])
	assert.Equal(t, model.SeverityMandatory, severities["Basic Checks"])
	assert.Equal(t, model.SeverityMajor, severities["CGI"])
	assert.Equal(t, model.SeverityMajor, severities["Body Limits"])
	assert.Equal(t, model.SeverityMajor, severities["Port Conflicts"])
	assert.Equal(t, model.SeverityMinor, severities["Browser Compatibility"])
	assert.Equal(t, model.SeverityMinor, severities["Stress"])
	assert.Equal(t, model.SeverityBonus, severities["Cookies"])
}
