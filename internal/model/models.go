// The `model` package is very atypical for projects written in go, but unfortunately
// cannot be avoided as it helps to avoid cyclic dependencies. Types required by a library
// user such as `Section` are reexported by the webservtester package.
package model

import (
	"strings"
	"time"
)

// Severity classifies how a section's outcome weighs into the final verdict.
type Severity string

const (
	SeverityMandatory Severity = "mandatory"
	SeverityMajor     Severity = "major"
	SeverityMinor     Severity = "minor"
	SeverityBonus     Severity = "bonus"
)

// Outcome is the three-valued result of a probe or a section. Inconclusive is
// distinct from failed: it is excluded from aggregation and from the score
// denominator.
type Outcome string

const (
	OutcomePending      Outcome = "pending"
	OutcomePassed       Outcome = "passed"
	OutcomeFailed       Outcome = "failed"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Verdict is the graded result of a whole conformance run.
type Verdict string

const (
	VerdictPending Verdict = "pending"
	// VerdictHardFail is the zero-grade verdict forced by any failed
	// mandatory section, independent of the score.
	VerdictHardFail  Verdict = "hard-fail"
	VerdictExcellent Verdict = "excellent"
	VerdictGood      Verdict = "good"
	VerdictNeedsWork Verdict = "needs-work"
)

// IOStrategy is the I/O readiness mechanism observed in the server under test.
type IOStrategy string

const (
	IOStrategySelect  IOStrategy = "select"
	IOStrategyPoll    IOStrategy = "poll"
	IOStrategyEpoll   IOStrategy = "epoll"
	IOStrategyUnknown IOStrategy = "unknown"
)

// Location is one location rule inside a server block.
type Location struct {
	Path      string
	Index     string
	Methods   []string
	UploadDir string
	Autoindex bool
	CGIExt    string
}

// ServerBlock describes one `server { ... }` block of a generated fixture.
type ServerBlock struct {
	Host        string
	Listen      []int
	Name        string
	Root        string
	MaxBodySize int
	Locations   []Location
}

// Fixture is an immutable description of a server configuration. It is
// materialized to a temporary file by the fixture generator; the description
// itself never changes after construction.
type Fixture struct {
	Servers []ServerBlock
}

// Ports returns every listen port claimed by the fixture, duplicates included.
func (f Fixture) Ports() []int {
	var ports []int
	for _, s := range f.Servers {
		ports = append(ports, s.Listen...)
	}
	return ports
}

// Expectation is the expected-outcome predicate of a probe. At most one of
// the comparison fields is set; an empty expectation marks the probe as
// informational-only (always passes, observed values are recorded).
type Expectation struct {
	Status        int    `json:"status,omitempty"`
	StatusIn      []int  `json:"statusIn,omitempty"`
	HeaderPresent string `json:"headerPresent,omitempty"`
	BodyContains  string `json:"bodyContains,omitempty"`
	BodyNonEmpty  bool   `json:"bodyNonEmpty,omitempty"`
	// CloseOK additionally accepts the peer closing the connection without
	// writing a reply. Only meaningful on raw probes.
	CloseOK bool `json:"closeOk,omitempty"`
}

// Informational reports whether the expectation asserts nothing.
func (e Expectation) Informational() bool {
	return e.Status == 0 && len(e.StatusIn) == 0 && e.HeaderPresent == "" &&
		e.BodyContains == "" && !e.BodyNonEmpty
}

// Matches evaluates the predicate against an observed result.
func (e Expectation) Matches(r ProbeResult) bool {
	if e.CloseOK && r.StatusCode == 0 && r.Body == "" {
		return true
	}

	switch {
	case e.Status != 0:
		return r.StatusCode == e.Status
	case len(e.StatusIn) > 0:
		for _, code := range e.StatusIn {
			if r.StatusCode == code {
				return true
			}
		}
		return false
	case e.HeaderPresent != "":
		for k := range r.Headers {
			if strings.EqualFold(k, e.HeaderPresent) {
				return true
			}
		}
		return false
	case e.BodyContains != "":
		return strings.Contains(r.Body, e.BodyContains)
	case e.BodyNonEmpty:
		return r.Body != ""
	}
	return true
}

// Probe is a single stateless request specification. When Raw is set the
// probe payload is sent verbatim over a plain TCP connection to Target
// instead of going through the HTTP client.
type Probe struct {
	Name    string
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration

	Raw    string
	Target string

	Expect Expectation
}

// ProbeResult is the recorded outcome of one executed probe.
type ProbeResult struct {
	Name       string            `json:"name"`
	Outcome    Outcome           `json:"outcome"`
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"-"`
	Detail     string            `json:"detail,omitempty"`
	DurationMS int64             `json:"durationMs"`
}

// SectionRun is the executed instance of one test section.
type SectionRun struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	// Outcome is the aggregate over all conclusive probe results: AND of
	// passed/failed, inconclusive when no conclusive probe exists.
	Outcome Outcome `json:"outcome"`
	// Probes holds the individual results in execution order.
	Probes []ProbeResult `json:"probes"`
	// Logs contains messages written during section execution.
	Logs string `json:"logs,omitempty"`
	// GradeImpact is the human description of what this outcome means for
	// the verdict ("GRADE = 0", "Major penalty", ...).
	GradeImpact  string    `json:"gradeImpact,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DurationInMS int64     `json:"durationInMs"`
}

// Conclusive reports whether the section counts towards the score.
func (sr SectionRun) Conclusive() bool {
	return sr.Outcome == OutcomePassed || sr.Outcome == OutcomeFailed
}

// AggregateOutcome computes the section outcome from its probe results:
// the conjunction of all conclusive probes, inconclusive if none exist.
func (sr SectionRun) AggregateOutcome() Outcome {
	conclusive := 0

	for _, p := range sr.Probes {
		switch p.Outcome {
		case OutcomeFailed:
			return OutcomeFailed
		case OutcomePassed:
			conclusive++
		}
	}

	if conclusive == 0 {
		return OutcomeInconclusive
	}

	return OutcomePassed
}

// Report is the terminal artifact of one conformance run. It is immutable
// once the verdict is computed.
type Report struct {
	// ID is the identifier of the conformance run.
	ID int `json:"id"`
	// SUTBinary is the path of the server binary under test.
	SUTBinary string `json:"sutBinary"`
	// Verdict is the graded global outcome including the mandatory gate.
	Verdict Verdict `json:"verdict"`
	// Score is passed sections over conclusive sections, in percent.
	Score float64 `json:"score"`
	// TriggeredBy denotes the origin of the run, e.g. scheduled or via http call.
	TriggeredBy string `json:"triggeredBy"`
	// Scheduled is the time the run was triggered.
	Scheduled time.Time `json:"scheduled"`
	// Start is the time the first section started executing.
	Start time.Time `json:"start"`
	// End is the time the last section finished.
	End          time.Time `json:"end"`
	DurationInMS int64     `json:"durationInMs"`

	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`

	// Sections contains the per-section results in execution order.
	Sections []SectionRun `json:"sections"`
}

// SectionByName returns the run of the named section, if present.
func (r Report) SectionByName(name string) (SectionRun, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return SectionRun{}, false
}

// Finished reports whether the run has a settled verdict.
func (r Report) Finished() bool {
	return r.Verdict != VerdictPending && r.Verdict != ""
}

// LoadStats is the summary returned by the load generator capability.
type LoadStats struct {
	Requests int `json:"requests"`
	Failures int `json:"failures"`
	// Availability is successful requests over total requests, in percent.
	Availability float64 `json:"availability"`
}
