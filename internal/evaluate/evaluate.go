// Package evaluate turns section results into the graded verdict: a hard
// mandatory gate first, a percentage score with tier thresholds second.
package evaluate

import (
	"github.com/Simonization/webservTester/internal/model"
)

// severityTable is the static mapping of section identity to severity class.
// Sections not listed default to minor.
var severityTable = map[string]model.Severity{
	"Memory Stability":      model.SeverityMandatory,
	"I/O Multiplexing":      model.SeverityMandatory,
	"Configuration":         model.SeverityMandatory,
	"Basic Checks":          model.SeverityMandatory,
	"CGI":                   model.SeverityMajor,
	"Body Limits":           model.SeverityMajor,
	"Port Conflicts":        model.SeverityMajor,
	"Browser Compatibility": model.SeverityMinor,
	"Stress":                model.SeverityMinor,
	"Cookies":               model.SeverityBonus,
}

func SeverityOf(section string) model.Severity {
	if sev, ok := severityTable[section]; ok {
		return sev
	}
	return model.SeverityMinor
}

// GradeImpact renders the human description of a section outcome's effect on
// the verdict.
func GradeImpact(sr model.SectionRun) string {
	if sr.Outcome == model.OutcomeInconclusive {
		return "N/A"
	}

	if sr.Outcome != model.OutcomeFailed {
		return "ok"
	}

	switch sr.Severity {
	case model.SeverityMandatory:
		return "GRADE = 0"
	case model.SeverityMajor:
		return "Major penalty"
	case model.SeverityBonus:
		return "No bonus points"
	default:
		return "Minor penalty"
	}
}

// Score computes passed sections over conclusive sections, in percent.
// Inconclusive (skipped) sections never appear in the denominator.
func Score(sections []model.SectionRun) float64 {
	passed, conclusive := 0, 0

	for _, sr := range sections {
		if !sr.Conclusive() {
			continue
		}

		conclusive++
		if sr.Outcome == model.OutcomePassed {
			passed++
		}
	}

	if conclusive == 0 {
		return 0
	}

	return float64(passed) / float64(conclusive) * 100
}

// Verdict applies the two-tier gating: any failed mandatory section forces
// the zero-grade verdict regardless of the score; otherwise the score picks
// the tier.
func Verdict(sections []model.SectionRun) (model.Verdict, float64) {
	for _, sr := range sections {
		if sr.Severity == model.SeverityMandatory && sr.Outcome == model.OutcomeFailed {
			return model.VerdictHardFail, 0
		}
	}

	score := Score(sections)

	switch {
	case score >= 90:
		return model.VerdictExcellent, score
	case score >= 70:
		return model.VerdictGood, score
	default:
		return model.VerdictNeedsWork, score
	}
}

// Summarize computes the verdict, score, counters and grade impacts of a
// finished run. The report is immutable afterwards.
func Summarize(r model.Report) model.Report {
	for i := range r.Sections {
		r.Sections[i].GradeImpact = GradeImpact(r.Sections[i])

		switch r.Sections[i].Outcome {
		case model.OutcomePassed:
			r.Passed++
		case model.OutcomeFailed:
			r.Failed++
		case model.OutcomeInconclusive:
			r.Skipped++
		}
	}

	r.Verdict, r.Score = Verdict(r.Sections)
	r.DurationInMS = r.End.Sub(r.Start).Milliseconds()

	return r
}
