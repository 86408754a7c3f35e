// Package probe issues deterministic protocol probes against a running SUT
// instance and interprets what comes back.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Simonization/webservTester/internal/model"
)

// Executor runs probes. The network call is delegated to the HTTPClient or
// RawClient capability; the executor owns comparing the observed response
// against the probe's expected-outcome predicate.
type Executor struct {
	client  HTTPClient
	raw     RawClient
	timeout time.Duration

	log *slog.Logger
}

func NewExecutor(client HTTPClient, raw RawClient, timeout time.Duration, log *slog.Logger) *Executor {
	return &Executor{
		client:  client,
		raw:     raw,
		timeout: timeout,
		log:     log,
	}
}

// Execute runs one probe. A probe that times out or errors on the wire is a
// failed result, never a harness error: probes are independently retryable
// and one bad probe must not abort its section.
func (e *Executor) Execute(ctx context.Context, p model.Probe) model.ProbeResult {
	if p.Timeout == 0 {
		p.Timeout = e.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var (
		res *model.ProbeResult
		err error
	)

	if p.Raw != "" {
		res, err = e.executeRaw(ctx, p)
	} else {
		res, err = e.client.Do(ctx, p)
	}

	if err != nil {
		e.log.Debug("probe transport error", "probe", p.Name, "error", err)

		return model.ProbeResult{
			Name:    p.Name,
			Outcome: model.OutcomeFailed,
			Detail:  fmt.Sprintf("request failed: %v", err),
		}
	}

	res.Name = p.Name
	res.Outcome = evaluate(p, *res)

	if res.Outcome == model.OutcomeFailed {
		res.Detail = describeMismatch(p, *res)
	}

	return *res
}

func (e *Executor) executeRaw(ctx context.Context, p model.Probe) (*model.ProbeResult, error) {
	start := time.Now()

	reply, err := e.raw.Send(ctx, p.Target, p.Raw, p.Timeout)
	if err != nil {
		return nil, err
	}

	res := &model.ProbeResult{
		Body:       reply,
		StatusCode: parseStatusLine(reply),
		DurationMS: time.Since(start).Milliseconds(),
	}

	return res, nil
}

// parseStatusLine extracts the status code from a raw HTTP/1.x response,
// 0 when the reply is not parseable (e.g. the peer just closed).
func parseStatusLine(reply string) int {
	if !strings.HasPrefix(reply, "HTTP/1.") {
		return 0
	}

	fields := strings.Fields(reply)
	if len(fields) < 2 {
		return 0
	}

	var code int
	if _, err := fmt.Sscanf(fields[1], "%d", &code); err != nil {
		return 0
	}

	if code < 100 || code > 599 {
		return 0
	}

	return code
}

func evaluate(p model.Probe, res model.ProbeResult) model.Outcome {
	// informational probes record the observation and always pass
	if p.Expect.Informational() {
		return model.OutcomePassed
	}

	if p.Expect.Matches(res) {
		return model.OutcomePassed
	}

	return model.OutcomeFailed
}

func describeMismatch(p model.Probe, res model.ProbeResult) string {
	e := p.Expect

	switch {
	case e.Status != 0:
		return fmt.Sprintf("got status %d, expected %d", res.StatusCode, e.Status)
	case len(e.StatusIn) > 0:
		return fmt.Sprintf("got status %d, expected one of %v", res.StatusCode, e.StatusIn)
	case e.HeaderPresent != "":
		return fmt.Sprintf("header %q not present", e.HeaderPresent)
	case e.BodyContains != "":
		return fmt.Sprintf("body does not contain %q", e.BodyContains)
	case e.BodyNonEmpty:
		return "body is empty"
	}

	return ""
}

// StatusOK is a convenience set for probes where any 2xx is acceptable.
func StatusOK() []int {
	return []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent}
}
