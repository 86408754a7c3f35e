package webservtester

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/Simonization/webservTester/internal/config"
	"github.com/Simonization/webservTester/internal/fixture"
	"github.com/Simonization/webservTester/internal/inspect"
	"github.com/Simonization/webservTester/internal/metric"
	"github.com/Simonization/webservTester/internal/model"
	"github.com/Simonization/webservTester/internal/sut"
)

// Section is one self-contained conformance check. Its Run function drives
// instances and probes through the Check and may end early via FailNow or
// Inconclusive; the harness owns teardown of everything acquired.
type Section struct {
	Name     string
	Severity model.Severity
	Run      func(c *Check)
}

// Check is handed to a section's Run function. It tracks every fixture and
// instance acquired by the section and records probe results; acquired
// resources are torn down by the harness when the section ends, on every
// exit path.
type Check struct {
	section string
	s       *Tester
	ctx     context.Context

	logs   strings.Builder
	forced model.Outcome

	probes []model.ProbeResult

	fixtures  []*fixture.File
	instances []*instanceHandle
}

type instanceHandle struct {
	inst    *sut.Instance
	ports   []int
	stopped bool
}

// skipSectionErr is passed to panic() to signal that a section could not
// reach a conclusive outcome.
type skipSectionErr struct{}

// failSectionErr is passed to panic() to signal that a section has failed
// and cannot continue.
type failSectionErr struct{}

func (c *Check) Context() context.Context {
	return c.ctx
}

// Config returns the SUT launch parameters the harness was configured with.
func (c *Check) Config() config.SUTConfig {
	return c.s.cfg.SUT
}

func (c *Check) Thresholds() config.ThresholdsConfig {
	return c.s.cfg.Thresholds
}

func (c *Check) Logf(format string, args ...any) {
	c.logs.WriteString(fmt.Sprintf(format, args...) + "\n")
}

func (c *Check) Fail() {
	c.forced = model.OutcomeFailed
}

func (c *Check) Failed() bool {
	return c.forced == model.OutcomeFailed
}

func (c *Check) FailNow() {
	c.Fail()
	panic(failSectionErr{})
}

func (c *Check) Fatalf(format string, args ...any) {
	c.Logf(format, args...)
	c.FailNow()
}

// Inconclusive ends the section without a conclusive outcome. It does not
// count towards the score and never overrides an already-failed result.
func (c *Check) Inconclusive(format string, args ...any) {
	c.Logf(format, args...)

	if c.forced != model.OutcomeFailed {
		c.forced = model.OutcomeInconclusive
	}

	panic(skipSectionErr{})
}

// Record adds a synthetic result for an observation that was not made by a
// probe, e.g. a memory sample comparison or a shutdown violation.
func (c *Check) Record(name string, outcome model.Outcome, detail string) {
	c.probes = append(c.probes, model.ProbeResult{
		Name:    name,
		Outcome: outcome,
		Detail:  detail,
	})

	metric.ProbesTotal.WithLabelValues(c.section, string(outcome)).Inc()
}

// Probe executes one probe and records its result.
func (c *Check) Probe(p model.Probe) model.ProbeResult {
	res := c.s.executor.Execute(c.ctx, p)

	c.probes = append(c.probes, res)

	metric.ProbesTotal.WithLabelValues(c.section, string(res.Outcome)).Inc()

	return res
}

// StartServer materializes the fixture and launches an instance on it. A
// startup failure ends the section as failed; use ExpectStartupFailure for
// fixtures the server must reject.
func (c *Check) StartServer(fx model.Fixture) *sut.Instance {
	f := c.createFixture(fx)

	inst, err := c.s.manager.Start(c.ctx, f.Path)
	if err != nil {
		metric.InstanceStartsTotal.WithLabelValues("failed").Inc()

		var startup model.StartupFailureError
		if errors.As(err, &startup) {
			c.Fatalf("server rejected valid configuration (exit code %d): %s", startup.ExitCode, tail(startup.Output))
		}

		c.Fatalf("launching server: %v", err)
	}

	metric.InstanceStartsTotal.WithLabelValues("ok").Inc()

	h := &instanceHandle{inst: inst, ports: fx.Ports()}
	c.instances = append(c.instances, h)

	return inst
}

// ExpectStartupFailure launches the fixture and records whether the server
// rejected it. Rejection must happen within the settle window; an instance
// that survives it has accepted the invalid configuration.
func (c *Check) ExpectStartupFailure(name string, fx model.Fixture) {
	f := c.createFixture(fx)

	inst, err := c.s.manager.Start(c.ctx, f.Path)

	if err == nil {
		metric.InstanceStartsTotal.WithLabelValues("ok").Inc()

		c.Record(name, model.OutcomeFailed, "accepted invalid configuration")

		if stopErr := c.s.manager.Stop(inst); stopErr != nil && !errors.Is(stopErr, sut.ErrForcedKill) {
			c.Logf("stopping instance: %v", stopErr)
		}
		c.awaitPorts(c.unheldPorts(fx.Ports()))

		return
	}

	metric.InstanceStartsTotal.WithLabelValues("failed").Inc()

	var startup model.StartupFailureError
	if errors.As(err, &startup) {
		if startup.ExitCode == 0 {
			c.Record(name, model.OutcomeFailed, "exited with code 0 instead of reporting an error")
			return
		}

		c.Record(name, model.OutcomePassed, fmt.Sprintf("rejected with exit code %d", startup.ExitCode))
		return
	}

	c.Fatalf("launching server: %v", err)
}

// StopServer gracefully terminates an instance started by this section. An
// instance that has to be killed is a shutdown violation and fails the
// section.
func (c *Check) StopServer(inst *sut.Instance) {
	h := c.handleOf(inst)
	if h == nil || h.stopped {
		return
	}

	h.stopped = true

	c.stopAndJudge(h)
	c.awaitPorts(h.ports)
}

func (c *Check) stopAndJudge(h *instanceHandle) {
	err := c.s.manager.Stop(h.inst)

	switch {
	case errors.Is(err, sut.ErrForcedKill):
		c.Record("graceful shutdown", model.OutcomeFailed, "instance ignored the termination signal and was killed")
	case err != nil:
		c.Logf("stopping instance %d: %v", h.inst.PID(), err)
	}
}

func (c *Check) handleOf(inst *sut.Instance) *instanceHandle {
	for _, h := range c.instances {
		if h.inst == inst {
			return h
		}
	}
	return nil
}

// Inspector returns the process inspection capability.
func (c *Check) Inspector() inspect.ProcessInspector {
	return c.s.inspector
}

// KeepBusy drives request traffic against the url until the returned stop
// function is called. Used while the process is observed from the outside;
// results are not recorded.
func (c *Check) KeepBusy(url string) (stop func()) {
	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for ctx.Err() == nil {
			_, _ = c.s.loadGen.Generate(ctx, url, 20, 4)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// LoadBurst drives a burst of requests against the url and records an error
// as a failed result.
func (c *Check) LoadBurst(url string, requests, concurrency int) model.LoadStats {
	stats, err := c.s.loadGen.Generate(c.ctx, url, requests, concurrency)
	if err != nil {
		c.Fatalf("load burst against %s: %v", url, err)
	}

	return stats
}

func (c *Check) URL(port int, path string) string {
	return fmt.Sprintf("http://%s%s", c.Addr(port), path)
}

func (c *Check) Addr(port int) string {
	return net.JoinHostPort(c.s.cfg.SUT.Host, strconv.Itoa(port))
}

func (c *Check) BasePort() int {
	return c.s.cfg.SUT.BasePort
}

func (c *Check) createFixture(fx model.Fixture) *fixture.File {
	f, err := c.s.generator.Create(fx)
	if err != nil {
		c.Fatalf("creating fixture: %v", err)
	}

	c.fixtures = append(c.fixtures, f)

	return f
}

// unheldPorts filters out ports still bound by another live instance of this
// section, e.g. the healthy first instance in a port-conflict check. Waiting
// for those to free up would stall until the release timeout.
func (c *Check) unheldPorts(ports []int) []int {
	held := map[int]bool{}
	for _, h := range c.instances {
		if h.stopped || !h.inst.Alive() {
			continue
		}
		for _, p := range h.ports {
			held[p] = true
		}
	}

	free := make([]int, 0, len(ports))
	for _, p := range ports {
		if !held[p] {
			free = append(free, p)
		}
	}

	return free
}

func (c *Check) awaitPorts(ports []int) {
	ctx, cancel := context.WithTimeout(c.ctx, c.s.cfg.SUT.PortReleaseTimeout)
	defer cancel()

	for _, port := range ports {
		if err := c.s.manager.AwaitPortRelease(ctx, c.s.cfg.SUT.Host, port); err != nil {
			c.Logf("%v", err)
		}
	}
}

// teardown releases everything the section acquired. Instances that exited
// on their own are crashes and fail the section; the rest are stopped
// gracefully.
func (c *Check) teardown() {
	for _, h := range c.instances {
		if h.stopped {
			continue
		}

		if !h.inst.Alive() {
			c.Record("process liveness", model.OutcomeFailed,
				fmt.Sprintf("server exited unexpectedly with code %d: %s", h.inst.ExitCode(), tail(h.inst.Output())))
			continue
		}

		c.stopAndJudge(h)
		c.awaitPorts(h.ports)
	}

	for _, f := range c.fixtures {
		f.Release()
	}
}

// outcome combines forced results with the probe aggregate.
func (c *Check) outcome() model.Outcome {
	if c.forced == model.OutcomeFailed {
		return model.OutcomeFailed
	}

	agg := model.SectionRun{Probes: c.probes}.AggregateOutcome()

	if agg == model.OutcomeFailed {
		return model.OutcomeFailed
	}

	if c.forced == model.OutcomeInconclusive {
		return model.OutcomeInconclusive
	}

	return agg
}

// tail returns the last few lines of captured process output, enough for a
// result detail without dumping whole logs.
func tail(output string) string {
	const maxLen = 300

	output = strings.TrimSpace(output)
	if len(output) > maxLen {
		output = "..." + output[len(output)-maxLen:]
	}

	return output
}
