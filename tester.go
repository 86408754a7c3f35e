// Package webservtester is a black-box conformance harness for webserv
// implementations. It launches the server binary under generated
// configurations, probes it over the wire, inspects the process from the
// outside and grades the observations into a verdict.
package webservtester

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Simonization/webservTester/internal/config"
	"github.com/Simonization/webservTester/internal/evaluate"
	"github.com/Simonization/webservTester/internal/fixture"
	"github.com/Simonization/webservTester/internal/hook"
	"github.com/Simonization/webservTester/internal/inspect"
	"github.com/Simonization/webservTester/internal/metric"
	"github.com/Simonization/webservTester/internal/model"
	"github.com/Simonization/webservTester/internal/probe"
	"github.com/Simonization/webservTester/internal/storage"
	"github.com/Simonization/webservTester/internal/sut"
)

// Reexport to allow library users to reference these types.

type Report = model.Report
type SectionRun = model.SectionRun
type Probe = model.Probe
type ProbeResult = model.ProbeResult
type Expectation = model.Expectation
type Fixture = model.Fixture
type Outcome = model.Outcome
type Severity = model.Severity

type HTTPClient = probe.HTTPClient
type RawClient = probe.RawClient
type LoadGenerator = probe.LoadGenerator
type ProcessInspector = inspect.ProcessInspector

type Tester struct {
	cfg        *config.Config
	configPath string
	serverMode bool
	flagBinary string
	flagPort   int

	log *slog.Logger

	hooks *hookManager

	// immutable readonly list of sections
	sections       []Section
	customSections bool
	runs           sync.Map
	schedules      []ScheduledRun
	cron           *cron.Cron

	// global run id counter, continued from storage in server mode
	currentRun atomic.Int32

	// runMu serializes conformance runs: sections reuse listen ports and
	// two concurrent runs would probe each other's instances.
	runMu sync.Mutex

	events chan event

	db *storage.Storage

	generator *fixture.Generator
	manager   *sut.Manager
	executor  *probe.Executor
	loadGen   probe.LoadGenerator
	inspector inspect.ProcessInspector

	httpClient probe.HTTPClient
	rawClient  probe.RawClient

	setupDone bool
}

type option func(s *Tester)

// New configures a new Tester instance.
func New(opts ...option) *Tester {
	s := &Tester{
		cfg:      config.Defaults(),
		sections: BuiltinSections(),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

func (s *Tester) Run() error {
	s.parseFlags()

	if s.configPath != "" {
		cfg, err := config.Load(s.configPath)
		if err != nil {
			return err
		}
		s.cfg = cfg
	}

	// flags override the config file
	if s.flagBinary != "" {
		s.cfg.SUT.Binary = s.flagBinary
	}
	if s.flagPort != 0 {
		s.cfg.Server.Port = s.flagPort
	}

	if err := s.setup(); err != nil {
		return err
	}

	if s.serverMode {
		return s.runServer()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}

	s.printReport(report)

	// give async hooks a chance to deliver before exiting
	<-s.hooks.shutdown().Done()

	return nil
}

// RunOnce executes all sections against the configured binary and returns
// the graded report. Used by CLI mode and by library users.
func (s *Tester) RunOnce(ctx context.Context) (model.Report, error) {
	if err := s.setup(); err != nil {
		return model.Report{}, err
	}

	r := model.Report{
		ID:          int(s.currentRun.Add(1)),
		SUTBinary:   s.cfg.SUT.Binary,
		Verdict:     model.VerdictPending,
		TriggeredBy: "cli",
		Scheduled:   time.Now(),
		Sections:    []model.SectionRun{},
	}

	return s.executeRun(ctx, r), nil
}

// setup wires the capabilities that have not been overridden via options.
// Idempotent so that RunOnce works without going through Run.
func (s *Tester) setup() error {
	if s.setupDone {
		return nil
	}

	s.log = newLogger(s.cfg.Logging)
	slog.SetDefault(s.log)

	s.generator = fixture.NewGenerator(s.log)
	s.manager = sut.NewManager(s.cfg.SUT.Binary, s.cfg.SUT.Settle, s.cfg.SUT.StopTimeout, s.log)

	if s.httpClient == nil {
		s.httpClient = &probe.Client{}
	}
	if s.rawClient == nil {
		s.rawClient = &probe.Dialer{}
	}
	s.executor = probe.NewExecutor(s.httpClient, s.rawClient, s.cfg.SUT.ProbeTimeout, s.log)

	if s.loadGen == nil {
		s.loadGen = &probe.BurstGenerator{Timeout: s.cfg.SUT.ProbeTimeout}
	}
	if s.inspector == nil {
		s.inspector = inspect.New(s.log)
	}

	if s.hooks == nil {
		s.hooks = newHookManager(s.asyncHookCallback, s.log)
	}
	s.hooks.log = s.log
	if err := s.registerConfiguredHooks(); err != nil {
		return err
	}
	if err := s.hooks.init(); err != nil {
		return err
	}

	s.setupDone = true

	return nil
}

// registerConfiguredHooks adds the hooks declared in the configuration file.
func (s *Tester) registerConfiguredHooks() error {
	if slack := s.cfg.Hooks.Slack; slack.Token != "" {
		s.hooks.all = append(s.hooks.all, hook.NewSlackHook(slack.ChannelID, slack.Token, s.log))
	}

	if elastic := s.cfg.Hooks.Elastic; len(elastic.Addresses) > 0 {
		h, err := hook.NewElasticSearchHook(elastic.Addresses, elastic.Index, s.log)
		if err != nil {
			return err
		}
		s.hooks.all = append(s.hooks.all, h)
	}

	return nil
}

// both hooks plug into the run-finished notification
var _ AsyncRunFinishedListener = (*hook.SlackHook)(nil)
var _ AsyncRunFinishedListener = (*hook.ElasticSearchHook)(nil)

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level

	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func (s *Tester) runServer() error {
	db, err := storage.New(s.cfg.Database.Path, s.log)
	if err != nil {
		return err
	}
	s.db = db

	latest, err := db.LatestRunID(context.Background())
	if err != nil {
		return err
	}
	s.currentRun.Store(int32(latest))

	s.events = make(chan event, 100)

	if err := s.startSchedules(); err != nil {
		return err
	}

	go s.eventLoop()

	return s.runHTTP()
}

func (s *Tester) startSchedules() error {
	s.cron = cron.New(cron.WithSeconds())

	for i := range s.schedules {
		schedule := s.schedules[i]

		entryID, err := s.cron.AddFunc(schedule.Schedule, func() {
			s.events <- runStartedEvent{
				runIdentifier: runIdentifier{runID: s.nextID()},
				sutBinary:     s.cfg.SUT.Binary,
				scheduled:     time.Now(),
				triggeredBy:   "scheduled",
			}
		})

		if err != nil {
			return fmt.Errorf("adding scheduled run %q: %w", schedule.Schedule, err)
		}

		s.schedules[i].EntryID = entryID
	}

	s.cron.Start()

	return nil
}

func (s *Tester) nextID() int {
	return int(s.currentRun.Add(1))
}

// eventLoop loops over all events and updates the runs map accordingly.
// It should be started as a goroutine once. The `runs` map must only be
// written to from here.
func (s *Tester) eventLoop() {
	for e := range s.events {
		report := model.Report{}

		if _, ok := e.(runStartedEvent); !ok {
			val, found := s.runs.Load(e.RunID())
			if !found {
				s.log.Warn("could not handle event, run not found", "run-id", e.RunID(), "event", fmt.Sprintf("%T", e))
				continue
			}

			report = val.(model.Report)
		}

		report = e.Apply(report)

		s.runs.Store(e.RunID(), report)

		switch e.(type) {
		case runStartedEvent:
			go s.executeRun(context.Background(), report)
		}
	}
}

// executeRun runs all sections sequentially and grades the outcome. In
// server mode each step is also published as an event so the runs map
// reflects progress while the run is still executing.
func (s *Tester) executeRun(ctx context.Context, r model.Report) model.Report {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	r.Start = time.Now()

	for _, sec := range s.sections {
		if ctx.Err() != nil {
			break
		}

		sr := s.runSection(ctx, sec)

		s.publish(sectionFinishedEvent{runIdentifier{r.ID}, sr})

		r.Sections = append(r.Sections, sr)
	}

	r.End = time.Now()
	r = evaluate.Summarize(r)

	s.publish(runFinishedEvent{runIdentifier: runIdentifier{r.ID}, start: r.Start, end: r.End})

	metric.RunsTotal.WithLabelValues(string(r.Verdict)).Inc()

	if s.db != nil {
		if _, err := s.db.SaveReport(ctx, r); err != nil {
			s.log.Error("persisting report failed", "run-id", r.ID, "error", err)
		}
	}

	s.hooks.notifyRunFinished(r)
	s.hooks.notifyRunFinishedAsync(r)

	s.log.Info("run finished", "run-id", r.ID, "verdict", r.Verdict, "score", r.Score)

	return r
}

func (s *Tester) publish(e event) {
	if s.events == nil {
		return
	}
	s.events <- e
}

func (s *Tester) asyncHookCallback(h Hook, context map[string]any) {
	s.log.Debug("async hook finished", "hook", h.Name(), "context", context)
}

func (s *Tester) parseFlags() {
	var binary = flag.String("b", "", "path of the server binary under test (overrides the config file)")
	var configPath = flag.String("c", "", "path of the tester configuration file")
	var port = flag.Int("p", 0, "port used by the server, server mode only (overrides the config file)")
	var serverMode = flag.Bool("s", s.serverMode, "enable server mode")
	var listSections = flag.Bool("l", false, "list all configured test sections and exit")

	flag.Parse()

	if *listSections {
		s.printSections()
	}

	s.flagBinary = *binary
	s.flagPort = *port
	s.configPath = *configPath
	s.serverMode = *serverMode
}

func (s *Tester) printSections() {
	b := strings.Builder{}

	for _, sec := range s.sections {
		b.WriteString(fmt.Sprintf("%s (%s)\n", sec.Name, sec.Severity))
	}

	fmt.Print(b.String())

	os.Exit(0)
}

func (s *Tester) printReport(r model.Report) {
	b := strings.Builder{}

	b.WriteString(fmt.Sprintf("binary: %s\n\n", r.SUTBinary))

	for _, sr := range r.Sections {
		b.WriteString(fmt.Sprintf("%-24s %-13s %s\n", sr.Name, sr.Outcome, sr.GradeImpact))
	}

	b.WriteString(fmt.Sprintf("\nverdict: %s (score %.1f%%, %d passed / %d failed / %d skipped)\n",
		r.Verdict, r.Score, r.Passed, r.Failed, r.Skipped))

	fmt.Print(b.String())

	if body, err := json.MarshalIndent(r, "", "  "); err == nil {
		if err := os.WriteFile("report.json", body, 0o644); err != nil {
			s.log.Warn("unable to write report.json", "error", err)
		}
	}
}
