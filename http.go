package webservtester

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Simonization/webservTester/internal/model"
)

func (s *Tester) runHTTP() error {
	router := httprouter.New()

	router.POST("/runs", s.StartRun)
	router.GET("/runs", s.ListRuns)
	router.GET("/runs/:run-id", s.GetRun)
	router.GET("/healthz", s.Healthz)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	s.log.Info("listening", "port", s.cfg.Server.Port)

	return http.ListenAndServe("localhost:"+strconv.Itoa(s.cfg.Server.Port), router)
}

func (s *Tester) httpError(w http.ResponseWriter, err error) {
	var notFound model.NotFoundError
	var malformedRequest model.MalformedRequestError

	if errors.As(err, &notFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	} else if errors.As(err, &malformedRequest) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.log.Error("request failed", "error", err)
	w.WriteHeader(http.StatusInternalServerError)
}

func (s *Tester) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err = w.Write(data); err != nil {
		s.log.Warn("error writing body", "error", err)
	}
}

// StartRun triggers a new conformance run and returns its pending report.
func (s *Tester) StartRun(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	e := runStartedEvent{
		runIdentifier: runIdentifier{runID: s.nextID()},
		sutBinary:     s.cfg.SUT.Binary,
		scheduled:     time.Now(),
		triggeredBy:   "api",
	}

	s.events <- e

	s.writeJSON(w, http.StatusCreated, e.Apply(model.Report{}))
}

// GetRun returns one report, checking in-memory runs first and falling back
// to persisted ones.
func (s *Tester) GetRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	report, err := s.getRun(r, p)
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// ListRuns returns persisted reports merged with the runs still in flight.
func (s *Tester) ListRuns(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	reports, err := s.db.ListReports(r.Context(), 50)
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.runs.Range(func(_, value any) bool {
		report := value.(model.Report)
		if !report.Finished() {
			reports = append(reports, report)
		}
		return true
	})

	sort.Slice(reports, func(i, j int) bool { return reports[i].ID > reports[j].ID })

	s.writeJSON(w, http.StatusOK, reports)
}

func (s *Tester) Healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func (s *Tester) getRun(r *http.Request, p httprouter.Params) (model.Report, error) {
	runID, err := strconv.Atoi(p.ByName("run-id"))
	if err != nil {
		return model.Report{}, model.MalformedRequestError{Param: "run-id"}
	}

	if val, ok := s.runs.Load(runID); ok {
		return val.(model.Report), nil
	}

	if s.db != nil {
		return s.db.LoadReport(r.Context(), runID)
	}

	return model.Report{}, model.NotFoundError{}
}
