package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SectionsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webserv_tester_sections_running",
		Help: "The number of test sections currently executing",
	}, []string{"section"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webserv_tester_runs_total",
		Help: "The number of conformance runs finished since the service was started",
	}, []string{"verdict"})

	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webserv_tester_probes_total",
		Help: "The number of probes executed since the service was started",
	}, []string{"section", "outcome"})

	InstanceStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webserv_tester_instance_starts_total",
		Help: "The number of server-under-test launches, by startup outcome",
	}, []string{"outcome"})
)
