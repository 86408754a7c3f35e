package webservtester

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Simonization/webservTester/internal/fixture"
	"github.com/Simonization/webservTester/internal/model"
	"github.com/Simonization/webservTester/internal/probe"
)

// BuiltinSections is the full conformance catalog, in execution order.
func BuiltinSections() []Section {
	return []Section{
		memoryStabilitySection(),
		ioMultiplexingSection(),
		configurationSection(),
		basicChecksSection(),
		cgiSection(),
		bodyLimitsSection(),
		portConflictsSection(),
		browserCompatibilitySection(),
		stressSection(),
		cookiesSection(),
	}
}

// inspectionGate downgrades the section to inconclusive when the platform
// lacks the requested introspection capability.
func inspectionGate(c *Check, err error) {
	if err == nil {
		return
	}

	var unavailable model.InspectionUnavailableError
	if errors.As(err, &unavailable) {
		c.Inconclusive("%v", err)
	}

	c.Fatalf("process inspection failed: %v", err)
}

func memoryStabilitySection() Section {
	return Section{
		Name:     "Memory Stability",
		Severity: model.SeverityMandatory,
		Run: func(c *Check) {
			cfg := c.Config()
			th := c.Thresholds()
			port := c.BasePort()

			inst := c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			before, err := c.Inspector().SampleMemory(inst.PID())
			inspectionGate(c, err)

			c.LoadBurst(c.URL(port, "/"), th.StressRequests, th.StressConcurrency)

			after, err := c.Inspector().SampleMemory(inst.PID())
			inspectionGate(c, err)

			var growth uint64
			if after > before {
				growth = after - before
			}

			if growth > th.MemoryGrowthMax {
				c.Record("resident set growth", model.OutcomeFailed,
					fmt.Sprintf("rss grew by %d bytes over %d requests, limit is %d", growth, th.StressRequests, th.MemoryGrowthMax))
				return
			}

			c.Record("resident set growth", model.OutcomePassed,
				fmt.Sprintf("rss grew by %d bytes over %d requests", growth, th.StressRequests))
		},
	}
}

func ioMultiplexingSection() Section {
	return Section{
		Name:     "I/O Multiplexing",
		Severity: model.SeverityMandatory,
		Run: func(c *Check) {
			cfg := c.Config()
			port := c.BasePort()

			inst := c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			stop := c.KeepBusy(c.URL(port, "/"))
			strategy, err := c.Inspector().ClassifyIOStrategy(c.Context(), inst.PID(), 2*time.Second)
			stop()

			inspectionGate(c, err)

			switch strategy {
			case model.IOStrategySelect, model.IOStrategyPoll, model.IOStrategyEpoll:
				c.Record("readiness mechanism", model.OutcomePassed, fmt.Sprintf("observed %s under load", strategy))
			default:
				c.Record("readiness mechanism", model.OutcomeFailed, "no select/poll/epoll usage observed under load")
			}
		},
	}
}

func configurationSection() Section {
	return Section{
		Name:     "Configuration",
		Severity: model.SeverityMandatory,
		Run: func(c *Check) {
			cfg := c.Config()
			port1, port2 := c.BasePort(), c.BasePort()+1

			inst := c.StartServer(fixture.MultiServer(cfg.Host, port1, port2, cfg.WebRoot))

			c.Probe(model.Probe{
				Name:   "first virtual server",
				Method: http.MethodGet,
				URL:    c.URL(port1, "/"),
				Expect: model.Expectation{Status: http.StatusOK},
			})
			c.Probe(model.Probe{
				Name:   "second virtual server",
				Method: http.MethodGet,
				URL:    c.URL(port2, "/"),
				Expect: model.Expectation{Status: http.StatusOK},
			})

			c.StopServer(inst)

			c.ExpectStartupFailure("duplicate listen directive", fixture.DuplicateListen(cfg.Host, port1, cfg.WebRoot))
			c.ExpectStartupFailure("duplicate port across servers", fixture.DuplicatePorts(cfg.Host, port1, cfg.WebRoot))
			c.ExpectStartupFailure("duplicate server name", fixture.DuplicateNames(cfg.Host, port1, port2, cfg.WebRoot))
			c.ExpectStartupFailure("duplicate location path", fixture.DuplicateLocations(cfg.Host, port1, cfg.WebRoot))
		},
	}
}

func basicChecksSection() Section {
	return Section{
		Name:     "Basic Checks",
		Severity: model.SeverityMandatory,
		Run: func(c *Check) {
			cfg := c.Config()
			port := c.BasePort()

			c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			c.Probe(model.Probe{
				Name:   "index page",
				Method: http.MethodGet,
				URL:    c.URL(port, "/"),
				Expect: model.Expectation{Status: http.StatusOK},
			})
			c.Probe(model.Probe{
				Name:   "index content type",
				Method: http.MethodGet,
				URL:    c.URL(port, "/"),
				Expect: model.Expectation{HeaderPresent: "Content-Type"},
			})
			c.Probe(model.Probe{
				Name:   "index content length",
				Method: http.MethodGet,
				URL:    c.URL(port, "/"),
				Expect: model.Expectation{HeaderPresent: "Content-Length"},
			})
			c.Probe(model.Probe{
				Name:   "index body",
				Method: http.MethodGet,
				URL:    c.URL(port, "/"),
				Expect: model.Expectation{BodyNonEmpty: true},
			})
			c.Probe(model.Probe{
				Name:   "secondary route",
				Method: http.MethodGet,
				URL:    c.URL(port, "/dashboard"),
				Expect: model.Expectation{Status: http.StatusOK},
			})
			c.Probe(model.Probe{
				Name:   "unknown path",
				Method: http.MethodGet,
				URL:    c.URL(port, "/does-not-exist.html"),
				Expect: model.Expectation{Status: http.StatusNotFound},
			})
			c.Probe(model.Probe{
				Name:    "post to upload route",
				Method:  http.MethodPost,
				URL:     c.URL(port, "/methods"),
				Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
				Body:    "field=value",
				Expect:  model.Expectation{StatusIn: probe.StatusOK()},
			})
			c.Probe(model.Probe{
				Name:   "delete on permitted route",
				Method: http.MethodDelete,
				URL:    c.URL(port, "/uploads/absent.txt"),
				Expect: model.Expectation{StatusIn: []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound}},
			})
			c.Probe(model.Probe{
				Name:   "method not allowed",
				Method: http.MethodDelete,
				URL:    c.URL(port, "/"),
				Expect: model.Expectation{StatusIn: []int{http.StatusForbidden, http.StatusMethodNotAllowed}},
			})
			c.Probe(model.Probe{
				Name:   "unknown method",
				Raw:    "FETCH / HTTP/1.1\r\nHost: webserv\r\n\r\n",
				Target: c.Addr(port),
				Expect: model.Expectation{StatusIn: []int{http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusNotImplemented}},
			})
			c.Probe(model.Probe{
				Name:   "garbage request line",
				Raw:    "garbage\r\n\r\n",
				Target: c.Addr(port),
				Expect: model.Expectation{Status: http.StatusBadRequest},
			})
			c.Probe(model.Probe{
				Name:   "empty request line",
				Raw:    "\r\n\r\n",
				Target: c.Addr(port),
				Expect: model.Expectation{StatusIn: []int{http.StatusBadRequest}, CloseOK: true},
			})
			c.Probe(model.Probe{
				Name:   "still serving after malformed input",
				Method: http.MethodGet,
				URL:    c.URL(port, "/"),
				Expect: model.Expectation{Status: http.StatusOK},
			})
		},
	}
}

func cgiSection() Section {
	return Section{
		Name:     "CGI",
		Severity: model.SeverityMajor,
		Run: func(c *Check) {
			cfg := c.Config()
			port := c.BasePort()

			c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			routes := make([]string, 0, len(cfg.CGIMarkers))
			for route := range cfg.CGIMarkers {
				routes = append(routes, route)
			}
			sort.Strings(routes)

			if len(routes) == 0 {
				c.Inconclusive("no cgi markers configured")
			}

			for _, route := range routes {
				c.Probe(model.Probe{
					Name:   "cgi output of " + route,
					Method: http.MethodGet,
					URL:    c.URL(port, route),
					Expect: model.Expectation{BodyContains: cfg.CGIMarkers[route]},
				})
			}

			c.Probe(model.Probe{
				Name:   "cgi with query string",
				Method: http.MethodGet,
				URL:    c.URL(port, routes[0]+"?name=value"),
				Expect: model.Expectation{Status: http.StatusOK},
			})
			c.Probe(model.Probe{
				Name:    "cgi with request body",
				Method:  http.MethodPost,
				URL:     c.URL(port, routes[0]),
				Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
				Body:    "name=value",
				Expect:  model.Expectation{StatusIn: probe.StatusOK()},
			})
		},
	}
}

func bodyLimitsSection() Section {
	return Section{
		Name:     "Body Limits",
		Severity: model.SeverityMajor,
		Run: func(c *Check) {
			cfg := c.Config()
			port := c.BasePort()

			c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			c.Probe(model.Probe{
				Name:    "body within limit",
				Method:  http.MethodPost,
				URL:     c.URL(port, "/methods"),
				Headers: map[string]string{"Content-Type": "text/plain"},
				Body:    strings.Repeat("a", 100),
				Expect:  model.Expectation{StatusIn: probe.StatusOK()},
			})
			c.Probe(model.Probe{
				Name:    "body exceeding limit",
				Method:  http.MethodPost,
				URL:     c.URL(port, "/methods"),
				Headers: map[string]string{"Content-Type": "text/plain"},
				Body:    strings.Repeat("a", cfg.MaxBodySize+1),
				Expect:  model.Expectation{Status: http.StatusRequestEntityTooLarge},
			})
		},
	}
}

func portConflictsSection() Section {
	return Section{
		Name:     "Port Conflicts",
		Severity: model.SeverityMajor,
		Run: func(c *Check) {
			cfg := c.Config()
			port := c.BasePort()

			c.StartServer(fixture.SingleRoute(cfg.Host, port, "primary", cfg.WebRoot))

			c.ExpectStartupFailure("second instance on an occupied port",
				fixture.SingleRoute(cfg.Host, port, "secondary", cfg.WebRoot))

			c.Probe(model.Probe{
				Name:   "primary instance still serving",
				Method: http.MethodGet,
				URL:    c.URL(port, "/"),
				Expect: model.Expectation{Status: http.StatusOK},
			})
		},
	}
}

func browserCompatibilitySection() Section {
	browserHeaders := map[string]string{
		"User-Agent": "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
		"Accept":     "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}

	return Section{
		Name:     "Browser Compatibility",
		Severity: model.SeverityMinor,
		Run: func(c *Check) {
			cfg := c.Config()
			port := c.BasePort()

			c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			c.Probe(model.Probe{
				Name:    "browser-style request",
				Method:  http.MethodGet,
				URL:     c.URL(port, "/"),
				Headers: browserHeaders,
				Expect:  model.Expectation{Status: http.StatusOK},
			})
			c.Probe(model.Probe{
				Name:    "content type header",
				Method:  http.MethodGet,
				URL:     c.URL(port, "/"),
				Headers: browserHeaders,
				Expect:  model.Expectation{HeaderPresent: "Content-Type"},
			})
			c.Probe(model.Probe{
				Name:    "directory listing",
				Method:  http.MethodGet,
				URL:     c.URL(port, "/uploads/"),
				Headers: browserHeaders,
				Expect:  model.Expectation{Status: http.StatusOK},
			})
			c.Probe(model.Probe{
				Name:    "directory without trailing slash",
				Method:  http.MethodGet,
				URL:     c.URL(port, "/uploads"),
				Headers: browserHeaders,
				Expect:  model.Expectation{StatusIn: []int{http.StatusOK, http.StatusMovedPermanently}},
			})
		},
	}
}

func stressSection() Section {
	return Section{
		Name:     "Stress",
		Severity: model.SeverityMinor,
		Run: func(c *Check) {
			cfg := c.Config()
			th := c.Thresholds()
			port := c.BasePort()

			c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			stats := c.LoadBurst(c.URL(port, "/"), th.StressRequests, th.StressConcurrency)

			if stats.Availability < th.MinAvailability {
				c.Record("availability under load", model.OutcomeFailed,
					fmt.Sprintf("%.2f%% of %d requests succeeded, minimum is %.2f%%", stats.Availability, stats.Requests, th.MinAvailability))
			} else {
				c.Record("availability under load", model.OutcomePassed,
					fmt.Sprintf("%.2f%% of %d requests succeeded", stats.Availability, stats.Requests))
			}

			established, err := c.Inspector().CountEstablishedConnections(port)
			if err != nil {
				var unavailable model.InspectionUnavailableError
				if errors.As(err, &unavailable) {
					c.Record("lingering connections", model.OutcomeInconclusive, unavailable.Reason)
					return
				}
				c.Fatalf("counting connections: %v", err)
			}

			if established > th.MaxEstablished {
				c.Record("lingering connections", model.OutcomeFailed,
					fmt.Sprintf("%d established connections remain after the burst, max %d", established, th.MaxEstablished))
				return
			}

			c.Record("lingering connections", model.OutcomePassed,
				fmt.Sprintf("%d established connections remain after the burst", established))
		},
	}
}

func cookiesSection() Section {
	return Section{
		Name:     "Cookies",
		Severity: model.SeverityBonus,
		Run: func(c *Check) {
			cfg := c.Config()
			port := c.BasePort()

			c.StartServer(fixture.Full(cfg.Host, port, cfg.WebRoot, cfg.MaxBodySize))

			res := c.Probe(model.Probe{
				Name:    "session cookie issued",
				Method:  http.MethodPost,
				URL:     c.URL(port, "/register"),
				Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
				Body:    "username=marvin&password=42",
				Expect:  model.Expectation{HeaderPresent: "Set-Cookie"},
			})

			cookie := res.Headers["Set-Cookie"]
			if cookie == "" {
				return
			}

			c.Probe(model.Probe{
				Name:    "cookie echoed back",
				Method:  http.MethodGet,
				URL:     c.URL(port, "/register"),
				Headers: map[string]string{"Cookie": cookie},
				Expect:  model.Expectation{Status: http.StatusOK},
			})
		},
	}
}
