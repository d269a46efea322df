// Package metrics exposes prometheus collectors for requests, sign-ins and
// gate decisions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type Metrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	gateDecisions  *prometheus.CounterVec
	signIns        *prometheus.CounterVec
	liveSessions   prometheus.GaugeFunc

	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Passing nil uses the default
// registry. Collectors already registered there are reused.
func New(reg *prometheus.Registry, liveSessions func() int) *Metrics {
	m := &Metrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Protected page renders by gate state",
		}, []string{"state"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Sign-in and sign-up attempts by outcome",
		}, []string{"kind", "outcome"}),
	}
	if liveSessions == nil {
		liveSessions = func() int { return 0 }
	}
	m.liveSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "authgate",
		Subsystem: "sessions",
		Name:      "live",
		Help:      "Session stores held in memory",
	}, func() float64 { return float64(liveSessions()) })

	if reg == nil {
		m.registry = prometheus.DefaultRegisterer
		m.gatherer = prometheus.DefaultGatherer
	} else {
		m.registry = reg
		m.gatherer = reg
	}

	collectors := []prometheus.Collector{m.requestTotal, m.requestLatency, m.gateDecisions, m.signIns, m.liveSessions}
	for _, collector := range collectors {
		if err := m.registry.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch v := are.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					switch collector {
					case m.requestTotal:
						m.requestTotal = v
					case m.gateDecisions:
						m.gateDecisions = v
					case m.signIns:
						m.signIns = v
					}
				case *prometheus.HistogramVec:
					m.requestLatency = v
				}
			}
		}
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *Metrics) GateDecision(state string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(state).Inc()
}

// SignIn records one attempt; kind is "login" or "register".
func (m *Metrics) SignIn(kind, outcome string) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(kind, outcome).Inc()
}
