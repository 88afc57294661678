// v0
// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nrgchamp/fuzzycrac/internal/circuitbreaker"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	inferences        *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	activatedRules    prometheus.Histogram
	simulationRuns    *prometheus.CounterVec
	simulationTime    prometheus.Histogram
	alertsTotal       *prometheus.CounterVec
	publishTotal      *prometheus.CounterVec
	cbState           *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuzzy_inferences_total",
			Help: "Fuzzy inferences by outcome (ok or fallback).",
		}, []string{"outcome"}),
		inferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuzzy_inference_duration_seconds",
			Help:    "Histogram of single inference durations.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 8),
		}),
		activatedRules: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuzzy_activated_rules",
			Help:    "Number of rules with non-zero strength per inference.",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
		simulationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulation_runs_total",
			Help: "Simulation runs by result.",
		}, []string{"result"}),
		simulationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulation_duration_seconds",
			Help:    "Histogram of full simulation run durations.",
			Buckets: prometheus.DefBuckets,
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_total",
			Help: "Alerts raised by category and severity.",
		}, []string{"category", "severity"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_publish_total",
			Help: "Bus send attempts by sink, topic and result.",
		}, []string{"sink", "topic", "result"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.inferences,
		m.inferenceDuration,
		m.activatedRules,
		m.simulationRuns,
		m.simulationTime,
		m.alertsTotal,
		m.publishTotal,
		m.cbState,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveInference implements fuzzy.Observer.
func (m *Metrics) ObserveInference(elapsed time.Duration, activated int, fallback bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	m.inferences.WithLabelValues(outcome).Inc()
	m.inferenceDuration.Observe(elapsed.Seconds())
	m.activatedRules.Observe(float64(activated))
}

// ObserveRun implements simulation.RunObserver.
func (m *Metrics) ObserveRun(elapsed time.Duration, _ int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.simulationRuns.WithLabelValues(result).Inc()
	m.simulationTime.Observe(elapsed.Seconds())
}

// ObserveAlert implements alerts.AlertObserver.
func (m *Metrics) ObserveAlert(category, severity string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(category, severity).Inc()
}

// ObservePublish implements alerts.PublishObserver.
func (m *Metrics) ObservePublish(sink, topic string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.publishTotal.WithLabelValues(sink, topic, result).Inc()
}

func (m *Metrics) SetCircuitBreakerState(target string, state circuitbreaker.State) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(float64(state))
}

// BreakerHook adapts SetCircuitBreakerState to circuitbreaker.OnStateChange.
func (m *Metrics) BreakerHook() func(name string, from, to circuitbreaker.State) {
	return func(name string, _, to circuitbreaker.State) { m.SetCircuitBreakerState(name, to) }
}
