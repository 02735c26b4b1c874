package apiclient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records outbound calls to the admissions backend
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// NewMetrics creates and registers the client collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Requests sent to the admissions backend.",
		}, []string{"endpoint", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dashboard",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of admissions backend requests, per attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Retried admissions backend requests.",
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.requests, m.duration, m.retries)
	return m
}

func (m *Metrics) observe(endpoint, method string, status int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if err == nil {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(endpoint, method, label).Inc()
	m.duration.WithLabelValues(endpoint, method).Observe(elapsed.Seconds())
}

func (m *Metrics) retried(endpoint string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(endpoint).Inc()
}
