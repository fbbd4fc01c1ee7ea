package analyzer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Analyze outcomes used as the "result" label.
const (
	ResultOK             = "ok"
	ResultError          = "error"
	ResultNotInitialized = "not_initialized"
)

// Metrics holds the analyzer's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	analyzeTotal *prometheus.CounterVec
	duration     prometheus.Histogram
	dominant     *prometheus.CounterVec
	ready        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		analyzeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ekman_analyze_total",
			Help: "Analyze calls by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ekman_analyze_duration_seconds",
			Help:    "Time spent in Analyze, tokenization through decode",
			Buckets: prometheus.DefBuckets,
		}),
		dominant: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ekman_dominant_emotion_total",
			Help: "Successful analyses by dominant label",
		}, []string{"label"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ekman_analyzer_ready",
			Help: "1 while the analyzer holds a loaded model",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.analyzeTotal, m.duration, m.dominant, m.ready)
	}

	return m
}

func (m *Metrics) observe(result string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.analyzeTotal.WithLabelValues(result).Inc()

	if result != ResultNotInitialized {
		m.duration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeDominant(label string) {
	if m == nil {
		return
	}

	m.dominant.WithLabelValues(label).Inc()
}

func (m *Metrics) setReady(ready bool) {
	if m == nil {
		return
	}

	if ready {
		m.ready.Set(1)
	} else {
		m.ready.Set(0)
	}
}
