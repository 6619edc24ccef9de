package catalog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const labelOutcome = "outcome"

// Load outcomes.
const (
	outcomeCacheHit  = "cache_hit"
	outcomeBusy      = "busy"
	outcomeSuccess   = "success"
	outcomeMalformed = "malformed"
	outcomeExhausted = "exhausted"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	Loads       *prometheus.CounterVec
	Attempts    prometheus.Counter
	Retries     prometheus.Counter
	Products    prometheus.Gauge
	LastSuccess prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_loads_total",
				Help: "Catalog load calls by outcome",
			},
			[]string{labelOutcome},
		),
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_fetch_attempts_total",
			Help: "Feed fetch attempts, including retries",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_fetch_retries_total",
			Help: "Feed fetch retries after transport errors",
		}),
		Products: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_products",
			Help: "Products in the current snapshot",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_last_success_timestamp_seconds",
			Help: "Unix time of the last committed snapshot",
		}),
	}

	reg.MustRegister(m.Loads, m.Attempts, m.Retries, m.Products, m.LastSuccess)
	return m
}

func (m *Metrics) load(outcome string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) attempt() {
	if m == nil {
		return
	}
	m.Attempts.Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) committed(n int, at time.Time) {
	if m == nil {
		return
	}
	m.Products.Set(float64(n))
	m.LastSuccess.Set(float64(at.Unix()))
}
