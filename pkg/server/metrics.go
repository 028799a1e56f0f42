package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the service-level prometheus instruments exposed at
// /metrics.
type Metrics struct {
	SpansIngested  prometheus.Counter
	EventsAccepted prometheus.Counter
	PluginDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		SpansIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_mentor_spans_ingested_total",
			Help: "Spans accepted through the OTLP receiver and log import.",
		}),
		EventsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_mentor_events_accepted_total",
			Help: "Event notifications accepted for background processing.",
		}),
		PluginDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_mentor_plugin_duration_seconds",
			Help:    "Wall-clock duration of analytics pipeline executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"analytics_id", "status"}),
	}
}
