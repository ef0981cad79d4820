package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the outreach engine
type Metrics struct {
	// Dispatch counters
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec
	MessagesOptOutTotal *prometheus.CounterVec

	// Campaign lifecycle
	CampaignsActive         prometheus.Gauge
	CampaignsFinishedTotal  *prometheus.CounterVec
	DispatchBatchesTotal    prometheus.Counter
	DispatchDurationSeconds prometheus.Histogram

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_messages_sent_total",
				Help: "Total number of messages handed to a transport",
			},
			[]string{"channel"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_messages_failed_total",
				Help: "Total number of per-recipient send failures",
			},
			[]string{"channel"},
		),
		MessagesOptOutTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_messages_opt_out_total",
				Help: "Total number of sends suppressed by an opt-out marker",
			},
			[]string{"channel"},
		),
		CampaignsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_campaigns_active",
				Help: "Number of campaigns currently dispatching",
			},
		),
		CampaignsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_campaigns_finished_total",
				Help: "Total number of campaigns reaching a terminal state",
			},
			[]string{"status"},
		),
		DispatchBatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_dispatch_batches_total",
				Help: "Total number of dispatch batches processed",
			},
		),
		DispatchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outreach_dispatch_duration_seconds",
				Help:    "Wall time of full campaign dispatch runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_api_request_duration_seconds",
				Help:    "API request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.MessagesOptOutTotal,
		m.CampaignsActive,
		m.CampaignsFinishedTotal,
		m.DispatchBatchesTotal,
		m.DispatchDurationSeconds,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
