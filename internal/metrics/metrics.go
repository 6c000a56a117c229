package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Fern
type Metrics struct {
	// Campaign counters
	CampaignsCreatedTotal   prometheus.Counter
	CampaignsScheduledTotal prometheus.Counter
	CampaignsCancelledTotal prometheus.Counter
	CampaignsSentTotal      prometheus.Counter

	// Wizard counters
	WizardSessionsTotal    prometheus.Counter
	WizardSubmissionsTotal *prometheus.CounterVec

	// Delivery counters
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal *prometheus.CounterVec

	// Spool gauges
	SpoolPending    prometheus.Gauge
	SpoolDeferred   prometheus.Gauge
	SpoolDeadLetter prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		// Campaign counters
		CampaignsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fern_campaigns_created_total",
				Help: "Total number of campaigns created",
			},
		),
		CampaignsScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fern_campaigns_scheduled_total",
				Help: "Total number of campaign schedule operations",
			},
		),
		CampaignsCancelledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fern_campaigns_cancelled_total",
				Help: "Total number of campaigns cancelled",
			},
		),
		CampaignsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fern_campaigns_sent_total",
				Help: "Total number of campaigns fully dispatched",
			},
		),

		// Wizard counters
		WizardSessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fern_wizard_sessions_total",
				Help: "Total number of composition wizard sessions started",
			},
		),
		WizardSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fern_wizard_submissions_total",
				Help: "Total number of wizard submissions",
			},
			[]string{"result"},
		),

		// Delivery counters
		EmailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fern_emails_sent_total",
				Help: "Total number of successfully delivered emails",
			},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fern_emails_failed_total",
				Help: "Total number of permanently failed emails",
			},
			[]string{"error_type"},
		),

		// Spool gauges
		SpoolPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fern_spool_pending",
				Help: "Number of messages waiting in the outbound spool",
			},
		),
		SpoolDeferred: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fern_spool_deferred",
				Help: "Number of messages awaiting retry",
			},
		),
		SpoolDeadLetter: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fern_spool_dead_letter",
				Help: "Number of messages that exhausted all retries",
			},
		),

		// API metrics
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fern_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fern_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fern_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		// System metrics
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fern_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fern_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		m.CampaignsCreatedTotal,
		m.CampaignsScheduledTotal,
		m.CampaignsCancelledTotal,
		m.CampaignsSentTotal,
		m.WizardSessionsTotal,
		m.WizardSubmissionsTotal,
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.SpoolPending,
		m.SpoolDeferred,
		m.SpoolDeadLetter,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncCampaignsCreated increments the campaign creation counter
func IncCampaignsCreated() {
	if m := Global(); m != nil {
		m.CampaignsCreatedTotal.Inc()
	}
}

// IncCampaignsScheduled increments the schedule operation counter
func IncCampaignsScheduled() {
	if m := Global(); m != nil {
		m.CampaignsScheduledTotal.Inc()
	}
}

// IncCampaignsCancelled increments the cancellation counter
func IncCampaignsCancelled() {
	if m := Global(); m != nil {
		m.CampaignsCancelledTotal.Inc()
	}
}

// IncCampaignsSent increments the fully-dispatched campaign counter
func IncCampaignsSent() {
	if m := Global(); m != nil {
		m.CampaignsSentTotal.Inc()
	}
}

// IncWizardSessions increments the wizard session counter
func IncWizardSessions() {
	if m := Global(); m != nil {
		m.WizardSessionsTotal.Inc()
	}
}

// IncWizardSubmissions increments the wizard submission counter
func IncWizardSubmissions(result string) {
	if m := Global(); m != nil {
		m.WizardSubmissionsTotal.WithLabelValues(result).Inc()
	}
}

// IncEmailsSent increments the delivered email counter
func IncEmailsSent() {
	if m := Global(); m != nil {
		m.EmailsSentTotal.Inc()
	}
}

// IncEmailsFailed increments the failed email counter
func IncEmailsFailed(errorType string) {
	if m := Global(); m != nil {
		m.EmailsFailedTotal.WithLabelValues(errorType).Inc()
	}
}

// SetSpoolSizes updates the spool gauges from a stats snapshot
func SetSpoolSizes(pending, deferred, deadLetter int64) {
	if m := Global(); m != nil {
		m.SpoolPending.Set(float64(pending))
		m.SpoolDeferred.Set(float64(deferred))
		m.SpoolDeadLetter.Set(float64(deadLetter))
	}
}
