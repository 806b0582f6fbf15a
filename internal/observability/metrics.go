package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_watch"

// Metrics holds the Prometheus collectors for the ingestion cycle and the
// services it drives.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram
	CycleRunning  prometheus.Gauge

	SourceFailures *prometheus.CounterVec // labels: source={weather,seismic,hotspots,forecast}

	// AI service.
	AIRequests  *prometheus.CounterVec // labels: outcome={success,transient,error}
	AIFallbacks *prometheus.CounterVec // labels: job={risk,sms,prediction,report,chat}

	IncidentsRegistered *prometheus.CounterVec // labels: type
	AlertsRecorded      prometheus.Counter
	SMSDelivered        prometheus.Counter
	SMSFailed           prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting registers against a throwaway registry so tests can
// build as many instances as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed ingestion cycles.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one ingestion cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		CycleRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_running",
			Help:      "1 while a cycle is in progress.",
		}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "External feed failures by source.",
		}, []string{"source"}),
		AIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Model calls by outcome.",
		}, []string{"outcome"}),
		AIFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_fallbacks_total",
			Help:      "Deterministic fallbacks taken in place of a model answer.",
		}, []string{"job"}),
		IncidentsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_registered_total",
			Help:      "Incidents created, by type.",
		}, []string{"type"}),
		AlertsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_recorded_total",
			Help:      "Alert records written.",
		}),
		SMSDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sms_delivered_total",
			Help:      "Messages accepted by the SMS gateway.",
		}),
		SMSFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sms_failed_total",
			Help:      "Messages the SMS gateway rejected or never received.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.CycleRunning,
		m.SourceFailures,
		m.AIRequests,
		m.AIFallbacks,
		m.IncidentsRegistered,
		m.AlertsRecorded,
		m.SMSDelivered,
		m.SMSFailed,
	)

	return m
}
