package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_reports"

// Metrics holds the Prometheus collectors for report intake.
type Metrics struct {
	ReportsSubmitted *prometheus.CounterVec // labels: severity
	SubmitFailures   *prometheus.CounterVec // labels: reason={invalid_input,upload,storage}
	UploadsStored    prometheus.Counter
	UploadBytes      prometheus.Counter
	OrphanedUploads  prometheus.Counter
	AlertsBroadcast  prometheus.Counter
	StreamClients    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReportsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Reports persisted, by severity. Unknown severities count as other.",
		}, []string{"severity"}),
		SubmitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_failures_total",
			Help:      "Rejected or failed report submissions, by reason.",
		}, []string{"reason"}),
		UploadsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_stored_total",
			Help:      "Files written to the upload directory.",
		}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes written to the upload directory.",
		}),
		OrphanedUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_uploads_total",
			Help:      "Uploads left without a report because the insert failed.",
		}),
		AlertsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_broadcast_total",
			Help:      "Critical and High reports pushed to stream subscribers.",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_stream_clients",
			Help:      "Currently connected alert stream clients.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ReportsSubmitted,
			m.SubmitFailures,
			m.UploadsStored,
			m.UploadBytes,
			m.OrphanedUploads,
			m.AlertsBroadcast,
			m.StreamClients,
		)
	}

	return m
}

// NewMetricsForTesting returns unregistered collectors, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(nil)
}
