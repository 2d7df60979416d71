package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Maintenance job metrics
var (
	MaintenanceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amc",
			Subsystem: "maintenance",
			Name:      "runs_total",
			Help:      "Total number of maintenance job runs",
		},
		[]string{"job", "status"}, // success, failed, skipped
	)

	MaintenanceRunsInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "amc",
			Subsystem: "maintenance",
			Name:      "runs_in_progress",
			Help:      "Number of maintenance runs currently in progress",
		},
		[]string{"job"},
	)

	MaintenanceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amc",
			Subsystem: "maintenance",
			Name:      "run_duration_seconds",
			Help:      "Duration of maintenance job runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 120},
		},
		[]string{"job"},
	)

	AuditFindingsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "amc",
			Subsystem: "maintenance",
			Name:      "audit_findings",
			Help:      "Findings of the last transaction audit by check",
		},
		[]string{"check"}, // orphaned, stale_submitted, holdings_drift
	)
)

// RecordMaintenanceRun records the completion of a maintenance job
func RecordMaintenanceRun(job, status string, duration float64) {
	MaintenanceRunsTotal.WithLabelValues(job, status).Inc()
	if status != "skipped" {
		MaintenanceRunDuration.WithLabelValues(job).Observe(duration)
	}
}

// SetAuditFinding publishes one audit check result
func SetAuditFinding(check string, count int64) {
	AuditFindingsGauge.WithLabelValues(check).Set(float64(count))
}
