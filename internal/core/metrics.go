package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkio_jobs_submitted_total",
		Help: "Jobs accepted by the orchestrator.",
	}, []string{"kind", "entity_type"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkio_jobs_finished_total",
		Help: "Jobs that reached a terminal status.",
	}, []string{"kind", "status"})

	jobsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bulkio_jobs_running",
		Help: "Jobs currently holding a worker slot.",
	}, []string{"kind"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulkio_job_duration_seconds",
		Help:    "Wall time from submission to terminal status.",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"kind", "status"})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkio_import_rows_total",
		Help: "Imported rows by outcome.",
	}, []string{"entity_type", "outcome"})

	exportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkio_export_rows_total",
		Help: "Rows rendered into export artifacts.",
	}, []string{"entity_type", "format"})

	historyWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkio_history_write_errors_total",
		Help: "Terminal jobs whose ledger record could not be written.",
	})
)
