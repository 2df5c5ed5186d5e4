package filestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	putsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkio_filestore_puts_total",
		Help: "Artifacts written to the file store.",
	})

	bytesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkio_filestore_bytes_written_total",
		Help: "Bytes written to the file store.",
	})

	objectsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulkio_filestore_objects",
		Help: "Artifacts currently indexed, including expired ones awaiting sweep.",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkio_filestore_cache_hits_total",
		Help: "Artifact reads served from memory.",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkio_filestore_cache_misses_total",
		Help: "Artifact reads that went to disk.",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkio_filestore_sweep_runs_total",
		Help: "Expiry sweeps run.",
	})

	sweptObjectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkio_filestore_swept_objects_total",
		Help: "Expired artifacts removed by sweeps.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulkio_filestore_sweep_duration_seconds",
		Help:    "Duration of one expiry sweep.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)
