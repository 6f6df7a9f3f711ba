// Package metrics provides Prometheus metrics for the recording pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "field_recorder"

// Metrics holds all Prometheus metrics for the recorder.
type Metrics struct {
	// Capture metrics
	SegmentsWritten prometheus.Counter
	SegmentFailures prometheus.Counter
	SegmentBytes    prometheus.Histogram
	ChunkOverflows  prometheus.Counter

	// Transfer queue depth; grows without bound while uploads lag
	QueueDepth prometheus.Gauge

	// Upload metrics
	UploadsSucceeded    prometheus.Counter
	UploadsFailed       prometheus.Counter
	UploadDuration      prometheus.Histogram
	LastUploadTimestamp prometheus.Gauge

	// Watchdog metrics
	StaleAlerts prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SegmentsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_written_total",
			Help:      "Total number of audio segments persisted locally",
		}),
		SegmentFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_failures_total",
			Help:      "Total number of segments skipped after a capture or write error",
		}),
		SegmentBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_size_bytes",
			Help:      "Size of persisted segment files",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),
		ChunkOverflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_overflows_total",
			Help:      "Total number of chunk reads that reported an input overflow",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfer_queue_depth",
			Help:      "Number of segments waiting for upload",
		}),
		UploadsSucceeded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_succeeded_total",
			Help:      "Total number of segments transferred to remote storage",
		}),
		UploadsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_failed_total",
			Help:      "Total number of segments dropped after a failed transfer",
		}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent transferring one segment",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		LastUploadTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_upload_timestamp_seconds",
			Help:      "Unix time of the most recent successful transfer",
		}),
		StaleAlerts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_alerts_total",
			Help:      "Total number of watchdog checks that found uploads overdue",
		}),
	}
}

// SegmentWritten implements segment.Observer
func (m *Metrics) SegmentWritten(_ string, bytes int) {
	m.SegmentsWritten.Inc()
	m.SegmentBytes.Observe(float64(bytes))
}

// ChunkOverflowed implements segment.Observer
func (m *Metrics) ChunkOverflowed() {
	m.ChunkOverflows.Inc()
}

// SetQueueDepth is a queue depth observer
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// UploadSucceeded implements upload.Observer
func (m *Metrics) UploadSucceeded(at time.Time, took time.Duration) {
	m.UploadsSucceeded.Inc()
	m.UploadDuration.Observe(took.Seconds())
	m.LastUploadTimestamp.Set(float64(at.Unix()))
}

// UploadFailed implements upload.Observer
func (m *Metrics) UploadFailed(took time.Duration) {
	m.UploadsFailed.Inc()
	m.UploadDuration.Observe(took.Seconds())
}

// Stale is a watchdog alert hook
func (m *Metrics) Stale(time.Duration) {
	m.StaleAlerts.Inc()
}
