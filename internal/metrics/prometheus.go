package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Recording metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsDiscarded prometheus.Counter
	RecordingsTruncated prometheus.Counter
	RecordingDuration   prometheus.Histogram

	// Encoding metrics
	EncodeFallbacks prometheus.Counter

	// Submission metrics
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionRetries  prometheus.Counter
	SubmissionFailures *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec

	// Playback metrics
	TracksLoaded   prometheus.Counter
	PlaybackErrors prometheus.Counter
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		RecordingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_recordings_completed_total",
			Help: "Total number of recording sessions stopped with a blob",
		}),
		RecordingsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_recordings_discarded_total",
			Help: "Total number of recording sessions discarded",
		}),
		RecordingsTruncated: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_recordings_truncated_total",
			Help: "Total number of recordings auto-stopped at the duration ceiling",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "krishi_recording_duration_seconds",
			Help:    "Recorded duration of completed sessions",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		}),
		EncodeFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_encode_fallbacks_total",
			Help: "Total number of captures submitted in their native codec after an encode failure",
		}),
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krishi_submissions_total",
			Help: "Total number of query submissions by kind",
		}, []string{"kind"}),
		SubmissionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_submission_retries_total",
			Help: "Total number of text submission retry attempts",
		}),
		SubmissionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krishi_submission_failures_total",
			Help: "Total number of failed submissions by kind and failure",
		}, []string{"kind", "failure"}),
		SubmissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "krishi_submission_duration_seconds",
			Help:    "End to end submission latency by kind",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		TracksLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_playback_tracks_loaded_total",
			Help: "Total number of reply tracks loaded for playback",
		}),
		PlaybackErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "krishi_playback_errors_total",
			Help: "Total number of unrecoverable playback errors",
		}),
	}
}

// NewDefault creates metrics registered on the default registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// RecordRecordingCompleted records a finished recording and its duration.
func (m *Metrics) RecordRecordingCompleted(duration time.Duration) {
	m.RecordingsCompleted.Inc()
	m.RecordingDuration.Observe(duration.Seconds())
}

// RecordSubmission records one submission outcome.
func (m *Metrics) RecordSubmission(kind string, failure string, elapsed time.Duration) {
	m.SubmissionsTotal.WithLabelValues(kind).Inc()
	m.SubmissionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if failure != "" {
		m.SubmissionFailures.WithLabelValues(kind, failure).Inc()
	}
}
