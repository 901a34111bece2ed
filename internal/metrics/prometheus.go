package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

// Metrics contains the Prometheus metrics for transcription runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SegmentsTotal        *prometheus.CounterVec
	SegmentRequestTime   prometheus.Histogram
	SegmentAudioDuration prometheus.Histogram
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
}

// NewMetrics creates and registers all metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SegmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_segments_total",
			Help: "Total number of segments sent for transcription, by outcome",
		}, []string{"status"}),
		SegmentRequestTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_segment_request_seconds",
			Help:    "Time spent on a single segment transcription request",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		SegmentAudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_segment_audio_seconds",
			Help:    "Audio duration of each transcribed segment",
			Buckets: []float64{15, 30, 60, 120, 180, 240, 300, 600},
		}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_runs_total",
			Help: "Total number of pipeline runs, by outcome",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_run_seconds",
			Help:    "Wall time of complete pipeline runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// ObserveSegment records one segment attempt
func (m *Metrics) ObserveSegment(status types.SegmentStatus, elapsed, audio time.Duration) {
	if m == nil {
		return
	}
	m.SegmentsTotal.WithLabelValues(string(status)).Inc()
	m.SegmentRequestTime.Observe(elapsed.Seconds())
	if audio > 0 {
		m.SegmentAudioDuration.Observe(audio.Seconds())
	}
}

// ObserveRun records a finished pipeline run
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
