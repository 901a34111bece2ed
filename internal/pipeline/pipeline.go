package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codebuildervaibhav/chunked-transcription/internal/audio"
	"github.com/codebuildervaibhav/chunked-transcription/internal/metrics"
	"github.com/codebuildervaibhav/chunked-transcription/internal/transcription"
	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

// Run outcomes reported to metrics
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
)

// Segmenter splits an audio file into ordered segments
type Segmenter interface {
	Split(path string, chunkDurationMs int) ([]audio.Segment, error)
}

// Transcriber turns one segment into a result. It must not fail.
type Transcriber interface {
	TranscribeSegment(ctx context.Context, seg transcription.Segment, index int, opts transcription.Options) types.SegmentResult
}

// Pipeline runs segmentation and transcription for one file at a time
type Pipeline struct {
	segmenter   Segmenter
	transcriber Transcriber
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New creates a pipeline. logger and m may be nil.
func New(segmenter Segmenter, transcriber Transcriber, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		segmenter:   segmenter,
		transcriber: transcriber,
		logger:      logger,
		metrics:     m,
	}
}

// TranscribeFile segments audioPath and transcribes every segment
// sequentially in index order. Segment failures contribute empty text;
// only configuration, audio load and context errors are returned.
func (p *Pipeline) TranscribeFile(ctx context.Context, audioPath string, opts transcription.Options, chunkDurationMs int) (*types.TranscriptionResult, error) {
	start := time.Now()

	if chunkDurationMs <= 0 {
		p.metrics.ObserveRun(OutcomeError, time.Since(start))
		return nil, &types.ConfigurationError{
			Field: "chunk_duration_ms",
			Err:   fmt.Errorf("must be positive, got %d", chunkDurationMs),
		}
	}

	segments, err := p.segmenter.Split(audioPath, chunkDurationMs)
	if err != nil {
		p.logger.Error("Failed to segment audio", slog.String("path", audioPath), slog.Any("error", err))
		p.metrics.ObserveRun(OutcomeError, time.Since(start))
		return nil, err
	}
	defer audio.Release(segments)

	p.logger.Info("Audio segmented",
		slog.String("path", audioPath),
		slog.Int("segments", len(segments)),
		slog.Int("chunk_ms", chunkDurationMs))

	results := make([]types.SegmentResult, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			p.metrics.ObserveRun(OutcomeError, time.Since(start))
			return nil, fmt.Errorf("transcription cancelled at chunk %d: %w", i, err)
		}

		p.logger.Debug("Transcribing segment", slog.String("segment", seg.String()))
		res := p.transcriber.TranscribeSegment(ctx, seg, i, opts)
		res.Index = i
		res.Start = seg.Start
		res.End = seg.End
		results[i] = res
	}

	result := &types.TranscriptionResult{
		Text:        types.JoinTranscript(results),
		Language:    opts.LanguageCode,
		Model:       opts.Model,
		Segments:    results,
		ProcessedAt: time.Now(),
	}
	if n := len(segments); n > 0 {
		result.Duration = segments[n-1].End
	}
	result.WordCount = len(strings.Fields(result.Text))

	failed := result.FailedSegments()
	p.logger.Info("Transcription finished",
		slog.Int("segments", len(results)),
		slog.Int("failed", failed),
		slog.Int("words", result.WordCount),
		slog.Duration("elapsed", time.Since(start)))

	p.metrics.ObserveRun(runOutcome(result, failed), time.Since(start))
	return result, nil
}

func runOutcome(result *types.TranscriptionResult, failed int) string {
	switch {
	case result.Text == "":
		return OutcomeEmpty
	case failed > 0:
		return OutcomePartial
	default:
		return OutcomeComplete
	}
}
