package types

import (
	"strings"
	"time"
)

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source type constants
const (
	SourceCLI    = "cli"
	SourceUpload = "upload"
	SourceStream = "stream"
)

// SegmentStatus is the outcome of transcribing one segment
type SegmentStatus string

const (
	// SegmentSuccess means the service returned non-empty text
	SegmentSuccess SegmentStatus = "success"
	// SegmentEmpty means the service answered 2xx but had no transcript
	SegmentEmpty SegmentStatus = "empty"
	// SegmentFailed means the request or the response handling failed
	SegmentFailed SegmentStatus = "failed"
)

// SegmentResult is the transcription of one audio segment.
// A failed segment keeps its slot with empty Text so ordering survives.
type SegmentResult struct {
	Index  int
	Start  time.Duration
	End    time.Duration
	Text   string
	Status SegmentStatus
	Err    error
}

// TranscriptionResult represents the outcome of a full pipeline run
type TranscriptionResult struct {
	JobID       string
	Text        string
	Language    string
	Model       string
	Duration    time.Duration
	Segments    []SegmentResult
	WordCount   int
	ProcessedAt time.Time
	LocalPath   string
	GDriveURL   string
}

// FailedSegments counts segments whose transcription failed
func (r *TranscriptionResult) FailedSegments() int {
	failed := 0
	for _, seg := range r.Segments {
		if seg.Status == SegmentFailed {
			failed++
		}
	}
	return failed
}

// JoinTranscript joins segment texts in slice order with single spaces and trims the result
func JoinTranscript(results []SegmentResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}
