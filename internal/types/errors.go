package types

import "fmt"

// ConfigurationError is fatal and is raised before any work starts
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AudioLoadError means the source audio could not be opened or decoded
type AudioLoadError struct {
	Path string
	Err  error
}

func (e *AudioLoadError) Error() string {
	return fmt.Sprintf("failed to load audio %s: %v", e.Path, e.Err)
}

func (e *AudioLoadError) Unwrap() error { return e.Err }

// SegmentTranscriptionError describes a single failed segment.
// StatusCode is zero when no HTTP response was received.
type SegmentTranscriptionError struct {
	Index      int
	StatusCode int
	Err        error
}

func (e *SegmentTranscriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chunk %d failed with status %d: %v", e.Index, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chunk %d error: %v", e.Index, e.Err)
}

func (e *SegmentTranscriptionError) Unwrap() error { return e.Err }

// PersistenceError means the transcript could not be written out
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
