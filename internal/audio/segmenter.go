package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

var errSourceClosed = errors.New("audio source is closed")

// Source is a fully decoded audio file. It owns the sample buffer
// until Close is called.
type Source struct {
	path    string
	format  beep.Format
	buffer  *beep.Buffer
	tempDir string
}

// Segment is a contiguous window of a Source.
// Start and End are offsets from the beginning of the source.
type Segment struct {
	Index int
	Start time.Duration
	End   time.Duration

	source   *Source
	from, to int
}

// Segmenter splits audio files into fixed-duration segments
type Segmenter struct {
	tempDir string
}

// NewSegmenter creates a segmenter that exports segment WAVs under tempDir
func NewSegmenter(tempDir string) *Segmenter {
	return &Segmenter{tempDir: tempDir}
}

// Split decodes the file at path and partitions it into windows of
// chunkDurationMs. The last window holds whatever remains. The segments
// share the decoded samples until Release is called on them.
func (s *Segmenter) Split(path string, chunkDurationMs int) ([]Segment, error) {
	if chunkDurationMs <= 0 {
		return nil, &types.ConfigurationError{
			Field: "chunk_duration_ms",
			Err:   fmt.Errorf("must be positive, got %d", chunkDurationMs),
		}
	}

	src, err := Load(path)
	if err != nil {
		return nil, err
	}
	src.tempDir = s.tempDir

	segments, err := src.Segments(time.Duration(chunkDurationMs) * time.Millisecond)
	if err != nil || len(segments) == 0 {
		src.Close()
	}
	return segments, err
}

// Release closes the sources behind segments. Segments built without a
// source are ignored.
func Release(segments []Segment) {
	for _, seg := range segments {
		if seg.source != nil {
			seg.source.Close()
		}
	}
}

// Load opens and decodes an audio file into memory
func Load(path string) (*Source, error) {
	if !ValidateAudioFormat(path) {
		return nil, &types.AudioLoadError{
			Path: path,
			Err:  fmt.Errorf("unsupported audio format %q", filepath.Ext(path)),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &types.AudioLoadError{Path: path, Err: err}
	}
	defer f.Close()

	streamer, format, err := decode(f)
	if err != nil {
		return nil, &types.AudioLoadError{Path: path, Err: err}
	}
	defer streamer.Close()

	if format.SampleRate <= 0 || format.NumChannels <= 0 {
		return nil, &types.AudioLoadError{
			Path: path,
			Err:  fmt.Errorf("invalid format: %d Hz, %d channels", format.SampleRate, format.NumChannels),
		}
	}

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, &types.AudioLoadError{Path: path, Err: fmt.Errorf("decode failed: %w", err)}
	}

	src := newSource(buffer)
	src.path = path
	return src, nil
}

func newSource(buffer *beep.Buffer) *Source {
	return &Source{format: buffer.Format(), buffer: buffer}
}

// Path returns the file the source was loaded from
func (s *Source) Path() string { return s.path }

// Format returns the decoded sample format
func (s *Source) Format() beep.Format { return s.format }

// Len returns the number of decoded samples
func (s *Source) Len() int {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.Len()
}

// Duration returns the total length of the decoded audio
func (s *Source) Duration() time.Duration {
	return s.format.SampleRate.D(s.Len())
}

// Close releases the decoded samples. Segments of a closed source can no longer be encoded.
func (s *Source) Close() error {
	s.buffer = nil
	return nil
}

// Segments partitions the source into contiguous windows of at most chunk.
// A zero-length source yields no segments.
func (s *Source) Segments(chunk time.Duration) ([]Segment, error) {
	if s.buffer == nil {
		return nil, errSourceClosed
	}

	n := s.format.SampleRate.N(chunk)
	if n <= 0 {
		return nil, &types.ConfigurationError{
			Field: "chunk_duration_ms",
			Err:   fmt.Errorf("chunk %v is shorter than one sample at %d Hz", chunk, s.format.SampleRate),
		}
	}

	total := s.buffer.Len()
	segments := make([]Segment, 0, (total+n-1)/n)
	for from, index := 0, 0; from < total; from, index = from+n, index+1 {
		to := min(from+n, total)
		segments = append(segments, Segment{
			Index:  index,
			Start:  s.format.SampleRate.D(from),
			End:    s.format.SampleRate.D(to),
			source: s,
			from:   from,
			to:     to,
		})
	}

	return segments, nil
}

// Duration returns the length of this segment
func (seg Segment) Duration() time.Duration {
	return seg.End - seg.Start
}

// Samples returns the number of samples in this segment
func (seg Segment) Samples() int {
	return seg.to - seg.from
}

// String returns a human-readable representation for logging
func (seg Segment) String() string {
	return fmt.Sprintf("chunk %d: %s-%s", seg.Index, formatOffset(seg.Start), formatOffset(seg.End))
}

// EncodeWAV exports the segment as a PCM WAV file and returns its bytes.
// The intermediate file lives in the segmenter's temp dir and is removed afterwards.
func (seg Segment) EncodeWAV() ([]byte, error) {
	src := seg.source
	if src == nil || src.buffer == nil {
		return nil, errSourceClosed
	}

	dir := src.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf("segment_%s_%03d.wav", uuid.New().String(), seg.Index))
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}
	defer os.Remove(tmpPath)

	if err := wav.Encode(f, src.buffer.Streamer(seg.from, seg.to), src.format); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to encode segment %d: %w", seg.Index, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write segment %d: %w", seg.Index, err)
	}

	return os.ReadFile(tmpPath)
}

func formatOffset(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
