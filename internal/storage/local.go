package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

// TranscriptColumn is the single CSV column holding the joined transcript
const TranscriptColumn = "collated_transcript"

// LocalStorage handles saving transcripts to the local filesystem
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// OutputDir returns the directory transcripts are written to
func (ls *LocalStorage) OutputDir() string {
	return ls.outputDir
}

// SaveTranscript writes the transcript as a one-row CSV named
// transcription_<YYYYMMDD_HHMMSS>[_<tag>].csv and returns its path.
func (ls *LocalStorage) SaveTranscript(result *types.TranscriptionResult, tag string) (string, error) {
	if err := os.MkdirAll(ls.outputDir, 0755); err != nil {
		return "", &types.PersistenceError{Path: ls.outputDir, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	csvPath := filepath.Join(ls.outputDir, transcriptFilename(ls.now(), tag))

	f, err := os.Create(csvPath)
	if err != nil {
		return "", &types.PersistenceError{Path: csvPath, Err: err}
	}

	if err := writeTranscriptCSV(f, result.Text); err != nil {
		f.Close()
		os.Remove(csvPath)
		return "", &types.PersistenceError{Path: csvPath, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &types.PersistenceError{Path: csvPath, Err: err}
	}

	return csvPath, nil
}

// ReadTranscript returns the transcript stored in a CSV written by SaveTranscript
func ReadTranscript(csvPath string) (string, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", csvPath, err)
	}
	if len(records) == 0 || len(records[0]) != 1 || records[0][0] != TranscriptColumn {
		return "", fmt.Errorf("%s: missing %s header", csvPath, TranscriptColumn)
	}
	if len(records) < 2 {
		return "", errors.New("transcript row missing")
	}
	return records[1][0], nil
}

func writeTranscriptCSV(w io.Writer, text string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{TranscriptColumn}); err != nil {
		return err
	}
	if err := cw.Write([]string{text}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func transcriptFilename(t time.Time, tag string) string {
	name := "transcription_" + t.Format("20060102_150405")
	if tag = sanitizeFilename(tag); tag != "" {
		name += "_" + tag
	}
	return name + ".csv"
}

// sanitizeFilename replaces characters that are unsafe in file names
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	result := strings.Trim(replacer.Replace(strings.TrimSpace(name)), "._")
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
