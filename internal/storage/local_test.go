package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

func fixedClock() time.Time {
	return time.Date(2025, 1, 23, 14, 30, 22, 0, time.Local)
}

func TestSaveTranscriptWritesSingleColumnCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	ls := NewLocalStorage(dir)
	ls.now = fixedClock

	path, err := ls.SaveTranscript(&types.TranscriptionResult{Text: `hello, "world"`}, "")
	if err != nil {
		t.Fatalf("SaveTranscript failed: %v", err)
	}

	if filepath.Base(path) != "transcription_20250123_143022.csv" {
		t.Errorf("Unexpected file name %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	want := "collated_transcript\n\"hello, \"\"world\"\"\"\n"
	if string(data) != want {
		t.Errorf("Unexpected CSV contents:\n%s", data)
	}

	text, err := ReadTranscript(path)
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if text != `hello, "world"` {
		t.Errorf("Unexpected transcript %q", text)
	}
}

func TestSaveTranscriptWithTag(t *testing.T) {
	ls := NewLocalStorage(t.TempDir())
	ls.now = fixedClock

	path, err := ls.SaveTranscript(&types.TranscriptionResult{Text: "x"}, "team call/1")
	if err != nil {
		t.Fatalf("SaveTranscript failed: %v", err)
	}
	if filepath.Base(path) != "transcription_20250123_143022_team_call_1.csv" {
		t.Errorf("Unexpected file name %s", filepath.Base(path))
	}
}

func TestSaveTranscriptUnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "outputs")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	_, err := NewLocalStorage(blocker).SaveTranscript(&types.TranscriptionResult{Text: "x"}, "")

	var persistErr *types.PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("Expected PersistenceError, got %v", err)
	}
}

func TestReadTranscriptRejectsForeignCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := ReadTranscript(path); err == nil {
		t.Error("Expected error for CSV without transcript header")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"podcast", "podcast"},
		{"  weekly sync  ", "weekly_sync"},
		{"../../etc/passwd", "etc_passwd"},
		{`a:b*c?d"e<f>g|h\i`, "a_b_c_d_e_f_g_h_i"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
