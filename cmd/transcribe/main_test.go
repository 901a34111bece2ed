package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/codebuildervaibhav/chunked-transcription/internal/config"
	"github.com/codebuildervaibhav/chunked-transcription/internal/storage"
)

func TestApplyFlagsOnlyOverridesGivenFlags(t *testing.T) {
	f, set, err := parseFlags([]string{"-lang", "en-IN", "-chunk-ms", "60000", "-upload"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	cfg := config.Default()
	applyFlags(cfg, f, set)

	if cfg.Transcription.LanguageCode != "en-IN" || cfg.Audio.ChunkDurationMs != 60000 || !cfg.GoogleDrive.Enabled {
		t.Errorf("Flags not applied: %+v", cfg)
	}
	if cfg.Transcription.Model != config.DefaultModel || cfg.Audio.InputPath != config.DefaultInputPath {
		t.Errorf("Unset flags must keep defaults: %+v", cfg)
	}
}

func TestRunMissingCredential(t *testing.T) {
	t.Setenv(config.DefaultAPIKeyEnv, "")
	dir := t.TempDir()

	configFile := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("storage:\n  temp_dir: %s\n", filepath.Join(dir, "temp"))
	if err := os.WriteFile(configFile, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	code := run([]string{
		"-config", configFile,
		"-env", filepath.Join(dir, "absent.env"),
		"-input", filepath.Join(dir, "missing.wav"),
	}, io.Discard)
	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "temp")); !os.IsNotExist(err) {
		t.Error("Nothing may run before the credential check")
	}
}

func TestRunWritesCSV(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-subscription-key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		n := calls.Add(1)
		fmt.Fprintf(w, `{"transcript": "part%d "}`, n)
	}))
	defer server.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "call.wav")
	writeWAV(t, input, 150*time.Second)

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("STT_TEST_KEY=secret\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	configFile := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`
transcription:
  endpoint: %s
  api_key_env: STT_TEST_KEY
storage:
  temp_dir: %s
  output_dir: %s
  database: %s
logging:
  level: error
`, server.URL, filepath.Join(dir, "temp"), filepath.Join(dir, "out"), filepath.Join(dir, "db", "runs.db"))
	if err := os.WriteFile(configFile, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("STT_TEST_KEY") })

	code := run([]string{"-config", configFile, "-env", envFile, "-input", input, "-chunk-ms", "60000"}, io.Discard)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d", code)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 segment requests, got %d", calls.Load())
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "out", "transcription_*.csv"))
	if len(matches) != 1 {
		t.Fatalf("Expected one CSV, found %v", matches)
	}
	text, err := storage.ReadTranscript(matches[0])
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if text != "part1 part2 part3" {
		t.Errorf("Unexpected transcript %q", text)
	}

	db, err := storage.NewMetadataDB(filepath.Join(dir, "db", "runs.db"))
	if err != nil {
		t.Fatalf("NewMetadataDB failed: %v", err)
	}
	defer db.Close()
	runs, err := db.ListTranscripts(10)
	if err != nil || len(runs) != 1 || runs[0].RequestName != "call" {
		t.Errorf("Expected one recorded run named call, got %+v (%v)", runs, err)
	}
}

func TestRunPrintsTranscriptWhenSaveFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"transcript": "hello"}`)
	}))
	defer server.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "call.wav")
	writeWAV(t, input, 30*time.Second)

	// A regular file where the output directory should be
	outputDir := filepath.Join(dir, "out")
	if err := os.WriteFile(outputDir, []byte("not a directory"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("STT_TEST_KEY=secret\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("STT_TEST_KEY") })

	configFile := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`
transcription:
  endpoint: %s
  api_key_env: STT_TEST_KEY
storage:
  temp_dir: %s
  output_dir: %s
  database: %s
logging:
  level: error
`, server.URL, filepath.Join(dir, "temp"), outputDir, filepath.Join(dir, "runs.db"))
	if err := os.WriteFile(configFile, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var stdout bytes.Buffer
	code := run([]string{"-config", configFile, "-env", envFile, "-input", input}, &stdout)
	if code != 1 {
		t.Errorf("Expected exit code 1 for a failed save, got %d", code)
	}
	if strings.TrimSpace(stdout.String()) != "hello" {
		t.Errorf("Expected transcript on stdout, got %q", stdout.String())
	}

	db, err := storage.NewMetadataDB(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("NewMetadataDB failed: %v", err)
	}
	defer db.Close()
	runs, err := db.ListTranscripts(10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Expected the run to be recorded, got %+v (%v)", runs, err)
	}
	if runs[0].LocalPath != "" {
		t.Errorf("Expected no local path, got %q", runs[0].LocalPath)
	}
}

func writeWAV(t *testing.T, path string, d time.Duration) {
	t.Helper()
	sr := beep.SampleRate(100)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()
	if err := wav.Encode(f, beep.Silence(sr.N(d)), beep.Format{SampleRate: sr, NumChannels: 1, Precision: 2}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
}
