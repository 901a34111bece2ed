package transcription

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codebuildervaibhav/chunked-transcription/internal/metrics"
	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

type fakeSegment struct {
	data []byte
	err  error
}

func (f fakeSegment) EncodeWAV() ([]byte, error) { return f.data, f.err }
func (f fakeSegment) Duration() time.Duration    { return time.Minute }

var testOptions = Options{LanguageCode: "hi-IN", Model: "saarika:v2", WithTimestamps: false}

func newTestClient(t *testing.T, endpoint string, logs *bytes.Buffer) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logs, nil))
	client, err := NewClient(Config{Endpoint: endpoint, APIKey: "test-key", Timeout: 2 * time.Second}, logger, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestTranscribeSegmentSendsMultipartForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		if got := r.Header.Get("api-subscription-key"); got != "test-key" {
			t.Errorf("unexpected subscription key %q", got)
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("parse content type: %v", err)
			return
		}
		if mediaType != "multipart/form-data" {
			t.Errorf("unexpected media type %q", mediaType)
		}

		reader := multipart.NewReader(r.Body, params["boundary"])
		fields := make(map[string]string)
		var fileData []byte
		var fileName, fileType string
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			if part.FormName() == "file" {
				fileData = data
				fileName = part.FileName()
				fileType = part.Header.Get("Content-Type")
			} else {
				fields[part.FormName()] = string(data)
			}
		}

		if fileName != "audio.wav" || fileType != "audio/wav" {
			t.Errorf("unexpected file part %q (%s)", fileName, fileType)
		}
		if string(fileData) != "RIFF-fake-wav" {
			t.Errorf("unexpected file data %q", fileData)
		}
		if fields["language_code"] != "hi-IN" {
			t.Errorf("unexpected language_code %q", fields["language_code"])
		}
		if fields["model"] != "saarika:v2" {
			t.Errorf("unexpected model %q", fields["model"])
		}
		if fields["with_timestamps"] != "false" {
			t.Errorf("unexpected with_timestamps %q", fields["with_timestamps"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"request_id": "r1", "transcript": "namaste duniya ", "language_code": "hi-IN"}`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	client := newTestClient(t, server.URL, &logs)

	result := client.TranscribeSegment(context.Background(), fakeSegment{data: []byte("RIFF-fake-wav")}, 0, testOptions)

	if result.Status != types.SegmentSuccess {
		t.Fatalf("Expected success, got %s (%v)", result.Status, result.Err)
	}
	if result.Text != "namaste duniya" {
		t.Errorf("Expected trimmed transcript, got %q", result.Text)
	}
	if !strings.Contains(logs.String(), "level=INFO") || !strings.Contains(logs.String(), "Chunk 0 transcribed successfully.") {
		t.Errorf("Expected an INFO success record, got %s", logs.String())
	}
}

func TestTranscribeSegmentMissingTranscriptField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"request_id": "r2"}`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	client := newTestClient(t, server.URL, &logs)

	result := client.TranscribeSegment(context.Background(), fakeSegment{data: []byte("x")}, 4, testOptions)
	if result.Status != types.SegmentEmpty {
		t.Errorf("Expected empty status, got %s", result.Status)
	}
	if result.Text != "" || result.Err != nil {
		t.Errorf("Expected empty text and no error, got %q / %v", result.Text, result.Err)
	}
}

func TestTranscribeSegmentNon2xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error": "nope"}`))
			}))
			defer server.Close()

			var logs bytes.Buffer
			client := newTestClient(t, server.URL, &logs)

			result := client.TranscribeSegment(context.Background(), fakeSegment{data: []byte("x")}, 2, testOptions)

			if result.Text != "" {
				t.Errorf("Expected empty text, got %q", result.Text)
			}
			if result.Status != types.SegmentFailed {
				t.Errorf("Expected failed status, got %s", result.Status)
			}
			var segErr *types.SegmentTranscriptionError
			if !errors.As(result.Err, &segErr) {
				t.Fatalf("Expected SegmentTranscriptionError, got %v", result.Err)
			}
			if segErr.StatusCode != status || segErr.Index != 2 {
				t.Errorf("Unexpected error details: %+v", segErr)
			}
			if !strings.Contains(logs.String(), "level=ERROR") {
				t.Errorf("Expected an ERROR record, got %s", logs.String())
			}
		})
	}
}

func TestTranscribeSegmentMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	client := newTestClient(t, server.URL, &logs)

	result := client.TranscribeSegment(context.Background(), fakeSegment{data: []byte("x")}, 1, testOptions)
	if result.Status != types.SegmentFailed || result.Text != "" {
		t.Errorf("Expected failed/empty, got %s/%q", result.Status, result.Text)
	}
}

func TestTranscribeSegmentTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	var logs bytes.Buffer
	client := newTestClient(t, endpoint, &logs)

	result := client.TranscribeSegment(context.Background(), fakeSegment{data: []byte("x")}, 0, testOptions)
	if result.Status != types.SegmentFailed || result.Text != "" {
		t.Errorf("Expected failed/empty, got %s/%q", result.Status, result.Text)
	}
	if !strings.Contains(logs.String(), "Chunk 0 error") {
		t.Errorf("Expected transport error record, got %s", logs.String())
	}
}

func TestTranscribeSegmentTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(Config{Endpoint: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond}, logger, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result := client.TranscribeSegment(context.Background(), fakeSegment{data: []byte("x")}, 0, testOptions)
	if result.Status != types.SegmentFailed {
		t.Errorf("Expected timeout to be a failed segment, got %s", result.Status)
	}
}

func TestTranscribeSegmentEncodeFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer server.Close()

	var logs bytes.Buffer
	client := newTestClient(t, server.URL, &logs)

	result := client.TranscribeSegment(context.Background(), fakeSegment{err: errors.New("disk full")}, 3, testOptions)
	if result.Status != types.SegmentFailed || result.Text != "" {
		t.Errorf("Expected failed/empty, got %s/%q", result.Status, result.Text)
	}
	if calls != 0 {
		t.Errorf("Expected no request when encoding fails, got %d", calls)
	}
}

func TestTranscribeIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"transcript": "same every time"}`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	client := newTestClient(t, server.URL, &logs)

	seg := fakeSegment{data: []byte("x")}
	first := client.TranscribeSegment(context.Background(), seg, 0, testOptions)
	second := client.TranscribeSegment(context.Background(), seg, 0, testOptions)

	if first.Text != second.Text || first.Status != second.Status {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 2 || stats.SuccessRequests != 2 || stats.SuccessRate != 100 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestTranscribeSegmentRecordsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(Config{Endpoint: server.URL, APIKey: "k"}, logger, m)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	client.TranscribeSegment(context.Background(), fakeSegment{data: []byte("x")}, 0, testOptions)

	if got := testutil.ToFloat64(m.SegmentsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed segment metric, got %v", got)
	}
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"missing endpoint", Config{APIKey: "k"}},
		{"missing key", Config{Endpoint: "http://localhost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config, nil, nil)
			var cfgErr *types.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected ConfigurationError, got %v", err)
			}
		})
	}
}
