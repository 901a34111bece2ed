package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codebuildervaibhav/chunked-transcription/internal/metrics"
	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

const (
	defaultTimeout    = 120 * time.Second
	defaultAuthHeader = "api-subscription-key"
	maxErrorBody      = 512
)

// Segment is the part of an audio segment the client needs
type Segment interface {
	EncodeWAV() ([]byte, error)
	Duration() time.Duration
}

// Config contains transcription client configuration
type Config struct {
	Endpoint   string
	APIKey     string
	AuthHeader string
	Timeout    time.Duration
}

// Options are sent with every segment as form fields
type Options struct {
	LanguageCode   string
	Model          string
	WithTimestamps bool
}

// Client sends audio segments to the speech-to-text endpoint, one request per segment
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

type transcriptResponse struct {
	Transcript string `json:"transcript"`
}

// NewClient creates a new transcription HTTP client. m may be nil.
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, &types.ConfigurationError{Field: "transcription.endpoint", Err: errors.New("cannot be empty")}
	}
	if config.APIKey == "" {
		return nil, &types.ConfigurationError{Field: "transcription.api_key", Err: errors.New("cannot be empty")}
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.AuthHeader == "" {
		config.AuthHeader = defaultAuthHeader
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger,
		metrics: m,
	}, nil
}

// TranscribeSegment encodes one segment and transcribes it. It never fails:
// any error is logged and reported through the result's Status and Err,
// with empty Text.
func (c *Client) TranscribeSegment(ctx context.Context, seg Segment, index int, opts Options) types.SegmentResult {
	start := time.Now()
	result := types.SegmentResult{Index: index}

	text, err := c.transcribeEncoded(ctx, seg, index, opts)
	switch {
	case err != nil:
		result.Status = types.SegmentFailed
		result.Err = err
		c.logFailure(index, err)
	case text == "":
		result.Status = types.SegmentEmpty
		c.logger.Info(fmt.Sprintf("Chunk %d transcribed successfully.", index), slog.Bool("empty", true))
	default:
		result.Status = types.SegmentSuccess
		result.Text = text
		c.logger.Info(fmt.Sprintf("Chunk %d transcribed successfully.", index))
	}

	c.metrics.ObserveSegment(result.Status, time.Since(start), seg.Duration())
	return result
}

func (c *Client) transcribeEncoded(ctx context.Context, seg Segment, index int, opts Options) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &types.SegmentTranscriptionError{Index: index, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	data, err := seg.EncodeWAV()
	if err != nil {
		return "", &types.SegmentTranscriptionError{Index: index, Err: fmt.Errorf("failed to export wav: %w", err)}
	}
	return c.Transcribe(ctx, data, index, opts)
}

// Transcribe performs a single request for already encoded WAV bytes.
// It returns the service's "transcript" field with surrounding whitespace
// trimmed, not the raw text. Any failure is returned as
// *types.SegmentTranscriptionError.
func (c *Client) Transcribe(ctx context.Context, wav []byte, index int, opts Options) (string, error) {
	startTime := time.Now()
	c.incrementTotalRequests()

	text, err := c.doRequest(ctx, wav, index, opts)
	if err != nil {
		c.incrementFailedRequests()
		return "", err
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(time.Since(startTime))
	return text, nil
}

// doRequest performs a single HTTP request to the transcription API
func (c *Client) doRequest(ctx context.Context, wav []byte, index int, opts Options) (string, error) {
	body, contentType, err := createMultipartRequest(wav, opts)
	if err != nil {
		return "", &types.SegmentTranscriptionError{Index: index, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return "", &types.SegmentTranscriptionError{Index: index, Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(c.config.AuthHeader, c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &types.SegmentTranscriptionError{Index: index, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &types.SegmentTranscriptionError{
			Index:      index,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &types.SegmentTranscriptionError{
			Index:      index,
			StatusCode: resp.StatusCode,
			Err:        errors.New(truncate(strings.TrimSpace(string(respBody)), maxErrorBody)),
		}
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &types.SegmentTranscriptionError{
			Index:      index,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to parse response JSON: %w", err),
		}
	}

	return strings.TrimSpace(parsed.Transcript), nil
}

// createMultipartRequest creates a multipart/form-data request body
func createMultipartRequest(wav []byte, opts Options) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")
	fileWriter, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := []struct{ key, value string }{
		{"language_code", opts.LanguageCode},
		{"model", opts.Model},
		{"with_timestamps", strconv.FormatBool(opts.WithTimestamps)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) logFailure(index int, err error) {
	var segErr *types.SegmentTranscriptionError
	if errors.As(err, &segErr) && segErr.StatusCode != 0 {
		c.logger.Error(fmt.Sprintf("Chunk %d failed with status: %d", index, segErr.StatusCode),
			slog.String("response", segErr.Err.Error()))
		return
	}
	c.logger.Error(fmt.Sprintf("Chunk %d error: %v", index, err))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}
