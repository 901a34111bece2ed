package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/chunked-transcription/internal/audio"
	"github.com/codebuildervaibhav/chunked-transcription/internal/queue"
	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

const (
	endMessage    = "END"
	formatPrefix  = "format:"
	maxNameLength = 200
)

// StreamHandler handles WebSocket audio streaming.
//
// Binary frames carry the audio file bytes. Text frames set the request
// name, or the container with "format:<ext>" (default wav). "END" closes
// the upload and queues the job.
type StreamHandler struct {
	queue     Enqueuer
	tempDir   string
	maxSizeMB int
	logger    *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(q Enqueuer, tempDir string, maxSizeMB int, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		queue:     q,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}
}

type streamReply struct {
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer      bytes.Buffer
		requestName = "stream_recording"
		ext         = ".wav"
		jobID       = uuid.New().String()
		logger      = h.logger.With(slog.String("job_id", jobID))
		maxBytes    = h.maxSizeMB * 1024 * 1024
	)

	logger.Info("WebSocket connection established")

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			logger.Warn("WebSocket closed before END", slog.Any("error", err))
			return
		}

		if messageType == websocket.TextMessage {
			msg := strings.TrimSpace(string(message))
			if msg == endMessage {
				break
			}
			if format, ok := strings.CutPrefix(msg, formatPrefix); ok {
				if ext, err = streamExtension(format); err != nil {
					logger.Warn("Rejected stream format", slog.String("format", format))
					h.reply(c, streamReply{Error: err.Error()})
					return
				}
				continue
			}
			if len(msg) > 0 && len(msg) < maxNameLength {
				requestName = msg
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			if maxBytes > 0 && buffer.Len()+len(message) > maxBytes {
				h.reply(c, streamReply{Error: "stream too large"})
				return
			}
			buffer.Write(message)
		}
	}

	if buffer.Len() == 0 {
		logger.Warn("No audio data received in stream")
		h.reply(c, streamReply{Error: "no audio received"})
		return
	}

	tempPath, err := h.tempPath(jobID + ext)
	if err != nil {
		logger.Error("Refusing stream path", slog.Any("error", err))
		h.reply(c, streamReply{Error: "failed to save stream"})
		return
	}
	if err := os.WriteFile(tempPath, buffer.Bytes(), 0644); err != nil {
		logger.Error("Failed to save stream buffer", slog.Any("error", err))
		h.reply(c, streamReply{Error: "failed to save stream"})
		return
	}

	logger.Info("Stream saved", slog.String("path", tempPath), slog.Int("bytes", buffer.Len()))

	if err := h.queue.EnqueueJob(queue.NewJob(jobID, requestName, types.SourceStream, tempPath)); err != nil {
		removeTemp(logger, tempPath)
		h.reply(c, streamReply{Error: err.Error()})
		return
	}

	h.reply(c, streamReply{JobID: jobID, Status: types.StatusQueued})
}

var errInvalidFormat = errors.New("invalid audio format")

// streamExtension turns the value of a "format:" frame into a file
// extension. Only a bare supported extension such as "mp3" or ".mp3" is
// accepted.
func streamExtension(format string) (string, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if name == "" || strings.ContainsAny(name, `/\.:`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w %q", errInvalidFormat, format)
	}
	ext := "." + name
	if !audio.ValidateAudioFormat("stream" + ext) {
		return "", fmt.Errorf("unsupported audio format %s", ext)
	}
	return ext, nil
}

// tempPath joins name onto the temp directory and fails if the result
// would land outside it.
func (h *StreamHandler) tempPath(name string) (string, error) {
	path := filepath.Join(h.tempDir, name)
	rel, err := filepath.Rel(h.tempDir, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%s escapes %s", name, h.tempDir)
	}
	return path, nil
}

func (h *StreamHandler) reply(c *websocket.Conn, r streamReply) {
	if err := c.WriteJSON(r); err != nil {
		h.logger.Warn("Failed to write WebSocket reply", slog.Any("error", err))
	}
}

func removeTemp(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove temp file", slog.String("path", path), slog.Any("error", err))
	}
}
