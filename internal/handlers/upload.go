package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/chunked-transcription/internal/audio"
	"github.com/codebuildervaibhav/chunked-transcription/internal/queue"
	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

// Enqueuer accepts jobs for background processing
type Enqueuer interface {
	EnqueueJob(job *queue.Job) error
}

// UploadHandler handles file uploads
type UploadHandler struct {
	queue     Enqueuer
	tempDir   string
	maxSizeMB int
	logger    *slog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(q Enqueuer, tempDir string, maxSizeMB int, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{
		queue:     q,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	requestName := strings.TrimSpace(c.FormValue("name"))
	if requestName == "" {
		requestName = "untitled"
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if h.maxSizeMB > 0 && file.Size > maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !audio.ValidateAudioFormat(file.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Unsupported audio format (supported: %s)", strings.Join(audio.SupportedFormats(), ", ")),
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, jobID+strings.ToLower(filepath.Ext(file.Filename)))

	if err := c.SaveFile(file, tempPath); err != nil {
		h.logger.Error("Failed to save uploaded file", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	job := queue.NewJob(jobID, requestName, types.SourceUpload, tempPath)
	job.LanguageCode = c.FormValue("language_code")
	job.Model = c.FormValue("model")

	if err := h.queue.EnqueueJob(job); err != nil {
		removeTemp(h.logger, tempPath)
		return enqueueError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  jobID,
		"status":  types.StatusQueued,
		"message": "File uploaded successfully, processing started",
	})
}

func enqueueError(c *fiber.Ctx, err error) error {
	if errors.Is(err, queue.ErrQueueFull) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Too many pending jobs, try again later",
			"code":  "ERR_QUEUE_FULL",
		})
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "ERR_UNAVAILABLE",
	})
}
