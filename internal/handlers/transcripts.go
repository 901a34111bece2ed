package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/chunked-transcription/internal/queue"
	"github.com/codebuildervaibhav/chunked-transcription/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobLookup reports the state of queued and finished jobs
type JobLookup interface {
	Job(id string) (queue.JobView, bool)
}

// TranscriptStore reads stored run metadata
type TranscriptStore interface {
	GetTranscript(jobID string) (*storage.TranscriptRecord, error)
	ListTranscripts(limit int) ([]storage.TranscriptRecord, error)
	ListSegments(jobID string) ([]storage.SegmentRecord, error)
}

// TranscriptHandler serves job status and stored transcripts
type TranscriptHandler struct {
	jobs   JobLookup
	store  TranscriptStore
	logger *slog.Logger
}

// NewTranscriptHandler creates a new transcript handler
func NewTranscriptHandler(jobs JobLookup, store TranscriptStore, logger *slog.Logger) *TranscriptHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptHandler{jobs: jobs, store: store, logger: logger}
}

// Register mounts the read-only routes on app
func (h *TranscriptHandler) Register(app fiber.Router) {
	app.Get("/jobs/:id", h.GetJob)
	app.Get("/transcripts", h.List)
	app.Get("/transcripts/:id", h.Get)
	app.Get("/transcripts/:id/segments", h.Segments)
	app.Get("/transcripts/:id/text", h.Text)
}

// GetJob returns the in-memory status of a job
func (h *TranscriptHandler) GetJob(c *fiber.Ctx) error {
	view, ok := h.jobs.Job(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
	}
	return c.JSON(view)
}

// List returns the most recent transcripts
func (h *TranscriptHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	transcripts, err := h.store.ListTranscripts(limit)
	if err != nil {
		h.logger.Error("Failed to list transcripts", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(transcripts)
}

// Get returns the metadata of one transcript
func (h *TranscriptHandler) Get(c *fiber.Ctx) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// Segments returns the per-segment outcomes of one transcript
func (h *TranscriptHandler) Segments(c *fiber.Ctx) error {
	if _, err := h.lookup(c); err != nil {
		return err
	}

	segments, err := h.store.ListSegments(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(segments)
}

// Text returns the collated transcript as plain text
func (h *TranscriptHandler) Text(c *fiber.Ctx) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}

	if rec.LocalPath == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No transcription generated"})
	}

	text, err := storage.ReadTranscript(rec.LocalPath)
	if err != nil {
		h.logger.Error("Failed to read transcript file", slog.String("path", rec.LocalPath), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read transcript file"})
	}

	return c.SendString(text)
}

func (h *TranscriptHandler) lookup(c *fiber.Ctx) (*storage.TranscriptRecord, error) {
	rec, err := h.store.GetTranscript(c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Transcript not found")
	}
	if err != nil {
		h.logger.Error("Failed to load transcript", slog.Any("error", err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return rec, nil
}

// ErrorHandler renders errors returned by handlers as JSON
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
