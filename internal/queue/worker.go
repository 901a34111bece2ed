package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/chunked-transcription/internal/storage"
	"github.com/codebuildervaibhav/chunked-transcription/internal/transcription"
	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

const (
	queueCapacity  = 100
	uploadAttempts = 3
)

// ErrQueueFull is returned when the job buffer has no room left
var ErrQueueFull = errors.New("job queue is full")

// ErrPoolStopped is returned when enqueueing after Stop
var ErrPoolStopped = errors.New("worker pool is stopped")

// Transcriber runs the full segment-and-transcribe pipeline for one file
type Transcriber interface {
	TranscribeFile(ctx context.Context, audioPath string, opts transcription.Options, chunkDurationMs int) (*types.TranscriptionResult, error)
}

// Uploader copies a saved transcript to remote storage
type Uploader interface {
	Upload(ctx context.Context, requestName string, result *types.TranscriptionResult) (string, error)
}

// Recorder stores run metadata
type Recorder interface {
	SaveTranscript(jobID, requestName, sourceType string, result *types.TranscriptionResult) error
}

// Options are the pipeline settings applied to every job
type Options struct {
	Transcription   transcription.Options
	ChunkDurationMs int
}

// WorkerPool manages a pool of workers processing transcription jobs.
// Jobs run concurrently with each other; segments within a job stay sequential.
type WorkerPool struct {
	jobQueue     chan *Job
	workerCount  int
	transcriber  Transcriber
	localStorage *storage.LocalStorage
	uploader     Uploader
	db           Recorder
	options      Options
	logger       *slog.Logger

	retryDelay func(attempt int) time.Duration

	mu      sync.RWMutex
	jobs    map[string]*Job
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool. uploader and db may be nil.
func NewWorkerPool(
	workerCount int,
	transcriber Transcriber,
	localStorage *storage.LocalStorage,
	uploader Uploader,
	db Recorder,
	options Options,
	logger *slog.Logger,
) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		jobQueue:     make(chan *Job, queueCapacity),
		workerCount:  workerCount,
		transcriber:  transcriber,
		localStorage: localStorage,
		uploader:     uploader,
		db:           db,
		options:      options,
		logger:       logger,
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		jobs: make(map[string]*Job),
	}
}

// Start launches the workers. Cancelling ctx aborts in-flight jobs.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Info("Starting worker pool", slog.Int("workers", wp.workerCount))
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes the queue and waits for queued jobs to drain
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped")
}

// EnqueueJob adds a job to the queue without blocking
func (wp *WorkerPool) EnqueueJob(job *Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	job.Status = types.StatusQueued
	job.CreatedAt = time.Now()

	select {
	case wp.jobQueue <- job:
	default:
		return ErrQueueFull
	}

	wp.jobs[job.ID] = job
	wp.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("source", job.SourceType),
		slog.String("name", job.RequestName))
	return nil
}

// Job returns a snapshot of a known job
func (wp *WorkerPool) Job(id string) (JobView, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	job, ok := wp.jobs[id]
	if !ok {
		return JobView{}, false
	}
	return job.View(), true
}

func (wp *WorkerPool) update(job *Job, fn func(*Job)) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	fn(job)
}

func (wp *WorkerPool) fail(job *Job, err error) {
	wp.update(job, func(j *Job) {
		j.Status = types.StatusFailed
		j.Error = err
		j.CompletedAt = time.Now()
	})
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	logger := wp.logger.With(slog.Int("worker", id))
	logger.Debug("Worker started")

	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic processing job",
						slog.String("job_id", job.ID),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))
					wp.fail(job, fmt.Errorf("worker panic: %v", r))
					wp.cleanupTempFile(job.FilePath)
				}
			}()

			wp.processJob(ctx, logger.With(slog.String("job_id", job.ID)), job)
		}()
	}
}

// processJob runs the pipeline and persists its result
func (wp *WorkerPool) processJob(ctx context.Context, logger *slog.Logger, job *Job) {
	defer wp.cleanupTempFile(job.FilePath)

	logger.Info("Processing job")
	wp.update(job, func(j *Job) {
		j.Status = types.StatusProcessing
		j.StartedAt = time.Now()
	})

	opts := wp.options.Transcription
	if job.LanguageCode != "" {
		opts.LanguageCode = job.LanguageCode
	}
	if job.Model != "" {
		opts.Model = job.Model
	}

	// Step 1: segment and transcribe
	result, err := wp.transcriber.TranscribeFile(ctx, job.FilePath, opts, wp.options.ChunkDurationMs)
	if err != nil {
		logger.Error("Transcription failed", slog.Any("error", err))
		wp.fail(job, fmt.Errorf("transcription failed: %w", err))
		return
	}
	result.JobID = job.ID

	// Step 2: save locally
	if result.Text == "" {
		logger.Warn("No transcription generated.", slog.Int("failed_segments", result.FailedSegments()))
	} else {
		localPath, err := wp.localStorage.SaveTranscript(result, transcriptTag(job))
		if err != nil {
			logger.Error("Local save failed", slog.Any("error", err))
			wp.record(logger, job, result)
			wp.update(job, func(j *Job) { j.Result = result })
			wp.fail(job, fmt.Errorf("local save failed: %w", err))
			return
		}
		result.LocalPath = localPath

		// Step 3: upload to Google Drive (with retry)
		if wp.uploader != nil {
			result.GDriveURL = wp.upload(ctx, logger, job.RequestName, result)
		}
	}

	// Step 4: save metadata
	wp.record(logger, job, result)

	wp.update(job, func(j *Job) {
		j.Result = result
		j.Status = types.StatusCompleted
		j.CompletedAt = time.Now()
	})
	logger.Info("Job completed",
		slog.String("local", result.LocalPath),
		slog.String("gdrive", result.GDriveURL),
		slog.Int("words", result.WordCount))
}

func (wp *WorkerPool) record(logger *slog.Logger, job *Job, result *types.TranscriptionResult) {
	if wp.db == nil {
		return
	}
	if err := wp.db.SaveTranscript(job.ID, job.RequestName, job.SourceType, result); err != nil {
		logger.Error("Database save failed", slog.Any("error", err))
	}
}

func (wp *WorkerPool) upload(ctx context.Context, logger *slog.Logger, requestName string, result *types.TranscriptionResult) string {
	var err error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		var url string
		url, err = wp.uploader.Upload(ctx, requestName, result)
		if err == nil {
			return url
		}
		logger.Warn("Google Drive upload failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", uploadAttempts),
			slog.Any("error", err))
		if attempt < uploadAttempts {
			select {
			case <-time.After(wp.retryDelay(attempt)):
			case <-ctx.Done():
				return ""
			}
		}
	}
	logger.Warn("Google Drive upload gave up, keeping local copy only")
	return ""
}

func transcriptTag(job *Job) string {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if job.RequestName == "" {
		return id
	}
	return job.RequestName + "_" + id
}

// cleanupTempFile removes a temporary file
func (wp *WorkerPool) cleanupTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		wp.logger.Warn("Failed to cleanup temp file", slog.String("path", filePath), slog.Any("error", err))
	}
}
