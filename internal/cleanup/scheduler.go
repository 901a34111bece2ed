package cleanup

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Scheduler handles cleanup of temporary files
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// SweepStats summarizes one cleanup pass
type SweepStats struct {
	Files int
	Bytes int64
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, interval, maxAge time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start runs one sweep immediately and then one per interval
func (s *Scheduler) Start() {
	s.logger.Info("Running initial temp file cleanup", slog.String("dir", s.tempDir))
	s.Sweep()

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info("Cleanup scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("max_age", s.maxAge))
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("Cleanup scheduler stopped")
	})
}

// Sweep removes files older than the max age from the temp directory
func (s *Scheduler) Sweep() SweepStats {
	now := s.now()
	var stats SweepStats

	err := filepath.WalkDir(s.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}

		if err := os.Remove(path); err != nil {
			s.logger.Warn("Failed to delete old file", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		stats.Files++
		stats.Bytes += info.Size()
		s.logger.Debug("Deleted old temp file",
			slog.String("file", filepath.Base(path)),
			slog.Duration("age", age.Round(time.Minute)),
			slog.Int64("size_kb", info.Size()/1024))
		return nil
	})
	if err != nil {
		s.logger.Error("Error during cleanup", slog.Any("error", err))
	}

	if stats.Files > 0 {
		s.logger.Info("Cleanup complete",
			slog.Int("files", stats.Files),
			slog.Float64("freed_mb", float64(stats.Bytes)/(1024*1024)))
	}
	return stats
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
