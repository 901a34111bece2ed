package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/chunked-transcription/internal/audio"
	"github.com/codebuildervaibhav/chunked-transcription/internal/cleanup"
	"github.com/codebuildervaibhav/chunked-transcription/internal/config"
	"github.com/codebuildervaibhav/chunked-transcription/internal/logging"
	"github.com/codebuildervaibhav/chunked-transcription/internal/pipeline"
	"github.com/codebuildervaibhav/chunked-transcription/internal/storage"
	"github.com/codebuildervaibhav/chunked-transcription/internal/transcription"
	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

type cliFlags struct {
	configPath string
	envFile    string
	input      string
	outputDir  string
	model      string
	language   string
	chunkMs    int
	timestamps bool
	timeout    int
	database   string
	upload     bool
}

func parseFlags(args []string) (*cliFlags, map[string]bool, error) {
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	f := &cliFlags{}

	fs.StringVar(&f.configPath, "config", config.DefaultConfigPath, "Path to YAML config file (optional)")
	fs.StringVar(&f.envFile, "env", ".env", "Path to .env file holding the API key")
	fs.StringVar(&f.input, "input", "", "Audio file to transcribe")
	fs.StringVar(&f.outputDir, "output-dir", "", "Directory for the transcript CSV")
	fs.StringVar(&f.model, "model", "", "Speech-to-text model")
	fs.StringVar(&f.language, "lang", "", "Language code, e.g. hi-IN")
	fs.IntVar(&f.chunkMs, "chunk-ms", 0, "Segment length in milliseconds")
	fs.BoolVar(&f.timestamps, "timestamps", false, "Request word timestamps from the service")
	fs.IntVar(&f.timeout, "timeout", 0, "Per-segment request timeout in seconds")
	fs.StringVar(&f.database, "db", "", "SQLite database for run metadata (optional)")
	fs.BoolVar(&f.upload, "upload", false, "Upload the transcript to Google Drive")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config, f *cliFlags, set map[string]bool) {
	if set["input"] {
		cfg.Audio.InputPath = f.input
	}
	if set["output-dir"] {
		cfg.Storage.OutputDir = f.outputDir
	}
	if set["model"] {
		cfg.Transcription.Model = f.model
	}
	if set["lang"] {
		cfg.Transcription.LanguageCode = f.language
	}
	if set["chunk-ms"] {
		cfg.Audio.ChunkDurationMs = f.chunkMs
	}
	if set["timestamps"] {
		cfg.Transcription.WithTimestamps = f.timestamps
	}
	if set["timeout"] {
		cfg.Transcription.TimeoutSeconds = f.timeout
	}
	if set["db"] {
		cfg.Storage.Database = f.database
	}
	if set["upload"] {
		cfg.GoogleDrive.Enabled = f.upload
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	f, set, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	applyFlags(cfg, f, set)

	if err := config.LoadEnv(f.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		return 1
	}
	cfg.ResolveCredential()

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := transcribe(ctx, cfg, logger, stdout); err != nil {
		logger.Error("Transcription failed", slog.Any("error", err))
		return 1
	}
	return 0
}

// transcribe runs the pipeline and prints the transcript to stdout. A failed
// save is returned only after the transcript has been printed and recorded.
func transcribe(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		return &types.PersistenceError{Path: cfg.Storage.TempDir, Err: err}
	}
	cleanup.NewScheduler(cfg.Storage.TempDir, time.Hour, time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour, logger).Sweep()

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:   cfg.Transcription.Endpoint,
		APIKey:     cfg.Transcription.APIKey,
		AuthHeader: cfg.Transcription.AuthHeader,
		Timeout:    cfg.Transcription.Timeout(),
	}, logger, nil)
	if err != nil {
		return err
	}

	p := pipeline.New(audio.NewSegmenter(cfg.Storage.TempDir), client, logger, nil)

	opts := transcription.Options{
		LanguageCode:   cfg.Transcription.LanguageCode,
		Model:          cfg.Transcription.Model,
		WithTimestamps: cfg.Transcription.WithTimestamps,
	}

	result, err := p.TranscribeFile(ctx, cfg.Audio.InputPath, opts, cfg.Audio.ChunkDurationMs)
	if err != nil {
		return err
	}
	result.JobID = uuid.New().String()

	requestName := strings.TrimSuffix(filepath.Base(cfg.Audio.InputPath), filepath.Ext(cfg.Audio.InputPath))

	var saveErr error
	if result.Text == "" {
		logger.Warn("No transcription generated.", slog.Int("failed_segments", result.FailedSegments()))
	} else if localPath, err := storage.NewLocalStorage(cfg.Storage.OutputDir).SaveTranscript(result, ""); err != nil {
		saveErr = err
		logger.Error("Local save failed", slog.Any("error", err))
	} else {
		result.LocalPath = localPath
		logger.Info("Transcription saved to: " + localPath)

		if cfg.GoogleDrive.Enabled {
			result.GDriveURL = uploadToDrive(ctx, cfg.GoogleDrive, logger, requestName, result)
		}
	}

	if cfg.Storage.Database != "" {
		if err := recordRun(cfg.Storage.Database, requestName, result); err != nil {
			logger.Error("Failed to record run metadata", slog.Any("error", err))
		}
	}

	if result.Text != "" {
		fmt.Fprintln(stdout, result.Text)
	}
	return saveErr
}

func uploadToDrive(ctx context.Context, cfg config.GoogleDriveConfig, logger *slog.Logger, requestName string, result *types.TranscriptionResult) string {
	drive, err := storage.NewDriveClient(ctx, cfg.CredentialsFile, cfg.TokenFile, cfg.FolderName)
	if err != nil {
		logger.Warn("Google Drive not available, keeping local copy only", slog.Any("error", err))
		return ""
	}

	url, err := drive.Upload(ctx, requestName, result)
	if err != nil {
		logger.Warn("Google Drive upload failed", slog.Any("error", err))
		return ""
	}
	logger.Info("Transcript uploaded to Google Drive", slog.String("url", url))
	return url
}

func recordRun(dbPath, requestName string, result *types.TranscriptionResult) error {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	db, err := storage.NewMetadataDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.SaveTranscript(result.JobID, requestName, types.SourceCLI, result)
}
