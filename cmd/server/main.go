package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codebuildervaibhav/chunked-transcription/internal/audio"
	"github.com/codebuildervaibhav/chunked-transcription/internal/cleanup"
	"github.com/codebuildervaibhav/chunked-transcription/internal/config"
	"github.com/codebuildervaibhav/chunked-transcription/internal/handlers"
	"github.com/codebuildervaibhav/chunked-transcription/internal/logging"
	"github.com/codebuildervaibhav/chunked-transcription/internal/metrics"
	"github.com/codebuildervaibhav/chunked-transcription/internal/pipeline"
	"github.com/codebuildervaibhav/chunked-transcription/internal/queue"
	"github.com/codebuildervaibhav/chunked-transcription/internal/storage"
	"github.com/codebuildervaibhav/chunked-transcription/internal/transcription"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to YAML config file")
	envFile := flag.String("env", ".env", "Path to .env file holding the API key")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}
	cfg.ResolveCredential()

	logBuffer := logging.NewLogBuffer(1000)
	log := logging.New(cfg.Logging, logBuffer)
	slog.SetDefault(log)

	if err := cfg.ValidateServer(); err != nil {
		log.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		log.Error("Failed to create temp directory", slog.Any("error", err))
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		log.Error("Failed to create output directory", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Initializing components...")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:   cfg.Transcription.Endpoint,
		APIKey:     cfg.Transcription.APIKey,
		AuthHeader: cfg.Transcription.AuthHeader,
		Timeout:    cfg.Transcription.Timeout(),
	}, log, m)
	if err != nil {
		log.Error("Failed to initialize transcription client", slog.Any("error", err))
		os.Exit(1)
	}

	p := pipeline.New(audio.NewSegmenter(cfg.Storage.TempDir), client, log, m)

	// Google Drive client (optional - may fail if credentials not set up)
	var uploader queue.Uploader
	if cfg.GoogleDrive.Enabled {
		driveClient, err := storage.NewDriveClient(ctx,
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Warn("Google Drive not available, transcripts will only be saved locally", slog.Any("error", err))
		} else {
			uploader = driveClient
			log.Info("Google Drive integration enabled")
		}
	}

	dbPath := cfg.Storage.Database
	if dbPath == "" {
		dbPath = "transcripts.db"
	}
	db, err := storage.NewMetadataDB(dbPath)
	if err != nil {
		log.Error("Failed to initialize database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	workerPool := queue.NewWorkerPool(
		cfg.Workers.Count,
		p,
		storage.NewLocalStorage(cfg.Storage.OutputDir),
		uploader,
		db,
		queue.Options{
			Transcription: transcription.Options{
				LanguageCode:   cfg.Transcription.LanguageCode,
				Model:          cfg.Transcription.Model,
				WithTimestamps: cfg.Transcription.WithTimestamps,
			},
			ChunkDurationMs: cfg.Audio.ChunkDurationMs,
		},
		log,
	)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		log,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.Limits.MaxFileSizeMB * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: logBuffer}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	uploadHandler := handlers.NewUploadHandler(workerPool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB, log)
	streamHandler := handlers.NewStreamHandler(workerPool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB, log)
	transcriptHandler := handlers.NewTranscriptHandler(workerPool, db, log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": version,
			"client":  client.GetStats(),
		})
	})

	app.Post("/upload", uploadHandler.Handle)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stream", websocket.New(streamHandler.Handle))

	transcriptHandler.Register(app)

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Server starting",
		slog.String("addr", addr),
		slog.String("model", cfg.Transcription.Model),
		slog.String("language", cfg.Transcription.LanguageCode),
		slog.Int("chunk_ms", cfg.Audio.ChunkDurationMs))

	go func() {
		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error("Shutdown failed", slog.Any("error", err))
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Error("Server failed", slog.Any("error", err))
	}
}
