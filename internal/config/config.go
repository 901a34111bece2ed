package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/chunked-transcription/internal/types"
)

// Default values used when the config file omits a setting
const (
	DefaultConfigPath   = "config/config.yaml"
	DefaultEndpoint     = "https://api.sarvam.ai/speech-to-text"
	DefaultAPIKeyEnv    = "SARVAM_AI_API"
	DefaultAuthHeader   = "api-subscription-key"
	DefaultModel        = "saarika:v2"
	DefaultLanguage     = "hi-IN"
	DefaultChunkMs      = 5 * 60 * 1000
	DefaultInputPath    = "data/Recording2.wav"
	DefaultOutputDir    = "outputs"
	DefaultTempDir      = "temp"
	DefaultTimeoutSecs  = 120
	DefaultWorkerCount  = 2
	DefaultMaxFileSize  = 500
	DefaultServerPort   = 8080
	DefaultDriveFolder  = "Transcripts"
	DefaultCleanupEvery = 30
	DefaultCleanupAge   = 24
)

// Config represents the application configuration
type Config struct {
	Transcription TranscriptionConfig `yaml:"transcription"`
	Audio         AudioConfig         `yaml:"audio"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Server        ServerConfig        `yaml:"server"`
	Workers       WorkersConfig       `yaml:"workers"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	GoogleDrive   GoogleDriveConfig   `yaml:"google_drive"`
	Limits        LimitsConfig        `yaml:"limits"`
}

// TranscriptionConfig holds the remote speech-to-text settings
type TranscriptionConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKeyEnv      string `yaml:"api_key_env"`
	APIKey         string `yaml:"-"`
	AuthHeader     string `yaml:"auth_header"`
	Model          string `yaml:"model"`
	LanguageCode   string `yaml:"language_code"`
	WithTimestamps bool   `yaml:"with_timestamps"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AudioConfig holds the input and segmentation settings
type AudioConfig struct {
	InputPath       string `yaml:"input_path"`
	ChunkDurationMs int    `yaml:"chunk_duration_ms"`
}

// StorageConfig holds output locations
type StorageConfig struct {
	TempDir   string `yaml:"temp_dir"`
	OutputDir string `yaml:"output_dir"`
	Database  string `yaml:"database"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ServerConfig is used by the HTTP service only
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WorkersConfig struct {
	Count int `yaml:"count"`
}

type CleanupConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MaxAgeHours     int `yaml:"max_age_hours"`
}

// GoogleDriveConfig enables an optional copy of each transcript to Drive
type GoogleDriveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	FolderName      string `yaml:"folder_name"`
}

type LimitsConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Transcription: TranscriptionConfig{
			Endpoint:       DefaultEndpoint,
			APIKeyEnv:      DefaultAPIKeyEnv,
			AuthHeader:     DefaultAuthHeader,
			Model:          DefaultModel,
			LanguageCode:   DefaultLanguage,
			TimeoutSeconds: DefaultTimeoutSecs,
		},
		Audio: AudioConfig{
			InputPath:       DefaultInputPath,
			ChunkDurationMs: DefaultChunkMs,
		},
		Storage: StorageConfig{
			TempDir:   DefaultTempDir,
			OutputDir: DefaultOutputDir,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: DefaultServerPort,
		},
		Workers: WorkersConfig{Count: DefaultWorkerCount},
		Cleanup: CleanupConfig{
			IntervalMinutes: DefaultCleanupEvery,
			MaxAgeHours:     DefaultCleanupAge,
		},
		GoogleDrive: GoogleDriveConfig{
			CredentialsFile: "config/credentials.json",
			TokenFile:       "config/token.json",
			FolderName:      DefaultDriveFolder,
		},
		Limits: LimitsConfig{MaxFileSizeMB: DefaultMaxFileSize},
	}
}

// Load reads a YAML file on top of the defaults. It does not validate,
// because the credential is usually resolved afterwards.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &types.ConfigurationError{
			Field: path,
			Err:   fmt.Errorf("failed to parse config file: %w", err),
		}
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file does not exist
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadEnv loads .env style files into the process environment.
// Files that don't exist are skipped; existing variables win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return &types.ConfigurationError{Field: p, Err: err}
		}
	}
	return nil
}

// ResolveCredential fills Transcription.APIKey from the configured environment variable
func (c *Config) ResolveCredential() {
	if c.Transcription.APIKey != "" {
		return
	}
	env := c.Transcription.APIKeyEnv
	if env == "" {
		env = DefaultAPIKeyEnv
	}
	c.Transcription.APIKey = strings.TrimSpace(os.Getenv(env))
}

// Validate checks everything needed before the pipeline can start
func (c *Config) Validate() error {
	if err := c.Transcription.Validate(); err != nil {
		return err
	}
	if err := c.Audio.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Storage.OutputDir == "" {
		return &types.ConfigurationError{Field: "storage.output_dir", Err: errors.New("cannot be empty")}
	}
	return nil
}

// ValidateServer adds the checks only the HTTP service needs
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &types.ConfigurationError{
			Field: "server.port",
			Err:   fmt.Errorf("must be between 1 and 65535, got %d", c.Server.Port),
		}
	}
	if c.Workers.Count < 1 {
		return &types.ConfigurationError{
			Field: "workers.count",
			Err:   fmt.Errorf("must be at least 1, got %d", c.Workers.Count),
		}
	}
	if c.Limits.MaxFileSizeMB < 1 {
		return &types.ConfigurationError{
			Field: "limits.max_file_size_mb",
			Err:   fmt.Errorf("must be at least 1, got %d", c.Limits.MaxFileSizeMB),
		}
	}
	if c.Cleanup.IntervalMinutes < 1 {
		return &types.ConfigurationError{
			Field: "cleanup.interval_minutes",
			Err:   fmt.Errorf("must be at least 1, got %d", c.Cleanup.IntervalMinutes),
		}
	}
	if c.Cleanup.MaxAgeHours < 1 {
		return &types.ConfigurationError{
			Field: "cleanup.max_age_hours",
			Err:   fmt.Errorf("must be at least 1, got %d", c.Cleanup.MaxAgeHours),
		}
	}
	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.APIKey == "" {
		env := t.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv
		}
		return &types.ConfigurationError{
			Field: "transcription.api_key",
			Err:   fmt.Errorf("%s not found in environment or .env file", env),
		}
	}
	if t.Endpoint == "" {
		return &types.ConfigurationError{Field: "transcription.endpoint", Err: errors.New("cannot be empty")}
	}
	if t.Model == "" {
		return &types.ConfigurationError{Field: "transcription.model", Err: errors.New("cannot be empty")}
	}
	if t.LanguageCode == "" {
		return &types.ConfigurationError{Field: "transcription.language_code", Err: errors.New("cannot be empty")}
	}
	if t.TimeoutSeconds < 1 {
		return &types.ConfigurationError{
			Field: "transcription.timeout_seconds",
			Err:   fmt.Errorf("must be at least 1 second, got %d", t.TimeoutSeconds),
		}
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.ChunkDurationMs <= 0 {
		return &types.ConfigurationError{
			Field: "audio.chunk_duration_ms",
			Err:   fmt.Errorf("must be positive, got %d", a.ChunkDurationMs),
		}
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return &types.ConfigurationError{
			Field: "logging.level",
			Err:   fmt.Errorf("must be one of [debug, info, warn, error], got '%s'", l.Level),
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return &types.ConfigurationError{
			Field: "logging.format",
			Err:   fmt.Errorf("must be 'json' or 'text', got '%s'", l.Format),
		}
	}
	return nil
}

// Timeout returns the request timeout as a time.Duration
func (t *TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// ChunkDuration returns the chunk length as a time.Duration
func (a *AudioConfig) ChunkDuration() time.Duration {
	return time.Duration(a.ChunkDurationMs) * time.Millisecond
}
