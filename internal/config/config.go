package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Engine types understood by the inference runner.
const (
	EngineTypeCLI    = "cli"    // llama.cpp CLI binary, one subprocess per generation
	EngineTypeServer = "server" // llama.cpp server subprocess, OpenAI-compatible completions API
)

// Write failure policies for the result writer.
const (
	OnWriteErrorAbort    = "abort"
	OnWriteErrorContinue = "continue"
)

// EngineSettings holds inference engine configuration.
type EngineSettings struct {
	Type           string        `yaml:"type"` // "cli" or "server"
	CLIPath        string        `yaml:"cli_path"`
	ServerPath     string        `yaml:"server_path"`
	ServerHost     string        `yaml:"server_host"`
	ServerPort     int           `yaml:"server_port"`
	ServerURL      string        `yaml:"server_url,omitempty"` // Attach to a running server instead of spawning one
	StartupTimeout time.Duration `yaml:"startup_timeout"` // Readiness wait for the server engine
	ExtraArgs      []string      `yaml:"extra_args,omitempty"`
}

// ResultsSettings holds result writer configuration.
type ResultsSettings struct {
	OnWriteError string `yaml:"on_write_error"` // "abort" or "continue"
}

// StatusSettings holds NATS status reporting configuration.
type StatusSettings struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	JobID          string        `yaml:"job_id,omitempty"` // Generated when empty
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
}

// ArtifactSettings holds the optional object storage mirror configuration.
type ArtifactSettings struct {
	Enabled          bool          `yaml:"enabled"`
	Endpoint         string        `yaml:"endpoint"`
	AccessKeyID      string        `yaml:"access_key_id"`
	SecretAccessKey  string        `yaml:"secret_access_key"`
	UseSSL           bool          `yaml:"use_ssl"`
	Region           string        `yaml:"region"`
	Bucket           string        `yaml:"bucket"`
	Prefix           string        `yaml:"prefix"`
	AutoCreateBucket bool          `yaml:"auto_create_bucket"`
	UploadTimeout    time.Duration `yaml:"upload_timeout"`
}

// Config holds the application settings for the task runner. None of these
// settings change the job contract carried by TASK_RESULTS_DIR and APP_PARAMS.
type Config struct {
	InstanceID string `yaml:"instance_id"`
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file,omitempty"` // Optional JSON log file teed with the console

	Engine    EngineSettings   `yaml:"engine"`
	Results   ResultsSettings  `yaml:"results"`
	Status    StatusSettings   `yaml:"status"`
	Artifacts ArtifactSettings `yaml:"artifacts"`

	Logger *zap.Logger `yaml:"-"`
}

// DefaultConfig returns the built-in settings used when no file is present.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	instanceID := "llama4-task-" + hostname
	if hostname == "" {
		instanceID = "llama4-task-unknown"
	}

	return &Config{
		InstanceID: instanceID,
		LogLevel:   "info",
		Engine: EngineSettings{
			Type:           EngineTypeCLI,
			CLIPath:        "llama-cli",
			ServerPath:     "llama-server",
			ServerHost:     "127.0.0.1",
			ServerPort:     18080,
			StartupTimeout: 10 * time.Minute,
		},
		Results: ResultsSettings{
			OnWriteError: OnWriteErrorAbort,
		},
		Status: StatusSettings{
			URL:            "nats://localhost:4222",
			SubjectPrefix:  "dante.jobs.status",
			ConnectTimeout: 5 * time.Second,
			FlushTimeout:   2 * time.Second,
		},
		Artifacts: ArtifactSettings{
			Endpoint:      "localhost:9000",
			Region:        "us-east-1",
			Bucket:        "dante-results",
			Prefix:        "llama4",
			UploadTimeout: 2 * time.Minute,
		},
	}
}

// LoadConfig reads application settings from the given YAML file path.
// A missing file yields the defaults; an unreadable or malformed file is a ConfigError.
func LoadConfig(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("Configuration file not found, using defaults", zap.String("path", path))
		resolveSecrets(defaults, &EnvSecretLoader{})
		defaults.Logger = logger
		return defaults, nil
	} else if err != nil {
		return nil, apperrors.NewConfigError("config_file", path, "failed to read configuration file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.NewConfigError("config_file", path, "failed to parse configuration YAML", err)
	}

	applyDefaultsIfNotSet(&cfg, defaults)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resolveSecrets(&cfg, &EnvSecretLoader{})
	cfg.Logger = logger

	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}
	logger.Info("Configuration loaded", zap.String("path", path), zap.String("instance_id", cfg.InstanceID))
	return &cfg, nil
}

// applyDefaultsIfNotSet applies default values to cfg fields if they are zero-valued.
func applyDefaultsIfNotSet(cfg *Config, defaults *Config) {
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaults.InstanceID
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	// Engine
	if cfg.Engine.Type == "" {
		cfg.Engine.Type = defaults.Engine.Type
	}
	if cfg.Engine.CLIPath == "" {
		cfg.Engine.CLIPath = defaults.Engine.CLIPath
	}
	if cfg.Engine.ServerPath == "" {
		cfg.Engine.ServerPath = defaults.Engine.ServerPath
	}
	if cfg.Engine.ServerHost == "" {
		cfg.Engine.ServerHost = defaults.Engine.ServerHost
	}
	if cfg.Engine.ServerPort == 0 {
		cfg.Engine.ServerPort = defaults.Engine.ServerPort
	}
	if cfg.Engine.StartupTimeout == 0 {
		cfg.Engine.StartupTimeout = defaults.Engine.StartupTimeout
	}

	if cfg.Results.OnWriteError == "" {
		cfg.Results.OnWriteError = defaults.Results.OnWriteError
	}

	// Status reporting
	if cfg.Status.URL == "" {
		cfg.Status.URL = defaults.Status.URL
	}
	if cfg.Status.SubjectPrefix == "" {
		cfg.Status.SubjectPrefix = defaults.Status.SubjectPrefix
	}
	if cfg.Status.ConnectTimeout == 0 {
		cfg.Status.ConnectTimeout = defaults.Status.ConnectTimeout
	}
	if cfg.Status.FlushTimeout == 0 {
		cfg.Status.FlushTimeout = defaults.Status.FlushTimeout
	}

	// Artifact mirror
	if cfg.Artifacts.Endpoint == "" {
		cfg.Artifacts.Endpoint = defaults.Artifacts.Endpoint
	}
	if cfg.Artifacts.Region == "" {
		cfg.Artifacts.Region = defaults.Artifacts.Region
	}
	if cfg.Artifacts.Bucket == "" {
		cfg.Artifacts.Bucket = defaults.Artifacts.Bucket
	}
	if cfg.Artifacts.Prefix == "" {
		cfg.Artifacts.Prefix = defaults.Artifacts.Prefix
	}
	if cfg.Artifacts.UploadTimeout == 0 {
		cfg.Artifacts.UploadTimeout = defaults.Artifacts.UploadTimeout
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Engine.Type {
	case EngineTypeCLI, EngineTypeServer:
	default:
		return apperrors.NewConfigError("engine.type", c.Engine.Type, fmt.Sprintf("must be %q or %q", EngineTypeCLI, EngineTypeServer), nil)
	}
	switch c.Results.OnWriteError {
	case OnWriteErrorAbort, OnWriteErrorContinue:
	default:
		return apperrors.NewConfigError("results.on_write_error", c.Results.OnWriteError, fmt.Sprintf("must be %q or %q", OnWriteErrorAbort, OnWriteErrorContinue), nil)
	}
	if c.Engine.ServerPort < 0 || c.Engine.ServerPort > 65535 {
		return apperrors.NewConfigError("engine.server_port", fmt.Sprint(c.Engine.ServerPort), "out of range", nil)
	}
	return nil
}
