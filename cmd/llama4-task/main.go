package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dante-gpu/dante-backend/llama4-task/internal/config"
	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/inference"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/logging"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/nats"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/pipeline"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/results"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/storage"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/sysinfo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	Version   = "dev"     // Injected at build time
	BuildDate = "unknown" // Injected at build time
)

// CLI flags
var (
	configPath  = flag.String("config", filepath.Join("configs", "config.yaml"), "Path to the configuration file")
	envFile     = flag.String("env-file", "", "Optional dotenv file merged into the environment before the job is read")
	logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("llama4-task %s (built %s)\n", Version, BuildDate)
		return
	}

	os.Exit(run())
}

func run() int {
	tempLogger, _ := logging.Setup("info", "", os.Stderr)

	if err := config.LoadEnvFile(*envFile); err != nil {
		tempLogger.Error("Failed to load environment file", zap.String("error_kind", apperrors.Kind(err)), zap.Error(err))
		return 1
	}

	cfg, err := config.LoadConfig(*configPath, tempLogger)
	if err != nil {
		tempLogger.Error("Failed to load configuration", zap.String("error_kind", apperrors.Kind(err)), zap.Error(err))
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stderr)
	if err != nil {
		tempLogger.Error("Failed to setup logger with config level", zap.Error(err))
		return 1
	}
	defer logger.Sync()
	cfg.Logger = logger

	jobID := cfg.Status.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	logger.Info("Starting llama4 inference task",
		zap.String("version", Version),
		zap.String("buildDate", BuildDate),
		zap.String("instanceID", cfg.InstanceID),
		zap.String("jobID", jobID),
		zap.String("engine", cfg.Engine.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{
		JobID:                jobID,
		ProviderID:           cfg.InstanceID,
		ContinueOnWriteError: cfg.Results.OnWriteError == config.OnWriteErrorContinue,
	}

	if cfg.Status.Enabled {
		natsClient, err := nats.NewClient(cfg.Status, cfg.InstanceID, logger)
		if err != nil {
			logger.Warn("Status reporting disabled, NATS unavailable", zap.Error(err))
		} else {
			defer natsClient.Stop()
			opts.Reporter = natsClient
		}
	}

	if cfg.Artifacts.Enabled {
		mirror, err := newMirror(ctx, cfg.Artifacts, jobID, logger)
		if err != nil {
			logger.Error("Failed to initialize artifact mirror", zap.String("error_kind", apperrors.Kind(err)), zap.Error(err))
			return 1
		}
		opts.Mirror = mirror
	}

	snapshot := func() (sysinfo.HostInfo, error) {
		return sysinfo.Collect(filepath.Dir(models.DefaultModelPath))
	}
	runner := inference.NewRunner(newEngine(cfg.Engine, logger), logger, snapshot)

	artifacts, err := pipeline.New(runner, opts, logger).Run(ctx)
	if err != nil {
		logger.Error("Job failed",
			zap.String("error_kind", apperrors.Kind(err)),
			zap.Int("artifacts_written", len(artifacts)),
			zap.Error(err),
		)
		return 1
	}

	logger.Info("Job completed", zap.Int("artifacts", len(artifacts)))
	return 0
}

// newEngine selects the inference engine named by the configuration.
func newEngine(settings config.EngineSettings, logger *zap.Logger) inference.Engine {
	if settings.Type == config.EngineTypeServer {
		return inference.NewServerEngine(inference.ServerSettings{
			Binary:         settings.ServerPath,
			Host:           settings.ServerHost,
			Port:           settings.ServerPort,
			URL:            settings.ServerURL,
			StartupTimeout: settings.StartupTimeout,
			ExtraArgs:      settings.ExtraArgs,
		}, logger)
	}
	return inference.NewCLIEngine(settings.CLIPath, settings.ExtraArgs, logger)
}

func newMirror(ctx context.Context, settings config.ArtifactSettings, jobID string, logger *zap.Logger) (results.Mirror, error) {
	mirror, err := storage.NewMinioMirror(settings, jobID, logger)
	if err != nil {
		return nil, apperrors.NewConfigError("artifacts", settings.Endpoint, "invalid artifact storage settings", err)
	}
	if settings.AutoCreateBucket {
		if err := mirror.EnsureBucket(ctx); err != nil {
			return nil, apperrors.NewConfigError("artifacts.bucket", settings.Bucket, "artifact bucket is not usable", err)
		}
	}
	return mirror, nil
}
