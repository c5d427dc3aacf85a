package inference

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/sysinfo"
	"go.uber.org/zap"
)

// HostSnapshot returns a snapshot of host resources.
type HostSnapshot func() (sysinfo.HostInfo, error)

// Runner loads the model and invokes generation for one job.
type Runner struct {
	engine   Engine
	logger   *zap.Logger
	snapshot HostSnapshot
}

// NewRunner creates a runner over the given engine. snapshot may be nil.
func NewRunner(engine Engine, logger *zap.Logger, snapshot HostSnapshot) *Runner {
	return &Runner{
		engine:   engine,
		logger:   logger.Named("inference"),
		snapshot: snapshot,
	}
}

// LoadModel loads the request's model with its resource parameters.
// Any engine failure is returned as a ModelLoadError.
func (r *Runner) LoadModel(ctx context.Context, req models.InferenceRequest) (Model, error) {
	r.logger.Info("Using model",
		zap.String("model_path", req.ModelPath),
		zap.Int("n_ctx", req.ContextSize),
		zap.Int("n_threads", req.ThreadCount),
	)
	r.checkHost(req)

	start := time.Now()
	model, err := r.engine.Load(ctx, req.ModelPath, req.ContextSize, req.ThreadCount)
	if err != nil {
		r.logger.Error("Failed to load model", zap.String("model_path", req.ModelPath), zap.Error(err))
		var loadErr *apperrors.ModelLoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, apperrors.NewModelLoadError(req.ModelPath, req.ContextSize, req.ThreadCount, err)
	}
	r.logger.Info("Model loaded", zap.Duration("duration", time.Since(start)))
	return model, nil
}

// Generate runs the request's prompt through the model and returns one
// result per engine choice, in engine order, with trimmed text.
func (r *Runner) Generate(ctx context.Context, model Model, req models.InferenceRequest) ([]models.GenerationResult, error) {
	r.logger.Info("Generating",
		zap.String("prompt", req.Prompt),
		zap.Int("max_tokens", req.MaxTokens),
	)

	start := time.Now()
	choices, err := model.Generate(ctx, req.Prompt, req.MaxTokens)
	if err != nil {
		r.logger.Error("Generation failed", zap.Error(err))
		var genErr *apperrors.GenerationError
		if errors.As(err, &genErr) {
			return nil, err
		}
		return nil, apperrors.NewGenerationError(req.MaxTokens, err)
	}

	results := make([]models.GenerationResult, 0, len(choices))
	for i, choice := range choices {
		text := strings.TrimSpace(choice.Text)
		r.logger.Info("Output generated", zap.Int("output", i+1), zap.String("text", text))
		results = append(results, models.GenerationResult{Index: i, Text: text})
	}
	r.logger.Info("Generation finished", zap.Int("choices", len(results)), zap.Duration("duration", time.Since(start)))
	return results, nil
}

// checkHost logs the host snapshot and any resource warnings. It never fails the job.
func (r *Runner) checkHost(req models.InferenceRequest) {
	if r.snapshot == nil {
		return
	}
	info, err := r.snapshot()
	if err != nil {
		r.logger.Debug("Host resource snapshot incomplete", zap.Error(err))
	}
	r.logger.Debug("Host resources", info.Fields()...)

	var modelBytes int64
	if st, statErr := os.Stat(req.ModelPath); statErr == nil {
		modelBytes = st.Size()
	}
	for _, w := range info.Warnings(req.ThreadCount, modelBytes) {
		r.logger.Warn(w)
	}
}
