// Package pipeline runs one inference job from configuration to written artifacts.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dante-gpu/dante-backend/llama4-task/internal/config"
	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/inference"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/results"
	"go.uber.org/zap"
)

// StatusPublisher publishes job status updates.
type StatusPublisher interface {
	PublishStatus(statusUpdate *models.TaskStatusUpdate) error
}

// Options configures a pipeline run.
type Options struct {
	JobID      string
	ProviderID string

	// Lookup reads the job environment. Nil means the process environment.
	Lookup config.LookupFunc

	ContinueOnWriteError bool
	Mirror               results.Mirror  // Optional
	Reporter             StatusPublisher // Optional
}

// Pipeline drives START → CONFIG_LOADED → MODEL_LOADED → GENERATED → WRITING → DONE,
// moving to FAILED on the first fatal error.
type Pipeline struct {
	runner *inference.Runner
	opts   Options
	logger *zap.Logger
	state  models.PipelineState
}

// New creates a pipeline for a single job.
func New(runner *inference.Runner, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		runner: runner,
		opts:   opts,
		logger: logger.Named("pipeline").With(zap.String("job_id", opts.JobID)),
		state:  models.StateStart,
	}
}

// State returns the current state.
func (p *Pipeline) State() models.PipelineState {
	return p.state
}

// Run executes the job once. The returned artifacts are those written before
// any failure.
func (p *Pipeline) Run(ctx context.Context) ([]models.ResultArtifact, error) {
	start := time.Now()
	p.logger.Info("Starting job")

	jobCfg, err := config.LoadJobConfig(p.opts.Lookup)
	if err != nil {
		return nil, p.fail(err, nil)
	}
	p.transition(models.StateConfigLoaded, zap.String("results_dir", jobCfg.ResultsDirectory))
	p.report(models.StatusInProgress, "Configuration accepted, loading model.", "", nil)

	req, err := inference.BuildRequest(jobCfg.Params)
	if err != nil {
		return nil, p.fail(err, nil)
	}

	model, err := p.runner.LoadModel(ctx, req)
	if err != nil {
		return nil, p.fail(err, nil)
	}
	p.transition(models.StateModelLoaded)

	generated, err := p.runner.Generate(ctx, model, req)
	if closeErr := model.Close(); closeErr != nil {
		p.logger.Warn("Failed to release model", zap.Error(closeErr))
	}
	if err != nil {
		return nil, p.fail(err, nil)
	}
	p.transition(models.StateGenerated, zap.Int("choices", len(generated)))

	p.transition(models.StateWriting)
	writer := results.NewWriter(jobCfg.ResultsDirectory, p.opts.ContinueOnWriteError, p.opts.Mirror, p.logger)
	artifacts, err := writer.WriteAll(ctx, generated)
	if err != nil {
		return artifacts, p.fail(err, artifacts)
	}

	p.transition(models.StateDone,
		zap.Int("artifacts", len(artifacts)),
		zap.Duration("duration", time.Since(start)),
	)
	p.report(models.StatusCompleted, fmt.Sprintf("Wrote %d result file(s).", len(artifacts)), "", artifacts)
	return artifacts, nil
}

func (p *Pipeline) transition(next models.PipelineState, fields ...zap.Field) {
	fields = append([]zap.Field{zap.String("from", string(p.state)), zap.String("to", string(next))}, fields...)
	p.logger.Info("Pipeline state changed", fields...)
	p.state = next
}

// fail moves to FAILED and reports err. It returns err unchanged.
func (p *Pipeline) fail(err error, written []models.ResultArtifact) error {
	kind := apperrors.Kind(err)
	p.logger.Error("Pipeline failed",
		zap.String("from", string(p.state)),
		zap.String("error_kind", kind),
		zap.Error(err),
	)
	p.state = models.StateFailed
	p.report(models.StatusFailed, err.Error(), kind, written)
	return err
}

// report publishes a status update when a reporter is configured. Failures are only logged.
func (p *Pipeline) report(status models.JobStatus, message, errorKind string, artifacts []models.ResultArtifact) {
	if p.opts.Reporter == nil {
		return
	}
	update := models.NewTaskStatusUpdate(p.opts.JobID, p.opts.ProviderID, status, p.state, message)
	update.ErrorKind = errorKind
	for _, a := range artifacts {
		update.Results = append(update.Results, a.Filename)
	}
	if err := p.opts.Reporter.PublishStatus(update); err != nil {
		p.logger.Warn("Failed to publish status update", zap.String("status", string(status)), zap.Error(err))
	}
}
