// Package results persists generated outputs as individually named artifacts
// in the job's results directory.
package results

import (
	"context"
	"os"
	"path/filepath"

	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Mirror receives each artifact after it has been written locally.
type Mirror interface {
	Mirror(ctx context.Context, artifact models.ResultArtifact) error
}

// Writer writes one file per generation result.
type Writer struct {
	dir             string
	continueOnError bool
	mirror          Mirror
	logger          *zap.Logger
}

// NewWriter creates a writer for dir. With continueOnError every result is
// attempted and failures are returned together; otherwise the first failure
// stops the run. mirror may be nil.
func NewWriter(dir string, continueOnError bool, mirror Mirror, logger *zap.Logger) *Writer {
	return &Writer{
		dir:             dir,
		continueOnError: continueOnError,
		mirror:          mirror,
		logger:          logger.Named("results"),
	}
}

// WriteAll writes results in order and returns the artifacts that were persisted.
func (w *Writer) WriteAll(ctx context.Context, results []models.GenerationResult) ([]models.ResultArtifact, error) {
	written := make([]models.ResultArtifact, 0, len(results))
	var errs error

	for _, result := range results {
		artifact, err := w.Write(ctx, result)
		if err != nil {
			if !w.continueOnError {
				return written, err
			}
			errs = multierr.Append(errs, err)
			continue
		}
		written = append(written, artifact)
	}

	if errs != nil {
		w.logger.Error("Some results could not be written",
			zap.Int("failed", len(multierr.Errors(errs))),
			zap.Int("written", len(written)),
		)
	}
	return written, errs
}

// Write persists one result as llama4_output_{index}.txt, replacing any existing file.
func (w *Writer) Write(ctx context.Context, result models.GenerationResult) (models.ResultArtifact, error) {
	filename := models.ArtifactFilename(result.Index)
	outputPath := filepath.Join(w.dir, filename)
	if abs, err := filepath.Abs(outputPath); err == nil {
		outputPath = abs
	}

	artifact := models.ResultArtifact{
		Filename: filename,
		Path:     outputPath,
		Content:  result.Text,
	}

	if err := os.WriteFile(outputPath, []byte(result.Text), 0644); err != nil {
		w.logger.Error("Error writing output file", zap.String("path", outputPath), zap.Error(err))
		return artifact, apperrors.NewWriteError(filename, outputPath, err)
	}
	w.logger.Info("Output saved", zap.String("path", outputPath))

	if w.mirror != nil {
		if err := w.mirror.Mirror(ctx, artifact); err != nil {
			w.logger.Error("Error mirroring output file", zap.String("filename", filename), zap.Error(err))
			return artifact, apperrors.NewWriteError(filename, outputPath, err)
		}
	}
	return artifact, nil
}
