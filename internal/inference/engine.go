// Package inference builds inference requests from job parameters and drives
// the external inference engine through a narrow load/generate capability.
package inference

import (
	"context"
)

// Choice is one completion returned by the engine. Its position in the
// returned slice is its index.
type Choice struct {
	Text string
}

// Engine loads models. Implementations wrap an external inference library or binary.
type Engine interface {
	Load(ctx context.Context, modelPath string, contextSize, threadCount int) (Model, error)
}

// Model is a loaded model ready for generation.
type Model interface {
	// Generate blocks until the engine returns its complete set of choices.
	Generate(ctx context.Context, prompt string, maxTokens int) ([]Choice, error)
	// Close releases the model and any process backing it.
	Close() error
}
