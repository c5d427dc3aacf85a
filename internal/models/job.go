package models

import (
	"fmt"
)

// DefaultModelPath is the on-disk model artifact every job runs against.
const DefaultModelPath = "/llm-models/Llama-4-Scout-Q4_K_M-00001-of-00002.gguf"

// Defaults applied to APP_PARAMS keys that are absent.
const (
	DefaultContextSize = 2048
	DefaultThreadCount = 8
	DefaultPrompt      = "Hello, LLaMA 4!"
	DefaultMaxTokens   = 2048
)

// Recognised APP_PARAMS keys.
const (
	ParamContextSize = "n_ctx"
	ParamThreadCount = "n_threads"
	ParamPrompt      = "prompt"
	ParamMaxTokens   = "max_tokens"
)

// UnlimitedTokens as a token budget generates until the context window is full.
const UnlimitedTokens = -1

// JobConfig is the validated configuration for one job execution.
// Both fields are resolved before any inference work begins.
type JobConfig struct {
	ResultsDirectory string         `json:"results_directory"`
	Params           map[string]any `json:"params"`
}

// InferenceRequest is the view over JobConfig.Params with defaults applied.
type InferenceRequest struct {
	ModelPath   string `json:"model_path"`
	ContextSize int    `json:"n_ctx"`
	ThreadCount int    `json:"n_threads"`
	Prompt      string `json:"prompt"`
	MaxTokens   int    `json:"max_tokens"`
}

// GenerationResult is one model output. Index is its position in the
// engine's output sequence and is preserved in the artifact file name.
type GenerationResult struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ResultArtifact is a file written to the results directory.
type ResultArtifact struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Content  string `json:"-"`
}

// ArtifactFilename returns the result file name for the given output index.
func ArtifactFilename(index int) string {
	return fmt.Sprintf("llama4_output_%d.txt", index)
}
