package errors

import (
	"errors"
	"fmt"
)

// Error kinds that can be used for error checking with errors.Is.
var (
	// ErrConfig is returned when the job's external configuration is missing or malformed.
	ErrConfig = errors.New("invalid job configuration")

	// ErrModelLoad is returned when the inference engine cannot initialise the model.
	ErrModelLoad = errors.New("model load failed")

	// ErrGeneration is returned when the inference engine fails during generation.
	ErrGeneration = errors.New("generation failed")

	// ErrWrite is returned when a result artifact cannot be persisted.
	ErrWrite = errors.New("result write failed")
)

// ConfigError represents a missing, empty or malformed configuration input.
type ConfigError struct {
	Key     string // Configuration key (e.g. "APP_PARAMS")
	Value   string // Offending raw value, if any
	Message string // Human-readable error message
	Err     error  // Underlying error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config %s: %s", e.Key, e.Message)
	if e.Value != "" {
		msg = fmt.Sprintf("%s (value %q)", msg, e.Value)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports ErrConfig as the kind of every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(key, value, message string, err error) *ConfigError {
	return &ConfigError{
		Key:     key,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// ModelLoadError represents a failure to initialise the model.
type ModelLoadError struct {
	ModelPath   string
	ContextSize int
	ThreadCount int
	Err         error
}

// Error implements the error interface
func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s (n_ctx=%d, n_threads=%d): %v", e.ModelPath, e.ContextSize, e.ThreadCount, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// Is reports ErrModelLoad as the kind of every ModelLoadError.
func (e *ModelLoadError) Is(target error) bool {
	return target == ErrModelLoad
}

// NewModelLoadError creates a new ModelLoadError
func NewModelLoadError(modelPath string, contextSize, threadCount int, err error) *ModelLoadError {
	return &ModelLoadError{
		ModelPath:   modelPath,
		ContextSize: contextSize,
		ThreadCount: threadCount,
		Err:         err,
	}
}

// GenerationError represents a failure inside the engine's generation call.
type GenerationError struct {
	MaxTokens int
	Err       error
}

// Error implements the error interface
func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate (max_tokens=%d): %v", e.MaxTokens, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is reports ErrGeneration as the kind of every GenerationError.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// NewGenerationError creates a new GenerationError
func NewGenerationError(maxTokens int, err error) *GenerationError {
	return &GenerationError{
		MaxTokens: maxTokens,
		Err:       err,
	}
}

// WriteError represents a failure to persist one result artifact.
type WriteError struct {
	Filename string // Artifact file name (e.g. "llama4_output_0.txt")
	Path     string // Destination the write was attempted against
	Err      error  // Underlying error
}

// Error implements the error interface
func (e *WriteError) Error() string {
	return fmt.Sprintf("write result %s to %s: %v", e.Filename, e.Path, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is reports ErrWrite as the kind of every WriteError.
func (e *WriteError) Is(target error) bool {
	return target == ErrWrite
}

// NewWriteError creates a new WriteError
func NewWriteError(filename, path string, err error) *WriteError {
	return &WriteError{
		Filename: filename,
		Path:     path,
		Err:      err,
	}
}

// IsConfig returns true if the error or its cause is a configuration error
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsModelLoad returns true if the error or its cause is a model load error
func IsModelLoad(err error) bool {
	return errors.Is(err, ErrModelLoad)
}

// IsGeneration returns true if the error or its cause is a generation error
func IsGeneration(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsWrite returns true if the error or its cause is a result write error
func IsWrite(err error) bool {
	return errors.Is(err, ErrWrite)
}

// Kind returns a short machine-readable name for the error category.
func Kind(err error) string {
	switch {
	case IsConfig(err):
		return "config_error"
	case IsModelLoad(err):
		return "model_load_error"
	case IsGeneration(err):
		return "generation_error"
	case IsWrite(err):
		return "write_error"
	default:
		return "internal_error"
	}
}
