package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"strconv"

	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
)

// BuildRequest applies the documented defaults over the job parameters.
// Present keys keep their value. An explicit null for n_threads or
// max_tokens selects the engine default: half the logical CPUs, and
// generation until the context is full. A value the engine cannot take for
// its parameter is reported under the error kind of the stage that owns it:
// n_ctx and n_threads fail model loading, prompt and max_tokens fail generation.
func BuildRequest(params map[string]any) (models.InferenceRequest, error) {
	req := models.InferenceRequest{
		ModelPath:   models.DefaultModelPath,
		ContextSize: models.DefaultContextSize,
		ThreadCount: models.DefaultThreadCount,
		Prompt:      models.DefaultPrompt,
		MaxTokens:   models.DefaultMaxTokens,
	}

	var err error
	if req.ContextSize, err = intParam(params, models.ParamContextSize, req.ContextSize, nil); err != nil {
		return req, apperrors.NewModelLoadError(req.ModelPath, req.ContextSize, req.ThreadCount, err)
	}
	if req.ThreadCount, err = intParam(params, models.ParamThreadCount, req.ThreadCount, engineThreadCount); err != nil {
		return req, apperrors.NewModelLoadError(req.ModelPath, req.ContextSize, req.ThreadCount, err)
	}
	if req.MaxTokens, err = intParam(params, models.ParamMaxTokens, req.MaxTokens, unlimitedTokens); err != nil {
		return req, apperrors.NewGenerationError(req.MaxTokens, err)
	}
	if req.Prompt, err = stringParam(params, models.ParamPrompt, req.Prompt); err != nil {
		return req, apperrors.NewGenerationError(req.MaxTokens, err)
	}
	return req, nil
}

// ParamError describes a parameter value the engine cannot accept.
type ParamError struct {
	Key   string
	Value any
	Want  string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter %s: cannot use %#v as %s", e.Key, e.Value, e.Want)
}

// engineThreadCount is the thread count llama.cpp picks when none is given.
func engineThreadCount() int {
	return max(runtime.NumCPU()/2, 1)
}

func unlimitedTokens() int {
	return models.UnlimitedTokens
}

// intParam reads an integer parameter. Only JSON integer literals and Go
// integers are accepted; strings and fractional literals are not converted.
// A null value uses onNull, or is rejected when onNull is nil.
func intParam(params map[string]any, key string, def int, onNull func() int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}

	switch v := raw.(type) {
	case nil:
		if onNull != nil {
			return onNull(), nil
		}
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil {
			return n, nil
		}
	case int:
		return v, nil
	case int64:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v), nil
		}
	}
	return def, &ParamError{Key: key, Value: raw, Want: "integer"}
}

func stringParam(params map[string]any, key string, def string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return def, &ParamError{Key: key, Value: raw, Want: "string"}
}
