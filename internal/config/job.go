package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"

	apperrors "github.com/dante-gpu/dante-backend/llama4-task/internal/errors"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"github.com/joho/godotenv"
)

// Environment variables supplied by the job platform.
const (
	EnvResultsDir = "TASK_RESULTS_DIR"
	EnvAppParams  = "APP_PARAMS"
)

// LookupFunc resolves an external configuration value. It has the shape of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ResolveResultsDirectory validates the results directory value.
// The path is returned verbatim; existence is guaranteed by the platform.
func ResolveResultsDirectory(raw string) (string, error) {
	if raw == "" {
		return "", apperrors.NewConfigError(EnvResultsDir, "", "environment variable is not set or is empty", nil)
	}
	return raw, nil
}

// ResolveParams decodes the job parameter document. It must be a single JSON object.
// Numbers are kept as json.Number so integral values survive exactly.
func ResolveParams(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, apperrors.NewConfigError(EnvAppParams, "", "environment variable is not set or is empty", nil)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, apperrors.NewConfigError(EnvAppParams, raw, "environment variable contains invalid JSON", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, apperrors.NewConfigError(EnvAppParams, raw, "environment variable contains invalid JSON", errors.New("unexpected data after top-level value"))
	}
	if params == nil {
		return nil, apperrors.NewConfigError(EnvAppParams, raw, "environment variable must contain a JSON object", nil)
	}
	return params, nil
}

// LoadJobConfig resolves both job inputs. The results directory is checked
// first; nothing is returned unless both are valid.
func LoadJobConfig(lookup LookupFunc) (*models.JobConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	rawDir, _ := lookup(EnvResultsDir)
	dir, err := ResolveResultsDirectory(rawDir)
	if err != nil {
		return nil, err
	}

	rawParams, _ := lookup(EnvAppParams)
	params, err := ResolveParams(rawParams)
	if err != nil {
		return nil, err
	}

	return &models.JobConfig{
		ResultsDirectory: dir,
		Params:           params,
	}, nil
}

// LoadEnvFile merges a dotenv file into the process environment.
// Variables already set in the environment are left untouched.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return apperrors.NewConfigError("env_file", path, "failed to load environment file", err)
	}
	return nil
}
