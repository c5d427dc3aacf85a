package config

import (
	"fmt"
	"os"
	"strings"
)

// SecretLoader defines the interface for loading secrets from various sources
type SecretLoader interface {
	LoadSecret(key string) (string, error)
}

// EnvSecretLoader loads secrets from environment variables
type EnvSecretLoader struct {
	Prefix string // Optional prefix for environment variables
}

// LoadSecret loads a secret from an environment variable
func (e *EnvSecretLoader) LoadSecret(key string) (string, error) {
	// artifacts.access_key_id -> ARTIFACTS_ACCESS_KEY_ID
	envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if e.Prefix != "" {
		envKey = e.Prefix + "_" + envKey
	}

	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not found or empty", envKey)
	}
	return value, nil
}

// resolveSecrets lets the environment supply object storage credentials so
// they do not have to live in the settings file. Missing secrets keep the file value.
func resolveSecrets(cfg *Config, loader SecretLoader) {
	if v, err := loader.LoadSecret("artifacts.access_key_id"); err == nil {
		cfg.Artifacts.AccessKeyID = v
	}
	if v, err := loader.LoadSecret("artifacts.secret_access_key"); err == nil {
		cfg.Artifacts.SecretAccessKey = v
	}
}
