package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const configFileName = "convoflow.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load convoflow.yaml from configDir
//  2. Expand environment variables
//  3. Merge user values over built-in defaults
//  4. Validate all configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"listen_addr", cfg.Server.ListenAddr,
		"model", cfg.LLM.Model,
		"confidence_threshold", cfg.Routing.ConfidenceThreshold)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(configFileName, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return nil, NewLoadError(configFileName, err)
	}
	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(configFileName, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	// Start from defaults and let user values override non-zero fields.
	cfg := DefaultConfig()
	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return NewValidationError("server", "listen_addr", ErrInvalidValue)
	}
	if cfg.Routing.ConfidenceThreshold < 0 || cfg.Routing.ConfidenceThreshold > 1 {
		return NewValidationError("routing", "confidence_threshold",
			fmt.Errorf("%w: must be within [0, 1], got %v", ErrInvalidValue, cfg.Routing.ConfidenceThreshold))
	}
	if cfg.Routing.HistoryLimit <= 0 {
		return NewValidationError("routing", "history_limit",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, cfg.Routing.HistoryLimit))
	}
	if cfg.LLM.Model == "" {
		return NewValidationError("llm", "model", ErrInvalidValue)
	}
	if cfg.LLM.APIKeyEnv == "" {
		return NewValidationError("llm", "api_key_env", ErrInvalidValue)
	}
	for _, kw := range cfg.Escalation.Keywords {
		if kw == "" {
			return NewValidationError("escalation", "keywords",
				fmt.Errorf("%w: empty keyword", ErrInvalidValue))
		}
	}
	if cfg.Tools.HTTPTimeout <= 0 {
		return NewValidationError("tools", "http_timeout",
			fmt.Errorf("%w: must be positive, got %v", ErrInvalidValue, cfg.Tools.HTTPTimeout))
	}
	if cfg.Cache.TTL <= 0 {
		return NewValidationError("cache", "ttl",
			fmt.Errorf("%w: must be positive, got %v", ErrInvalidValue, cfg.Cache.TTL))
	}
	return nil
}

// APIKey reads the configured LLM API key from the environment.
func (c *LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
