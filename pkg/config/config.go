// Package config loads and validates the convoflow.yaml runtime
// configuration. Database connection settings live in pkg/database and come
// from the environment; everything else is file-driven with env expansion.
package config

import "time"

// Config is the validated runtime configuration.
type Config struct {
	Server     *ServerConfig     `yaml:"server"`
	Routing    *RoutingConfig    `yaml:"routing"`
	LLM        *LLMConfig        `yaml:"llm"`
	Escalation *EscalationConfig `yaml:"escalation"`
	Tools      *ToolsConfig      `yaml:"tools"`
	Cache      *CacheConfig      `yaml:"cache"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// RoutingConfig tunes the supervisor router.
type RoutingConfig struct {
	// ConfidenceThreshold is the minimum classifier confidence required to
	// dispatch to an agent; anything lower asks for clarification.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// HistoryLimit is how many recent messages are carried into
	// classification and synthesis.
	HistoryLimit int `yaml:"history_limit"`
}

// LLMConfig selects the language-model backend. The API key is read from
// the environment variable named by APIKeyEnv, never from the file.
type LLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EscalationConfig tunes human-handoff detection. Keywords, when set,
// replace the built-in set entirely.
type EscalationConfig struct {
	Keywords []string `yaml:"keywords"`
}

// ToolsConfig tunes the tool execution engine.
type ToolsConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// CacheConfig selects the permission cache backend. An empty RedisAddr
// means the in-process cache.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}
