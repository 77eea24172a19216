package config

import "time"

// DefaultConfig returns the built-in configuration. User YAML values merge
// on top of it; unset fields keep these values.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			ListenAddr: ":8080",
		},
		Routing: &RoutingConfig{
			ConfidenceThreshold: 0.7,
			HistoryLimit:        10,
		},
		LLM: &LLMConfig{
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "gpt-4o-mini",
		},
		Escalation: &EscalationConfig{},
		Tools: &ToolsConfig{
			HTTPTimeout: 10 * time.Second,
		},
		Cache: &CacheConfig{
			TTL: 5 * time.Minute,
		},
	}
}
