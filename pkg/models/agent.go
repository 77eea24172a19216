package models

import "time"

// AgentConfig is a named, prompt-driven handler for one domain of user intent.
// Agents are owned by the platform and mutated only through admin operations;
// sessions and tool bindings reference them without owning them.
type AgentConfig struct {
	ID             string    `json:"agent_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PromptTemplate string    `json:"prompt_template"`
	Model          string    `json:"model"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AgentToolBinding is one entry in an agent's ordered execution plan.
// Priority 1 executes first; priorities are unique per agent.
type AgentToolBinding struct {
	AgentID   string    `json:"agent_id"`
	ToolID    string    `json:"tool_id"`
	Priority  int       `json:"priority"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAgentRequest contains fields for creating an agent config.
type CreateAgentRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	PromptTemplate string `json:"prompt_template"`
	Model          string `json:"model"`
}

// ToolAssignment is one (tool, priority) pair in an AssignAgentTools request.
type ToolAssignment struct {
	ToolID   string `json:"tool_id"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}
