package models

import "time"

// OutputFormat is an optional per-tenant override for how an agent's answer
// is rendered. Empty means the agent's default (plain text).
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = ""
	OutputFormatText    OutputFormat = "text"
	OutputFormatJSON    OutputFormat = "json"
)

// TenantAgentPermission gates an agent for one tenant. Created with
// enabled=true for every active tenant when an agent is created.
type TenantAgentPermission struct {
	TenantID     string       `json:"tenant_id"`
	AgentID      string       `json:"agent_id"`
	Enabled      bool         `json:"enabled"`
	OutputFormat OutputFormat `json:"output_format,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TenantToolPermission gates a tool for one tenant.
type TenantToolPermission struct {
	TenantID  string    `json:"tenant_id"`
	ToolID    string    `json:"tool_id"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
