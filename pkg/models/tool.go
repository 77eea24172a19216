package models

import (
	"encoding/json"
	"time"
)

// ToolType discriminates tool implementations. The set is closed: the
// execution engine selects one implementation per type at load time.
type ToolType string

const (
	ToolTypeHTTP   ToolType = "http"
	ToolTypeRAG    ToolType = "rag"
	ToolTypeCustom ToolType = "custom"
)

// Valid reports whether t is one of the known tool types.
func (t ToolType) Valid() bool {
	switch t {
	case ToolTypeHTTP, ToolTypeRAG, ToolTypeCustom:
		return true
	}
	return false
}

// ToolConfig is a callable capability an agent invokes. Config holds the
// type-specific configuration (endpoint/method/headers for HTTP, collection
// and top_k for RAG, strategy name for CUSTOM). InputSchema is a JSON schema
// the execution engine validates arguments against before any side effect.
type ToolConfig struct {
	ID          string          `json:"tool_id"`
	Name        string          `json:"name"`
	Type        ToolType        `json:"type"`
	Config      json.RawMessage `json:"config"`
	InputSchema json.RawMessage `json:"input_schema"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateToolRequest contains fields for creating a tool config.
type CreateToolRequest struct {
	Name        string          `json:"name"`
	Type        ToolType        `json:"type"`
	Config      json.RawMessage `json:"config"`
	InputSchema json.RawMessage `json:"input_schema"`
	Description string          `json:"description,omitempty"`
}
