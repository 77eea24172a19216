// Package store defines the persistence contracts for ConvoFlow entities and
// provides PostgreSQL and in-memory implementations. Services depend on the
// interfaces only; the in-memory store backs unit tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/convoflow/convoflow/pkg/models"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when a unique constraint is violated.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrConflict is returned when a conditional update finds the entity in
	// a different state than expected (check-and-set failure).
	ErrConflict = errors.New("conflicting concurrent update")
)

// TenantStore reads tenant records.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListActiveTenants(ctx context.Context) ([]*models.Tenant, error)
}

// AgentStore manages agent configs.
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *models.AgentConfig) error
	GetAgent(ctx context.Context, id string) (*models.AgentConfig, error)
	GetAgentByName(ctx context.Context, name string) (*models.AgentConfig, error)
	ListAgents(ctx context.Context) ([]*models.AgentConfig, error)
	UpdateAgent(ctx context.Context, agent *models.AgentConfig) error
}

// ToolStore manages tool configs.
type ToolStore interface {
	CreateTool(ctx context.Context, tool *models.ToolConfig) error
	GetTool(ctx context.Context, id string) (*models.ToolConfig, error)
	ListTools(ctx context.Context) ([]*models.ToolConfig, error)
	UpdateTool(ctx context.Context, tool *models.ToolConfig) error
}

// BindingStore manages agent-tool bindings.
type BindingStore interface {
	// ReplaceAgentBindings atomically swaps the full binding set of an
	// agent. Either every binding is written or none.
	ReplaceAgentBindings(ctx context.Context, agentID string, bindings []models.AgentToolBinding) error

	// ListAgentBindings returns an agent's bindings in ascending priority
	// order regardless of insertion order.
	ListAgentBindings(ctx context.Context, agentID string) ([]models.AgentToolBinding, error)
}

// PermissionStore manages tenant-scoped agent/tool gates.
type PermissionStore interface {
	UpsertAgentPermission(ctx context.Context, perm *models.TenantAgentPermission) error
	GetAgentPermission(ctx context.Context, tenantID, agentID string) (*models.TenantAgentPermission, error)
	ListAgentPermissions(ctx context.Context, tenantID string) ([]*models.TenantAgentPermission, error)

	UpsertToolPermission(ctx context.Context, perm *models.TenantToolPermission) error
	GetToolPermission(ctx context.Context, tenantID, toolID string) (*models.TenantToolPermission, error)
}

// EscalationUpdate carries the field changes applied by an escalation
// transition. Nil pointer fields are left untouched.
type EscalationUpdate struct {
	Status         models.EscalationStatus
	Reason         *string
	AssignedUserID *string
	EscalatedAt    *time.Time
	ResolvedAt     *time.Time
	Metadata       map[string]any
}

// SessionStore manages chat sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, tenantID, id string) (*models.ChatSession, error)

	// TransitionEscalation applies upd only if the session's current
	// escalation status equals from; otherwise it returns ErrConflict.
	// The check and the write are atomic so two concurrent transitions
	// from the same state cannot both succeed.
	TransitionEscalation(ctx context.Context, tenantID, sessionID string, from models.EscalationStatus, upd EscalationUpdate) (*models.ChatSession, error)

	// ListEscalatedSessions returns sessions whose escalation status is not
	// "none", newest escalation first, optionally filtered by status.
	ListEscalatedSessions(ctx context.Context, tenantID string, status models.EscalationStatus) ([]*models.ChatSession, error)

	// BindAgent records the agent a session was last routed to.
	BindAgent(ctx context.Context, tenantID, sessionID, agentID string) error
}

// MessageStore manages the append-only transcript.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) error

	// AppendMessageAndTouchSession appends msg and advances the owning
	// session's last_message_at in one transaction. A chat turn's assistant
	// message and session update commit together or not at all.
	AppendMessageAndTouchSession(ctx context.Context, msg *models.Message) error

	ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// SupporterStore manages supporter availability and load counters.
type SupporterStore interface {
	GetSupporter(ctx context.Context, tenantID, id string) (*models.Supporter, error)

	// ListAvailableSupporters returns online supporters of the tenant with
	// spare capacity, least-loaded first.
	ListAvailableSupporters(ctx context.Context, tenantID string) ([]*models.Supporter, error)

	// AdjustActiveSessions adds delta to a supporter's active session count
	// (never below zero).
	AdjustActiveSessions(ctx context.Context, supporterID string, delta int) error
}

// Store aggregates all persistence contracts.
type Store interface {
	TenantStore
	AgentStore
	ToolStore
	BindingStore
	PermissionStore
	SessionStore
	MessageStore
	SupporterStore
}
