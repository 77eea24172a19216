package models

import "time"

// EscalationStatus is the lifecycle state of a session's human handoff.
type EscalationStatus string

const (
	EscalationNone     EscalationStatus = "none"
	EscalationPending  EscalationStatus = "pending"
	EscalationAssigned EscalationStatus = "assigned"
	EscalationResolved EscalationStatus = "resolved"
)

// Valid reports whether s is a known escalation status.
func (s EscalationStatus) Valid() bool {
	switch s {
	case EscalationNone, EscalationPending, EscalationAssigned, EscalationResolved:
		return true
	}
	return false
}

// ChatSession is one conversation between a chat user and the platform.
// Sessions are never deleted; escalation fields only transition.
//
// Invariants: AssignedUserID is set only while escalation status is
// assigned or resolved; EscalatedAt is set once, the first time the status
// leaves "none".
type ChatSession struct {
	ID               string           `json:"session_id"`
	TenantID         string           `json:"tenant_id"`
	ChatUserID       string           `json:"chat_user_id"`
	AgentID          string           `json:"agent_id,omitempty"`
	EscalationStatus EscalationStatus `json:"escalation_status"`
	EscalationReason string           `json:"escalation_reason,omitempty"`
	AssignedUserID   string           `json:"assigned_user_id,omitempty"`
	EscalatedAt      *time.Time       `json:"escalated_at,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	LastMessageAt    time.Time        `json:"last_message_at"`
}

// Tenant is an isolated organization boundary. Only active tenants receive
// auto-provisioned permissions when a new agent is created.
type Tenant struct {
	ID        string    `json:"tenant_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Supporter is a human staff member escalated sessions are assigned to.
type Supporter struct {
	ID             string    `json:"supporter_id"`
	TenantID       string    `json:"tenant_id"`
	DisplayName    string    `json:"display_name"`
	Status         string    `json:"status"` // offline, online
	ActiveSessions int       `json:"active_sessions"`
	MaxSessions    int       `json:"max_sessions"`
	CreatedAt      time.Time `json:"created_at"`
}

// SupporterStatusOnline marks a supporter as eligible for assignment.
const SupporterStatusOnline = "online"
