package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/convoflow/convoflow/pkg/models"
)

// Memory is an in-process Store implementation. It backs unit tests and
// local development; the production store is Postgres.
type Memory struct {
	mu sync.RWMutex

	tenants    map[string]*models.Tenant
	agents     map[string]*models.AgentConfig
	tools      map[string]*models.ToolConfig
	bindings   map[string][]models.AgentToolBinding // agent id → bindings
	agentPerms map[string]*models.TenantAgentPermission
	toolPerms  map[string]*models.TenantToolPermission
	sessions   map[string]*models.ChatSession
	messages   map[string][]*models.Message // session id → ordered messages
	supporters map[string]*models.Supporter
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants:    make(map[string]*models.Tenant),
		agents:     make(map[string]*models.AgentConfig),
		tools:      make(map[string]*models.ToolConfig),
		bindings:   make(map[string][]models.AgentToolBinding),
		agentPerms: make(map[string]*models.TenantAgentPermission),
		toolPerms:  make(map[string]*models.TenantToolPermission),
		sessions:   make(map[string]*models.ChatSession),
		messages:   make(map[string][]*models.Message),
		supporters: make(map[string]*models.Supporter),
	}
}

func permKey(tenantID, entityID string) string { return tenantID + ":" + entityID }

// --- Tenants ---

func (m *Memory) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ListActiveTenants(_ context.Context) ([]*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutTenant seeds a tenant. Test helper; tenants are provisioned externally.
func (m *Memory) PutTenant(t *models.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.ID] = &cp
}

// --- Agents ---

func (m *Memory) CreateAgent(_ context.Context, agent *models.AgentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; ok {
		return ErrAlreadyExists
	}
	for _, a := range m.agents {
		if a.Name == agent.Name {
			return ErrAlreadyExists
		}
	}
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (*models.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) GetAgentByName(_ context.Context, name string) (*models.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListAgents(_ context.Context) ([]*models.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.AgentConfig, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (m *Memory) UpdateAgent(_ context.Context, agent *models.AgentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; !ok {
		return ErrNotFound
	}
	cp := *agent
	cp.UpdatedAt = time.Now()
	m.agents[agent.ID] = &cp
	return nil
}

// --- Tools ---

func (m *Memory) CreateTool(_ context.Context, tool *models.ToolConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tools[tool.ID]; ok {
		return ErrAlreadyExists
	}
	for _, t := range m.tools {
		if t.Name == tool.Name {
			return ErrAlreadyExists
		}
	}
	cp := *tool
	m.tools[tool.ID] = &cp
	return nil
}

func (m *Memory) GetTool(_ context.Context, id string) (*models.ToolConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tools[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ListTools(_ context.Context) ([]*models.ToolConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ToolConfig, 0, len(m.tools))
	for _, t := range m.tools {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateTool(_ context.Context, tool *models.ToolConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tools[tool.ID]; !ok {
		return ErrNotFound
	}
	cp := *tool
	cp.UpdatedAt = time.Now()
	m.tools[tool.ID] = &cp
	return nil
}

// --- Bindings ---

func (m *Memory) ReplaceAgentBindings(_ context.Context, agentID string, bindings []models.AgentToolBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agentID]; !ok {
		return ErrNotFound
	}
	cp := make([]models.AgentToolBinding, len(bindings))
	copy(cp, bindings)
	m.bindings[agentID] = cp
	return nil
}

func (m *Memory) ListAgentBindings(_ context.Context, agentID string) ([]models.AgentToolBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.bindings[agentID]
	out := make([]models.AgentToolBinding, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// --- Permissions ---

func (m *Memory) UpsertAgentPermission(_ context.Context, perm *models.TenantAgentPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *perm
	cp.UpdatedAt = time.Now()
	m.agentPerms[permKey(perm.TenantID, perm.AgentID)] = &cp
	return nil
}

func (m *Memory) GetAgentPermission(_ context.Context, tenantID, agentID string) (*models.TenantAgentPermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.agentPerms[permKey(tenantID, agentID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListAgentPermissions(_ context.Context, tenantID string) ([]*models.TenantAgentPermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.TenantAgentPermission
	for _, p := range m.agentPerms {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (m *Memory) UpsertToolPermission(_ context.Context, perm *models.TenantToolPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *perm
	cp.UpdatedAt = time.Now()
	m.toolPerms[permKey(perm.TenantID, perm.ToolID)] = &cp
	return nil
}

func (m *Memory) GetToolPermission(_ context.Context, tenantID, toolID string) (*models.TenantToolPermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.toolPerms[permKey(tenantID, toolID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// --- Sessions ---

func (m *Memory) CreateSession(_ context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *Memory) GetSession(_ context.Context, tenantID, id string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) TransitionEscalation(_ context.Context, tenantID, sessionID string, from models.EscalationStatus, upd EscalationUpdate) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if s.EscalationStatus != from {
		return nil, ErrConflict
	}
	s.EscalationStatus = upd.Status
	if upd.Reason != nil {
		s.EscalationReason = *upd.Reason
	}
	if upd.AssignedUserID != nil {
		s.AssignedUserID = *upd.AssignedUserID
	}
	if upd.EscalatedAt != nil {
		s.EscalatedAt = upd.EscalatedAt
	}
	if upd.ResolvedAt != nil {
		s.ResolvedAt = upd.ResolvedAt
	}
	if upd.Metadata != nil {
		if s.Metadata == nil {
			s.Metadata = make(map[string]any)
		}
		for k, v := range upd.Metadata {
			s.Metadata[k] = v
		}
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListEscalatedSessions(_ context.Context, tenantID string, status models.EscalationStatus) ([]*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ChatSession
	for _, s := range m.sessions {
		if s.TenantID != tenantID || s.EscalationStatus == models.EscalationNone {
			continue
		}
		if status != "" && s.EscalationStatus != status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].EscalatedAt, out[j].EscalatedAt
		if ti == nil || tj == nil {
			return out[i].ID < out[j].ID
		}
		return ti.After(*tj)
	})
	return out, nil
}

func (m *Memory) BindAgent(_ context.Context, tenantID, sessionID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.TenantID != tenantID {
		return ErrNotFound
	}
	s.AgentID = agentID
	return nil
}

// --- Messages ---

func (m *Memory) AppendMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[msg.SessionID]; !ok {
		return ErrNotFound
	}
	cp := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	return nil
}

func (m *Memory) AppendMessageAndTouchSession(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return ErrNotFound
	}
	cp := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	s.LastMessageAt = msg.CreatedAt
	return nil
}

func (m *Memory) ListMessages(_ context.Context, sessionID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.messages[sessionID]
	start := 0
	if limit > 0 && len(src) > limit {
		start = len(src) - limit
	}
	out := make([]*models.Message, 0, len(src)-start)
	for _, msg := range src[start:] {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

// --- Supporters ---

func (m *Memory) GetSupporter(_ context.Context, tenantID, id string) (*models.Supporter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.supporters[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListAvailableSupporters(_ context.Context, tenantID string) ([]*models.Supporter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Supporter
	for _, s := range m.supporters {
		if s.TenantID != tenantID || s.Status != models.SupporterStatusOnline {
			continue
		}
		if s.ActiveSessions >= s.MaxSessions {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActiveSessions != out[j].ActiveSessions {
			return out[i].ActiveSessions < out[j].ActiveSessions
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) AdjustActiveSessions(_ context.Context, supporterID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.supporters[supporterID]
	if !ok {
		return ErrNotFound
	}
	s.ActiveSessions += delta
	if s.ActiveSessions < 0 {
		s.ActiveSessions = 0
	}
	return nil
}

// PutSupporter seeds a supporter. Test helper.
func (m *Memory) PutSupporter(s *models.Supporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.supporters[s.ID] = &cp
}

var _ Store = (*Memory)(nil)
