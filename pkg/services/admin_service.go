package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/permissions"
	"github.com/convoflow/convoflow/pkg/store"
)

const (
	minToolPriority = 1
	maxToolPriority = 100
)

// AdminService manages platform-owned configuration: agents, tools, tool
// bindings, and per-tenant permission gates. Every mutation invalidates the
// affected permission cache entries before returning, so a subsequent
// resolve sees the new state.
type AdminService struct {
	store    store.Store
	resolver *permissions.Resolver
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(st store.Store, resolver *permissions.Resolver, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:    st,
		resolver: resolver,
		logger:   logger.With("component", "admin_service"),
	}
}

// CreateAgent registers an agent and auto-provisions an enabled permission
// for every active tenant, so new agents are available everywhere until an
// admin narrows them down.
func (s *AdminService) CreateAgent(httpCtx context.Context, req models.CreateAgentRequest) (*models.AgentConfig, error) {
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if req.PromptTemplate == "" {
		return nil, NewValidationError("prompt_template", "required")
	}
	if req.Model == "" {
		return nil, NewValidationError("model", "required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	agent := &models.AgentConfig{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		PromptTemplate: req.PromptTemplate,
		Model:          req.Model,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants for provisioning: %w", err)
	}
	for _, tenant := range tenants {
		perm := &models.TenantAgentPermission{
			TenantID:  tenant.ID,
			AgentID:   agent.ID,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.UpsertAgentPermission(ctx, perm); err != nil {
			return nil, fmt.Errorf("failed to provision permission for tenant %s: %w", tenant.ID, err)
		}
	}
	if err := s.resolver.InvalidateAgentEverywhere(ctx, agent.ID); err != nil {
		s.logger.Warn("Failed to invalidate agent caches", "agent_id", agent.ID, "error", err)
	}

	return agent, nil
}

// SetAgentActive toggles an agent globally. Deactivated agents disappear
// from every tenant's resolved set regardless of permissions.
func (s *AdminService) SetAgentActive(httpCtx context.Context, agentID string, active bool) (*models.AgentConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	agent.IsActive = active
	agent.UpdatedAt = time.Now()
	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}
	if err := s.resolver.InvalidateAgentEverywhere(ctx, agent.ID); err != nil {
		s.logger.Warn("Failed to invalidate agent caches", "agent_id", agent.ID, "error", err)
	}
	return agent, nil
}

// CreateTool registers a tool config after validating its type and that the
// config and input schema are well-formed JSON.
func (s *AdminService) CreateTool(httpCtx context.Context, req models.CreateToolRequest) (*models.ToolConfig, error) {
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if !req.Type.Valid() {
		return nil, NewValidationError("type", fmt.Sprintf("unknown tool type %q", req.Type))
	}
	if len(req.Config) == 0 || !json.Valid(req.Config) {
		return nil, NewValidationError("config", "must be a JSON object")
	}
	if len(req.InputSchema) == 0 || !json.Valid(req.InputSchema) {
		return nil, NewValidationError("input_schema", "must be a JSON schema object")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	tool := &models.ToolConfig{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Type:        req.Type,
		Config:      req.Config,
		InputSchema: req.InputSchema,
		Description: req.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTool(ctx, tool); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create tool: %w", err)
	}
	return tool, nil
}

// AssignAgentTools replaces an agent's full execution plan. Priorities must
// be unique, within [1, 100], and each tool may appear once. The swap is
// atomic: an invalid plan leaves the previous bindings untouched.
func (s *AdminService) AssignAgentTools(httpCtx context.Context, agentID string, assignments []models.ToolAssignment) ([]models.AgentToolBinding, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	seenTools := make(map[string]bool, len(assignments))
	seenPriorities := make(map[int]bool, len(assignments))
	now := time.Now()
	bindings := make([]models.AgentToolBinding, 0, len(assignments))
	for _, a := range assignments {
		if a.Priority < minToolPriority || a.Priority > maxToolPriority {
			return nil, NewValidationError("priority",
				fmt.Sprintf("must be between %d and %d, got %d", minToolPriority, maxToolPriority, a.Priority))
		}
		if seenPriorities[a.Priority] {
			return nil, NewValidationError("priority", fmt.Sprintf("duplicate priority %d", a.Priority))
		}
		seenPriorities[a.Priority] = true
		if seenTools[a.ToolID] {
			return nil, NewValidationError("tool_id", fmt.Sprintf("tool %s assigned twice", a.ToolID))
		}
		seenTools[a.ToolID] = true

		if _, err := s.store.GetTool(ctx, a.ToolID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, NewValidationError("tool_id", fmt.Sprintf("tool %s does not exist", a.ToolID))
			}
			return nil, fmt.Errorf("failed to verify tool %s: %w", a.ToolID, err)
		}
		bindings = append(bindings, models.AgentToolBinding{
			AgentID:   agentID,
			ToolID:    a.ToolID,
			Priority:  a.Priority,
			Enabled:   a.Enabled,
			CreatedAt: now,
		})
	}

	if err := s.store.ReplaceAgentBindings(ctx, agentID, bindings); err != nil {
		return nil, fmt.Errorf("failed to replace bindings: %w", err)
	}
	s.invalidateToolsEverywhere(ctx, agentID)

	return s.store.ListAgentBindings(ctx, agentID)
}

// SetAgentPermission upserts a tenant's gate for an agent.
func (s *AdminService) SetAgentPermission(httpCtx context.Context, tenantID, agentID string, enabled bool, format models.OutputFormat) (*models.TenantAgentPermission, error) {
	switch format {
	case models.OutputFormatDefault, models.OutputFormatText, models.OutputFormatJSON:
	default:
		return nil, NewValidationError("output_format", fmt.Sprintf("unknown format %q", format))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	now := time.Now()
	perm := &models.TenantAgentPermission{
		TenantID:     tenantID,
		AgentID:      agentID,
		Enabled:      enabled,
		OutputFormat: format,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.UpsertAgentPermission(ctx, perm); err != nil {
		return nil, fmt.Errorf("failed to upsert agent permission: %w", err)
	}
	if err := s.resolver.InvalidateAgents(ctx, tenantID); err != nil {
		s.logger.Warn("Failed to invalidate agent cache", "tenant_id", tenantID, "error", err)
	}
	return perm, nil
}

// SetToolPermission upserts a tenant's gate for a tool.
func (s *AdminService) SetToolPermission(httpCtx context.Context, tenantID, toolID string, enabled bool) (*models.TenantToolPermission, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if _, err := s.store.GetTool(ctx, toolID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tool: %w", err)
	}

	now := time.Now()
	perm := &models.TenantToolPermission{
		TenantID:  tenantID,
		ToolID:    toolID,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.UpsertToolPermission(ctx, perm); err != nil {
		return nil, fmt.Errorf("failed to upsert tool permission: %w", err)
	}

	// Tool grants are cached per (tenant, agent); every agent bound to the
	// tool could be affected.
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		s.logger.Warn("Failed to list agents for cache invalidation", "error", err)
		return perm, nil
	}
	for _, agent := range agents {
		if err := s.resolver.InvalidateTools(ctx, tenantID, agent.ID); err != nil {
			s.logger.Warn("Failed to invalidate tool cache",
				"tenant_id", tenantID, "agent_id", agent.ID, "error", err)
		}
	}
	return perm, nil
}

// ListAgents returns all agent configs.
func (s *AdminService) ListAgents(ctx context.Context) ([]*models.AgentConfig, error) {
	return s.store.ListAgents(ctx)
}

// ListTools returns all tool configs.
func (s *AdminService) ListTools(ctx context.Context) ([]*models.ToolConfig, error) {
	return s.store.ListTools(ctx)
}

func (s *AdminService) invalidateToolsEverywhere(ctx context.Context, agentID string) {
	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		s.logger.Warn("Failed to list tenants for cache invalidation", "error", err)
		return
	}
	for _, tenant := range tenants {
		if err := s.resolver.InvalidateTools(ctx, tenant.ID, agentID); err != nil {
			s.logger.Warn("Failed to invalidate tool cache",
				"tenant_id", tenant.ID, "agent_id", agentID, "error", err)
		}
	}
}
