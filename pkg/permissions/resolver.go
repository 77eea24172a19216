// Package permissions computes the effective set of agents and tools a
// tenant may use.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/convoflow/convoflow/pkg/cache"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/store"
)

// AgentGrant is one agent resolved as available for a tenant, together with
// the tenant's optional output-format override for it.
type AgentGrant struct {
	Agent        models.AgentConfig  `json:"agent"`
	OutputFormat models.OutputFormat `json:"output_format,omitempty"`
}

// ToolGrant is one tool resolved into an agent's execution plan for a
// tenant. Grants are ordered by ascending priority; priority 1 runs first.
type ToolGrant struct {
	Tool     models.ToolConfig `json:"tool"`
	Priority int               `json:"priority"`
}

// Resolver answers "which agents/tools may this tenant use" from the store,
// with a TTL cache in front. Admin writes invalidate the affected keys
// before returning, so a cache hit is never staler than the last write.
type Resolver struct {
	store  store.Store
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewResolver builds a Resolver. A non-positive ttl disables expiry-based
// eviction (invalidation still applies).
func NewResolver(st store.Store, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  st,
		cache:  c,
		ttl:    ttl,
		logger: logger.With("component", "permissions"),
	}
}

// ResolveAgents returns the agents a tenant may route to, ordered by agent
// name. An unknown tenant yields an empty set rather than an error. Agents
// whose global active flag is off or whose tenant permission is disabled
// are excluded.
func (r *Resolver) ResolveAgents(ctx context.Context, tenantID string) ([]AgentGrant, error) {
	key := cache.AgentsKey(tenantID)
	var cached []AgentGrant
	if found, err := r.cache.Get(ctx, key, &cached); err != nil {
		r.logger.WarnContext(ctx, "agent cache read failed", "tenant_id", tenantID, "error", err)
	} else if found {
		return cached, nil
	}

	perms, err := r.store.ListAgentPermissions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent permissions: %w", err)
	}

	grants := make([]AgentGrant, 0, len(perms))
	for _, perm := range perms {
		if !perm.Enabled {
			continue
		}
		agent, err := r.store.GetAgent(ctx, perm.AgentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load agent %s: %w", perm.AgentID, err)
		}
		if !agent.IsActive {
			continue
		}
		grants = append(grants, AgentGrant{Agent: *agent, OutputFormat: perm.OutputFormat})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Agent.Name < grants[j].Agent.Name })

	if err := r.cache.Set(ctx, key, grants, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "agent cache write failed", "tenant_id", tenantID, "error", err)
	}
	return grants, nil
}

// ResolveAgentByName returns the grant for one agent by its unique name, or
// store.ErrNotFound when the agent is not available to the tenant. Callers
// must not distinguish "does not exist" from "not permitted".
func (r *Resolver) ResolveAgentByName(ctx context.Context, tenantID, name string) (*AgentGrant, error) {
	grants, err := r.ResolveAgents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range grants {
		if grants[i].Agent.Name == name {
			return &grants[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// ResolveTools returns an agent's execution plan for a tenant: enabled
// bindings whose tool is globally active and permitted for the tenant, in
// ascending priority order.
func (r *Resolver) ResolveTools(ctx context.Context, tenantID, agentID string) ([]ToolGrant, error) {
	key := cache.AgentToolsKey(tenantID, agentID)
	var cached []ToolGrant
	if found, err := r.cache.Get(ctx, key, &cached); err != nil {
		r.logger.WarnContext(ctx, "tool cache read failed", "tenant_id", tenantID, "agent_id", agentID, "error", err)
	} else if found {
		return cached, nil
	}

	bindings, err := r.store.ListAgentBindings(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent bindings: %w", err)
	}

	grants := make([]ToolGrant, 0, len(bindings))
	for _, binding := range bindings {
		if !binding.Enabled {
			continue
		}
		tool, err := r.store.GetTool(ctx, binding.ToolID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load tool %s: %w", binding.ToolID, err)
		}
		if !tool.IsActive {
			continue
		}
		perm, err := r.store.GetToolPermission(ctx, tenantID, tool.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// No permission record means the tool was never granted.
				continue
			}
			return nil, fmt.Errorf("failed to load tool permission: %w", err)
		}
		if !perm.Enabled {
			continue
		}
		grants = append(grants, ToolGrant{Tool: *tool, Priority: binding.Priority})
	}

	if err := r.cache.Set(ctx, key, grants, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "tool cache write failed", "tenant_id", tenantID, "agent_id", agentID, "error", err)
	}
	return grants, nil
}

// InvalidateAgents drops the tenant's resolved agent list.
func (r *Resolver) InvalidateAgents(ctx context.Context, tenantID string) error {
	return r.cache.Delete(ctx, cache.AgentsKey(tenantID))
}

// InvalidateTools drops one agent's resolved pipeline for a tenant.
func (r *Resolver) InvalidateTools(ctx context.Context, tenantID, agentID string) error {
	return r.cache.Delete(ctx, cache.AgentToolsKey(tenantID, agentID))
}

// InvalidateAgentEverywhere drops the agent list and the agent's pipeline
// for every active tenant, used after writes that affect all tenants, such
// as agent create or a binding replace.
func (r *Resolver) InvalidateAgentEverywhere(ctx context.Context, agentID string) error {
	tenants, err := r.store.ListActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants for invalidation: %w", err)
	}
	keys := make([]string, 0, len(tenants)*2)
	for _, tenant := range tenants {
		keys = append(keys, cache.AgentsKey(tenant.ID), cache.AgentToolsKey(tenant.ID, agentID))
	}
	return r.cache.Delete(ctx, keys...)
}
