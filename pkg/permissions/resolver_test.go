package permissions

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/cache"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/store"
)

func seedAgent(t *testing.T, st *store.Memory, id, name string, active bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.CreateAgent(context.Background(), &models.AgentConfig{
		ID: id, Name: name, PromptTemplate: "You handle {query}.", Model: "gpt-4o-mini",
		IsActive: active, CreatedAt: now, UpdatedAt: now,
	}))
}

func seedTool(t *testing.T, st *store.Memory, id, name string, active bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.CreateTool(context.Background(), &models.ToolConfig{
		ID: id, Name: name, Type: models.ToolTypeHTTP,
		Config:      []byte(`{"url":"https://api.example.com/{id}"}`),
		InputSchema: []byte(`{"type":"object"}`),
		IsActive:    active, CreatedAt: now, UpdatedAt: now,
	}))
}

func newResolver(st *store.Memory) *Resolver {
	return NewResolver(st, cache.NewMemory(), time.Minute, slog.Default())
}

func TestResolveAgents_FiltersDisabledAndInactive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutTenant(&models.Tenant{ID: "acme", Name: "Acme", IsActive: true})

	seedAgent(t, st, "a1", "ShipmentAgent", true)
	seedAgent(t, st, "a2", "DebtAgent", true)
	seedAgent(t, st, "a3", "LegacyAgent", false) // globally inactive

	for _, agentID := range []string{"a1", "a2", "a3"} {
		require.NoError(t, st.UpsertAgentPermission(ctx, &models.TenantAgentPermission{
			TenantID: "acme", AgentID: agentID, Enabled: true,
		}))
	}
	// Disable one for the tenant specifically.
	require.NoError(t, st.UpsertAgentPermission(ctx, &models.TenantAgentPermission{
		TenantID: "acme", AgentID: "a2", Enabled: false,
	}))

	r := newResolver(st)
	grants, err := r.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "ShipmentAgent", grants[0].Agent.Name)
}

func TestResolveAgents_UnknownTenantFailsSoft(t *testing.T) {
	r := newResolver(store.NewMemory())
	grants, err := r.ResolveAgents(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestResolveAgents_CachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "a1", "ShipmentAgent", true)
	require.NoError(t, st.UpsertAgentPermission(ctx, &models.TenantAgentPermission{
		TenantID: "acme", AgentID: "a1", Enabled: true,
	}))

	r := newResolver(st)
	grants, err := r.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, grants, 1)

	// A store-level write without invalidation is not yet visible.
	require.NoError(t, st.UpsertAgentPermission(ctx, &models.TenantAgentPermission{
		TenantID: "acme", AgentID: "a1", Enabled: false,
	}))
	grants, err = r.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	require.NoError(t, r.InvalidateAgents(ctx, "acme"))
	grants, err = r.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestResolveAgentByName(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "a1", "ShipmentAgent", true)
	require.NoError(t, st.UpsertAgentPermission(ctx, &models.TenantAgentPermission{
		TenantID: "acme", AgentID: "a1", Enabled: true, OutputFormat: models.OutputFormatJSON,
	}))

	r := newResolver(st)
	grant, err := r.ResolveAgentByName(ctx, "acme", "ShipmentAgent")
	require.NoError(t, err)
	assert.Equal(t, models.OutputFormatJSON, grant.OutputFormat)

	_, err = r.ResolveAgentByName(ctx, "acme", "NoSuchAgent")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Same answer for an agent that exists but is not granted.
	seedAgent(t, st, "a2", "DebtAgent", true)
	_, err = r.ResolveAgentByName(ctx, "acme", "DebtAgent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveTools_OrderAndFilters(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "a1", "ShipmentAgent", true)
	seedTool(t, st, "t1", "track_shipment", true)
	seedTool(t, st, "t2", "kb_search", true)
	seedTool(t, st, "t3", "retired_tool", false)
	seedTool(t, st, "t4", "blocked_tool", true)

	require.NoError(t, st.ReplaceAgentBindings(ctx, "a1", []models.AgentToolBinding{
		{AgentID: "a1", ToolID: "t1", Priority: 2, Enabled: true},
		{AgentID: "a1", ToolID: "t2", Priority: 1, Enabled: true},
		{AgentID: "a1", ToolID: "t3", Priority: 3, Enabled: true},
		{AgentID: "a1", ToolID: "t4", Priority: 4, Enabled: true},
	}))
	for _, toolID := range []string{"t1", "t2", "t3"} {
		require.NoError(t, st.UpsertToolPermission(ctx, &models.TenantToolPermission{
			TenantID: "acme", ToolID: toolID, Enabled: true,
		}))
	}
	require.NoError(t, st.UpsertToolPermission(ctx, &models.TenantToolPermission{
		TenantID: "acme", ToolID: "t4", Enabled: false,
	}))

	r := newResolver(st)
	grants, err := r.ResolveTools(ctx, "acme", "a1")
	require.NoError(t, err)
	require.Len(t, grants, 2, "inactive and tenant-blocked tools excluded")
	assert.Equal(t, "kb_search", grants[0].Tool.Name, "priority 1 first")
	assert.Equal(t, "track_shipment", grants[1].Tool.Name)
}

func TestResolveTools_MissingPermissionExcludes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "a1", "ShipmentAgent", true)
	seedTool(t, st, "t1", "track_shipment", true)
	require.NoError(t, st.ReplaceAgentBindings(ctx, "a1", []models.AgentToolBinding{
		{AgentID: "a1", ToolID: "t1", Priority: 1, Enabled: true},
	}))

	r := newResolver(st)
	grants, err := r.ResolveTools(ctx, "acme", "a1")
	require.NoError(t, err)
	assert.Empty(t, grants)
}
