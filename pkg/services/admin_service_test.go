package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/cache"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/permissions"
	"github.com/convoflow/convoflow/pkg/store"
)

type adminFixture struct {
	store    *store.Memory
	admin    *AdminService
	resolver *permissions.Resolver
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	logger := slog.Default()
	st := store.NewMemory()
	st.PutTenant(&models.Tenant{ID: "acme", Name: "Acme", IsActive: true, CreatedAt: time.Now()})
	st.PutTenant(&models.Tenant{ID: "globex", Name: "Globex", IsActive: true, CreatedAt: time.Now()})
	st.PutTenant(&models.Tenant{ID: "dormant", Name: "Dormant", IsActive: false, CreatedAt: time.Now()})

	resolver := permissions.NewResolver(st, cache.NewMemory(), time.Minute, logger)
	return &adminFixture{
		store:    st,
		admin:    NewAdminService(st, resolver, logger),
		resolver: resolver,
	}
}

func validAgentRequest() models.CreateAgentRequest {
	return models.CreateAgentRequest{
		Name:           "shipping",
		PromptTemplate: "You answer shipping questions. {query}",
		Model:          "gpt-4o-mini",
	}
}

func validToolRequest() models.CreateToolRequest {
	return models.CreateToolRequest{
		Name:        "order-lookup",
		Type:        models.ToolTypeHTTP,
		Config:      json.RawMessage(`{"url":"https://orders.internal/v1/orders/{order_id}","method":"GET"}`),
		InputSchema: json.RawMessage(`{"type":"object","required":["order_id"]}`),
	}
}

func TestAdminService_CreateAgent_ProvisionsActiveTenants(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	agent, err := f.admin.CreateAgent(ctx, validAgentRequest())
	require.NoError(t, err)
	assert.True(t, agent.IsActive)

	for _, tenantID := range []string{"acme", "globex"} {
		perm, err := f.store.GetAgentPermission(ctx, tenantID, agent.ID)
		require.NoError(t, err, "active tenant %s gets a permission", tenantID)
		assert.True(t, perm.Enabled)
	}
	_, err = f.store.GetAgentPermission(ctx, "dormant", agent.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound), "inactive tenants are skipped")

	grants, err := f.resolver.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "shipping", grants[0].Agent.Name)
}

func TestAdminService_CreateAgent_Validation(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	req := validAgentRequest()
	req.Name = ""
	_, err := f.admin.CreateAgent(ctx, req)
	assert.True(t, IsValidationError(err))

	req = validAgentRequest()
	req.PromptTemplate = ""
	_, err = f.admin.CreateAgent(ctx, req)
	assert.True(t, IsValidationError(err))
}

func TestAdminService_SetAgentActive_InvalidatesCache(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	agent, err := f.admin.CreateAgent(ctx, validAgentRequest())
	require.NoError(t, err)

	// Warm the cache.
	grants, err := f.resolver.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, grants, 1)

	_, err = f.admin.SetAgentActive(ctx, agent.ID, false)
	require.NoError(t, err)

	grants, err = f.resolver.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, grants, "deactivation is visible immediately")
}

func TestAdminService_CreateTool_Validation(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	req := validToolRequest()
	req.Type = "grpc"
	_, err := f.admin.CreateTool(ctx, req)
	assert.True(t, IsValidationError(err))

	req = validToolRequest()
	req.Config = json.RawMessage(`not json`)
	_, err = f.admin.CreateTool(ctx, req)
	assert.True(t, IsValidationError(err))

	tool, err := f.admin.CreateTool(ctx, validToolRequest())
	require.NoError(t, err)
	assert.True(t, tool.IsActive)
}

func TestAdminService_AssignAgentTools(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	agent, err := f.admin.CreateAgent(ctx, validAgentRequest())
	require.NoError(t, err)
	toolA, err := f.admin.CreateTool(ctx, validToolRequest())
	require.NoError(t, err)
	reqB := validToolRequest()
	reqB.Name = "carrier-tracking"
	toolB, err := f.admin.CreateTool(ctx, reqB)
	require.NoError(t, err)

	bindings, err := f.admin.AssignAgentTools(ctx, agent.ID, []models.ToolAssignment{
		{ToolID: toolB.ID, Priority: 2, Enabled: true},
		{ToolID: toolA.ID, Priority: 1, Enabled: true},
	})
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, toolA.ID, bindings[0].ToolID, "bindings come back in priority order")
	assert.Equal(t, toolB.ID, bindings[1].ToolID)

	// Invalid plans leave the previous set untouched.
	_, err = f.admin.AssignAgentTools(ctx, agent.ID, []models.ToolAssignment{
		{ToolID: toolA.ID, Priority: 1, Enabled: true},
		{ToolID: toolB.ID, Priority: 1, Enabled: true},
	})
	assert.True(t, IsValidationError(err), "duplicate priority rejected")

	_, err = f.admin.AssignAgentTools(ctx, agent.ID, []models.ToolAssignment{
		{ToolID: toolA.ID, Priority: 101, Enabled: true},
	})
	assert.True(t, IsValidationError(err), "priority out of range rejected")

	_, err = f.admin.AssignAgentTools(ctx, agent.ID, []models.ToolAssignment{
		{ToolID: "missing", Priority: 1, Enabled: true},
	})
	assert.True(t, IsValidationError(err), "unknown tool rejected")

	current, err := f.store.ListAgentBindings(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, current, 2)

	_, err = f.admin.AssignAgentTools(ctx, "missing-agent", nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAdminService_SetAgentPermission(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	agent, err := f.admin.CreateAgent(ctx, validAgentRequest())
	require.NoError(t, err)

	grants, err := f.resolver.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, grants, 1)

	_, err = f.admin.SetAgentPermission(ctx, "acme", agent.ID, false, models.OutputFormatDefault)
	require.NoError(t, err)

	grants, err = f.resolver.ResolveAgents(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, grants, "disable is visible immediately")

	// Other tenants are unaffected.
	grants, err = f.resolver.ResolveAgents(ctx, "globex")
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	_, err = f.admin.SetAgentPermission(ctx, "ghost", agent.ID, true, models.OutputFormatDefault)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.admin.SetAgentPermission(ctx, "acme", agent.ID, true, "xml")
	assert.True(t, IsValidationError(err))
}

func TestAdminService_SetToolPermission(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	agent, err := f.admin.CreateAgent(ctx, validAgentRequest())
	require.NoError(t, err)
	tool, err := f.admin.CreateTool(ctx, validToolRequest())
	require.NoError(t, err)
	_, err = f.admin.AssignAgentTools(ctx, agent.ID, []models.ToolAssignment{
		{ToolID: tool.ID, Priority: 1, Enabled: true},
	})
	require.NoError(t, err)

	// No tool permission yet: the tool is not granted.
	toolGrants, err := f.resolver.ResolveTools(ctx, "acme", agent.ID)
	require.NoError(t, err)
	assert.Empty(t, toolGrants)

	_, err = f.admin.SetToolPermission(ctx, "acme", tool.ID, true)
	require.NoError(t, err)

	toolGrants, err = f.resolver.ResolveTools(ctx, "acme", agent.ID)
	require.NoError(t, err)
	require.Len(t, toolGrants, 1)
	assert.Equal(t, tool.ID, toolGrants[0].Tool.ID)

	_, err = f.admin.SetToolPermission(ctx, "acme", tool.ID, false)
	require.NoError(t, err)

	toolGrants, err = f.resolver.ResolveTools(ctx, "acme", agent.ID)
	require.NoError(t, err)
	assert.Empty(t, toolGrants, "revocation is visible immediately")

	_, err = f.admin.SetToolPermission(ctx, "acme", "missing-tool", true)
	assert.True(t, errors.Is(err, ErrNotFound))
}
