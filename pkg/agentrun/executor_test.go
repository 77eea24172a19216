package agentrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/cache"
	"github.com/convoflow/convoflow/pkg/classifier"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/permissions"
	"github.com/convoflow/convoflow/pkg/rag"
	"github.com/convoflow/convoflow/pkg/store"
	"github.com/convoflow/convoflow/pkg/tools"
)

type fixture struct {
	store    *store.Memory
	resolver *permissions.Resolver
	executor *Executor
	cls      *classifier.Stub
}

func newFixture(t *testing.T, retriever rag.Retriever) *fixture {
	t.Helper()
	st := store.NewMemory()
	resolver := permissions.NewResolver(st, cache.NewMemory(), time.Minute, slog.Default())

	runners := map[models.ToolType]tools.Runner{
		models.ToolTypeHTTP: tools.NewHTTPRunner(nil),
		models.ToolTypeRAG:  tools.NewRAGRunner(retriever),
	}
	engine := tools.NewEngine(runners, slog.Default())

	cls := &classifier.Stub{
		CompleteFn: func(_, systemPrompt, userPrompt string) (string, error) {
			return "synthesized: " + userPrompt[strings.LastIndex(userPrompt, "User message: ")+len("User message: "):], nil
		},
	}
	return &fixture{
		store:    st,
		resolver: resolver,
		executor: NewExecutor(resolver, engine, cls, 10, slog.Default()),
		cls:      cls,
	}
}

func (f *fixture) seedAgent(t *testing.T, toolConfigs ...models.ToolConfig) permissions.AgentGrant {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	agent := models.AgentConfig{
		ID: "a1", Name: "ShipmentAgent",
		PromptTemplate: "You answer shipping questions about {query}.",
		Model:          "gpt-4o-mini", IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateAgent(ctx, &agent))

	bindings := make([]models.AgentToolBinding, 0, len(toolConfigs))
	for i, tc := range toolConfigs {
		require.NoError(t, f.store.CreateTool(ctx, &tc))
		require.NoError(t, f.store.UpsertToolPermission(ctx, &models.TenantToolPermission{
			TenantID: "acme", ToolID: tc.ID, Enabled: true,
		}))
		bindings = append(bindings, models.AgentToolBinding{
			AgentID: "a1", ToolID: tc.ID, Priority: i + 1, Enabled: true,
		})
	}
	require.NoError(t, f.store.ReplaceAgentBindings(ctx, "a1", bindings))
	return permissions.AgentGrant{Agent: agent}
}

func TestExecute_SequentialPipelineFeedsLaterTools(t *testing.T) {
	var secondPath string
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"carrier_id":"DHL-7"}`))
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondPath = r.URL.Path
		w.Write([]byte(`{"eta_days":2}`))
	}))
	defer second.Close()

	f := newFixture(t, &rag.Stub{})
	grant := f.seedAgent(t,
		models.ToolConfig{
			ID: "t1", Name: "lookup_carrier", Type: models.ToolTypeHTTP,
			Config:   []byte(fmt.Sprintf(`{"url":%q}`, first.URL)),
			IsActive: true,
		},
		models.ToolConfig{
			ID: "t2", Name: "carrier_eta", Type: models.ToolTypeHTTP,
			Config:   []byte(fmt.Sprintf(`{"url":%q}`, second.URL+"/carriers/{carrier_id}/eta")),
			IsActive: true,
		},
	)

	result, err := f.executor.Execute(context.Background(), "acme", grant, "where is my parcel", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"lookup_carrier", "carrier_eta"}, result.ToolsUsed)
	assert.Empty(t, result.ToolsFailed)
	assert.Equal(t, "/carriers/DHL-7/eta", secondPath, "earlier tool output feeds later tool input")
	assert.Contains(t, result.Response, "where is my parcel")
}

func TestExecute_PartialFailureContinues(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"delivered"}`))
	}))
	defer up.Close()

	f := newFixture(t, &rag.Stub{})
	grant := f.seedAgent(t,
		models.ToolConfig{
			ID: "t1", Name: "flaky_tool", Type: models.ToolTypeHTTP,
			Config:   []byte(fmt.Sprintf(`{"url":%q}`, down.URL)),
			IsActive: true,
		},
		models.ToolConfig{
			ID: "t2", Name: "status_tool", Type: models.ToolTypeHTTP,
			Config:   []byte(fmt.Sprintf(`{"url":%q}`, up.URL)),
			IsActive: true,
		},
	)

	result, err := f.executor.Execute(context.Background(), "acme", grant, "status please", nil)
	require.NoError(t, err, "a single tool outage never aborts the turn")
	assert.Equal(t, []string{"flaky_tool"}, result.ToolsFailed)
	assert.Equal(t, []string{"status_tool"}, result.ToolsUsed)
}

func TestExecute_AllToolsFailStillAnswers(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer down.Close()

	f := newFixture(t, &rag.Stub{})
	grant := f.seedAgent(t, models.ToolConfig{
		ID: "t1", Name: "only_tool", Type: models.ToolTypeHTTP,
		Config:   []byte(fmt.Sprintf(`{"url":%q}`, down.URL)),
		IsActive: true,
	})

	result, err := f.executor.Execute(context.Background(), "acme", grant, "help", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Response)
	assert.Equal(t, []string{"only_tool"}, result.ToolsFailed)
}

func TestExecute_SynthesisBackendDownIsFatal(t *testing.T) {
	f := newFixture(t, &rag.Stub{})
	grant := f.seedAgent(t)
	f.cls.Unavailable = true

	_, err := f.executor.Execute(context.Background(), "acme", grant, "help", nil)
	assert.ErrorIs(t, err, classifier.ErrUnavailable)
}

func TestAccumulator_Markers(t *testing.T) {
	acc := NewAccumulator()
	acc.Record("good", map[string]any{"ok": true})
	acc.RecordError("bad", fmt.Errorf("boom"))

	assert.Equal(t, []string{"good"}, acc.Succeeded())
	assert.Equal(t, []string{"bad"}, acc.Failed())

	snapshot := acc.Snapshot()
	assert.Contains(t, snapshot, "_error:bad")
	assert.Contains(t, acc.RenderJSON(), "_error:bad")
}
