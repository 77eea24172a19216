package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/rag"
)

func httpTool(url string, timeoutSeconds int) models.ToolConfig {
	cfg := fmt.Sprintf(`{"url":%q,"timeout_seconds":%d}`, url, timeoutSeconds)
	return models.ToolConfig{
		ID: "t-http", Name: "track_shipment", Type: models.ToolTypeHTTP,
		Config: []byte(cfg),
		InputSchema: []byte(`{
			"type": "object",
			"properties": {"tracking_number": {"type": "string"}},
			"required": ["tracking_number"]
		}`),
		IsActive: true,
	}
}

func newEngine(t *testing.T, retriever rag.Retriever) *Engine {
	t.Helper()
	custom := NewCustomRunner()
	custom.Register("echo", StrategyFunc(func(_ context.Context, tenantID string, input map[string]any) (map[string]any, error) {
		return map[string]any{"tenant": tenantID, "echo": input}, nil
	}))
	runners := map[models.ToolType]Runner{
		models.ToolTypeHTTP:   NewHTTPRunner(nil),
		models.ToolTypeRAG:    NewRAGRunner(retriever),
		models.ToolTypeCustom: custom,
	}
	return NewEngine(runners, slog.Default())
}

func TestExecute_RejectsInvalidInputBeforeCalling(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	engine := newEngine(t, &rag.Stub{})
	_, err := engine.Execute(context.Background(), "acme", httpTool(server.URL, 5), map[string]any{})

	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "track_shipment", invalid.Tool)
	assert.Zero(t, calls.Load(), "upstream must not be called on validation failure")
}

func TestExecute_HTTPSubstitutionAndResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments/PKG-42", r.URL.Path)
		assert.Equal(t, "tenant acme", r.Header.Get("X-Caller"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"in_transit","eta_days":2}`))
	}))
	defer server.Close()

	tool := httpTool(server.URL+"/shipments/{tracking_number}", 5)
	tool.Config = []byte(fmt.Sprintf(
		`{"url":%q,"headers":{"X-Caller":"tenant {tenant}"}}`,
		server.URL+"/shipments/{tracking_number}"))

	engine := newEngine(t, &rag.Stub{})
	result, err := engine.Execute(context.Background(), "acme", tool, map[string]any{
		"tracking_number": "PKG-42",
		"tenant":          "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "in_transit", result["status"])
}

func TestExecute_HTTPUpstreamErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	engine := newEngine(t, &rag.Stub{})
	_, err := engine.Execute(context.Background(), "acme", httpTool(server.URL, 5),
		map[string]any{"tracking_number": "PKG-42"})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, http.StatusBadGateway, execErr.Status)
}

func TestExecute_HTTPTimeoutIsExecutionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	tool := httpTool(server.URL, 1)
	tool.Config = []byte(fmt.Sprintf(`{"url":%q,"timeout_seconds":0}`, server.URL))

	engine := newEngine(t, &rag.Stub{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := engine.Execute(ctx, "acme", tool, map[string]any{"tracking_number": "PKG-42"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestExecute_RAGScopesToTenant(t *testing.T) {
	retriever := &rag.Stub{Passages: []rag.Passage{{DocumentID: "d1", Snippet: "returns within 30 days", Score: 0.8}}}
	engine := newEngine(t, retriever)

	tool := models.ToolConfig{
		ID: "t-rag", Name: "kb_search", Type: models.ToolTypeRAG,
		Config:   []byte(`{"collection":"support-kb","top_k":3}`),
		IsActive: true,
	}
	result, err := engine.Execute(context.Background(), "acme", tool, map[string]any{"query": "return policy"})
	require.NoError(t, err)
	assert.Equal(t, 1, result["count"])
	assert.Equal(t, "acme", retriever.LastTenantID)
	assert.Equal(t, "support-kb", retriever.LastCollection)

	_, err = engine.Execute(context.Background(), "acme", tool, map[string]any{})
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestExecute_CustomStrategy(t *testing.T) {
	engine := newEngine(t, &rag.Stub{})

	tool := models.ToolConfig{
		ID: "t-custom", Name: "loyalty_lookup", Type: models.ToolTypeCustom,
		Config:   []byte(`{"strategy":"echo"}`),
		IsActive: true,
	}
	result, err := engine.Execute(context.Background(), "acme", tool, map[string]any{"customer": "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "acme", result["tenant"])

	tool.Config = []byte(`{"strategy":"missing"}`)
	_, err = engine.Execute(context.Background(), "acme", tool, nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "unknown strategy")
}
