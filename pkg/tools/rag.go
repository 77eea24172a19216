package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/rag"
)

// ragToolConfig is the type-specific config for retrieval tools.
type ragToolConfig struct {
	Collection string `json:"collection"`
	TopK       int    `json:"top_k,omitempty"`
}

// RAGRunner answers retrieval tool calls from the tenant's knowledge base.
// The search is always scoped to the calling tenant.
type RAGRunner struct {
	retriever rag.Retriever
}

// NewRAGRunner wraps a retriever.
func NewRAGRunner(retriever rag.Retriever) *RAGRunner {
	return &RAGRunner{retriever: retriever}
}

func (r *RAGRunner) Run(ctx context.Context, tenantID string, tool models.ToolConfig, input map[string]any) (map[string]any, error) {
	var cfg ragToolConfig
	if err := json.Unmarshal(tool.Config, &cfg); err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: fmt.Errorf("invalid rag tool config: %w", err)}
	}
	if cfg.Collection == "" {
		cfg.Collection = "default"
	}

	query, _ := input["query"].(string)
	if query == "" {
		return nil, &InvalidInputError{Tool: tool.Name, Causes: []string{"/query: missing or empty"}}
	}

	passages, err := r.retriever.Search(ctx, tenantID, cfg.Collection, query, cfg.TopK)
	if err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: err}
	}
	return map[string]any{
		"passages": passages,
		"count":    len(passages),
	}, nil
}

var _ Runner = (*RAGRunner)(nil)
