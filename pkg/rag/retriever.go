// Package rag retrieves knowledge-base passages for retrieval tools.
package rag

import "context"

// Passage is one retrieved knowledge-base hit with its relevance score.
type Passage struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Retriever searches a tenant's knowledge base. Implementations must scope
// every query to the given tenant; cross-tenant hits are a correctness bug,
// not a tuning problem.
type Retriever interface {
	Search(ctx context.Context, tenantID, collection, query string, topK int) ([]Passage, error)
}
