package rag

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTopK = 5

// PostgresRetriever ranks documents with PostgreSQL full-text search over
// the GIN-indexed documents table.
type PostgresRetriever struct {
	pool *pgxpool.Pool
}

// NewPostgresRetriever wraps an existing pool.
func NewPostgresRetriever(pool *pgxpool.Pool) *PostgresRetriever {
	return &PostgresRetriever{pool: pool}
}

func (r *PostgresRetriever) Search(ctx context.Context, tenantID, collection, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	rows, err := r.pool.Query(ctx,
		`SELECT document_id, title,
			ts_headline('english', body, websearch_to_tsquery('english', $3),
				'MaxFragments=2, MaxWords=40') AS snippet,
			ts_rank(to_tsvector('english', title || ' ' || body),
				websearch_to_tsquery('english', $3)) AS score
		 FROM documents
		 WHERE tenant_id = $1 AND collection = $2
		   AND to_tsvector('english', title || ' ' || body) @@ websearch_to_tsquery('english', $3)
		 ORDER BY score DESC
		 LIMIT $4`,
		tenantID, collection, query, topK)
	if err != nil {
		return nil, fmt.Errorf("document search: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.DocumentID, &p.Title, &p.Snippet, &p.Score); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ Retriever = (*PostgresRetriever)(nil)
