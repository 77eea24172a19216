package rag

import "context"

// Stub is a canned Retriever for tests and local development.
type Stub struct {
	Passages []Passage
	Err      error

	// Last* record the most recent call for assertions.
	LastTenantID   string
	LastCollection string
	LastQuery      string
}

func (s *Stub) Search(_ context.Context, tenantID, collection, query string, _ int) ([]Passage, error) {
	s.LastTenantID = tenantID
	s.LastCollection = collection
	s.LastQuery = query
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Passages, nil
}

var _ Retriever = (*Stub)(nil)
