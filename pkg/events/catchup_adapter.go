package events

import (
	"context"

	"github.com/convoflow/convoflow/pkg/store"
)

// StoreCatchupAdapter wraps the Postgres store to implement CatchupQuerier.
type StoreCatchupAdapter struct {
	store *store.Postgres
}

// NewStoreCatchupAdapter creates a CatchupQuerier from the Postgres store.
func NewStoreCatchupAdapter(st *store.Postgres) *StoreCatchupAdapter {
	return &StoreCatchupAdapter{store: st}
}

// GetCatchupEvents queries persisted events after sinceID up to limit.
func (a *StoreCatchupAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	rows, err := a.store.GetCatchupEvents(ctx, channel, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(rows))
	for i, evt := range rows {
		result[i] = CatchupEvent{ID: evt.ID, Payload: evt.Payload}
	}
	return result, nil
}

var _ CatchupQuerier = (*StoreCatchupAdapter)(nil)
