package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolHealth reports the outcome of a connectivity probe and the pgx pool
// counters at that moment.
type PoolHealth struct {
	Status        string `json:"status"`
	ResponseTime  int64  `json:"response_time_ms"`
	TotalConns    int32  `json:"total_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	IdleConns     int32  `json:"idle_conns"`
	MaxConns      int32  `json:"max_conns"`
}

// Health pings PostgreSQL through the pool. The counters come back even on
// failure so the health endpoint can show pool exhaustion.
func Health(ctx context.Context, pool *pgxpool.Pool) (*PoolHealth, error) {
	start := time.Now()
	err := pool.Ping(ctx)

	st := pool.Stat()
	h := &PoolHealth{
		Status:        "healthy",
		ResponseTime:  time.Since(start).Milliseconds(),
		TotalConns:    st.TotalConns(),
		AcquiredConns: st.AcquiredConns(),
		IdleConns:     st.IdleConns(),
		MaxConns:      st.MaxConns(),
	}
	if err != nil {
		h.Status = "unhealthy"
	}
	return h, err
}
