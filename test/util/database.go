// Package util provides shared helpers for database-backed tests.
package util

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/convoflow/convoflow/pkg/database"
)

var (
	containerOnce sync.Once
	sharedConnStr string
	containerErr  error
)

// SetupTestDatabase gives the test its own freshly migrated schema inside
// the shared database and returns a client bound to it. Schema-per-test
// keeps tests parallelizable against a single PostgreSQL instance, whether
// that instance is the CI service (CI_DATABASE_URL) or a local
// testcontainer started once per package.
func SetupTestDatabase(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	base := GetBaseConnectionString(t)
	schema := GenerateSchemaName(t)

	admin, err := stdsql.Open("pgx", base)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, err := admin.ExecContext(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("failed to drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})
	t.Logf("test schema: %s", schema)

	// Every connection of both pools picks up the schema via search_path.
	connStr := AddSearchPathToConnString(base, schema)
	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	require.NoError(t, database.RunMigrations(db, "test"))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	client := database.NewClientFromPool(pool, db)
	t.Cleanup(client.Close)
	return client
}

// GetBaseConnectionString returns the schema-less connection string of the
// shared database. Integration tests that need raw dedicated connections
// (the LISTEN connection, for one) start from this.
func GetBaseConnectionString(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		return url
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("starting shared PostgreSQL testcontainer")

		pgc, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		sharedConnStr, containerErr = pgc.ConnectionString(ctx, "sslmode=disable")
	})

	require.NoError(t, containerErr, "shared test container unavailable")
	return sharedConnStr
}

// GenerateSchemaName derives a unique schema identifier from the test name,
// kept short of PostgreSQL's 63-character limit.
func GenerateSchemaName(t *testing.T) string {
	var b strings.Builder
	b.WriteString("test_")
	for _, r := range strings.ToLower(t.Name()) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() >= 45 {
			break
		}
	}
	b.WriteByte('_')
	b.WriteString(strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
	return b.String()
}

// AddSearchPathToConnString appends search_path so every connection opened
// from the string lands in the given schema.
func AddSearchPathToConnString(connStr, schema string) string {
	if strings.Contains(connStr, "?") {
		return connStr + "&search_path=" + schema
	}
	return connStr + "?search_path=" + schema
}
