// Package database contains integration tests that exercise PostgreSQL
// NOTIFY/LISTEN event delivery across independent connections.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/database"
	"github.com/convoflow/convoflow/test/util"
)

// SharedTestDB is a single PostgreSQL schema shared by multiple
// connections. The publisher, the LISTEN connection, and the store pool all
// point at the same schema, which is what a multi-pod deployment looks like.
type SharedTestDB struct {
	connStrWithSchema string
	schemaName        string
}

// NewSharedTestDB provisions a schema, migrates it once, and registers a
// t.Cleanup that drops it after every dependent client has shut down.
func NewSharedTestDB(t *testing.T) *SharedTestDB {
	t.Helper()

	baseConnStr := util.GetBaseConnectionString(t)
	schemaName := util.GenerateSchemaName(t)

	execOnce(t, baseConnStr, fmt.Sprintf("CREATE SCHEMA %s", schemaName))
	t.Logf("SharedTestDB: created schema %s", schemaName)

	connStrWithSchema := util.AddSearchPathToConnString(baseConnStr, schemaName)
	migrateDB, err := stdsql.Open("pgx", connStrWithSchema)
	require.NoError(t, err, "open migration connection")
	require.NoError(t, database.RunMigrations(migrateDB, "test"))
	_ = migrateDB.Close()

	t.Cleanup(func() {
		execOnce(t, baseConnStr, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
	})
	return &SharedTestDB{connStrWithSchema: connStrWithSchema, schemaName: schemaName}
}

// ConnString returns the connection string with the schema's search_path,
// suitable for dedicated LISTEN connections.
func (s *SharedTestDB) ConnString() string {
	return s.connStrWithSchema
}

// NewClient opens an independent database client against the shared schema.
func (s *SharedTestDB) NewClient(t *testing.T) *database.Client {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), s.connStrWithSchema)
	require.NoError(t, err, "open pgx pool")

	db, err := stdsql.Open("pgx", s.connStrWithSchema)
	require.NoError(t, err, "open sql.DB")
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	client := database.NewClientFromPool(pool, db)
	t.Cleanup(client.Close)
	return client
}

// execOnce runs a single statement on a throwaway connection. Failures
// during cleanup are logged, not fatal, so other cleanups still run.
func execOnce(t *testing.T, connStr, stmt string) {
	t.Helper()

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err, "open admin connection")
	defer func() { _ = db.Close() }()
	if _, err := db.ExecContext(context.Background(), stmt); err != nil {
		t.Logf("SharedTestDB: exec %q: %v", stmt, err)
	}
}
