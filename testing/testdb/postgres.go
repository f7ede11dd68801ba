// Package testdb runs one Postgres testcontainer per test package.
package testdb

import (
	"context"
	"os"
	"sync"
	"testing"

	"candidate-service/internal/db"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
)

const defaultImage = "postgres:16-alpine"

var (
	shared     *PostgresContainer
	sharedOnce sync.Once
)

type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DB        *bun.DB
	DSN       string
}

// SetupSharedPostgres starts the package's Postgres container on first use and
// returns it on every later call. TESTDB_IMAGE overrides the image.
//
// Tests sharing the container must not run in parallel. Call Cleanup once,
// from the top-level test:
//
//	pg := testdb.SetupSharedPostgres(t)
//	defer pg.Cleanup(t)
//	pg.RunMigrations(t, []interface{}{(*candidate.Candidate)(nil)})
//
//	t.Run("Case", func(t *testing.T) {
//	    testdb.CleanupTables(t, pg.DB, "candidates")
//	})
func SetupSharedPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	sharedOnce.Do(func() {
		ctx := context.Background()

		image := os.Getenv("TESTDB_IMAGE")
		if image == "" {
			image = defaultImage
		}

		container, err := postgres.Run(ctx, image,
			postgres.WithDatabase("candidates_test"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err, "failed to start postgres container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)

		conn, err := db.NewWithDSN(ctx, dsn)
		require.NoError(t, err)

		shared = &PostgresContainer{Container: container, DB: conn, DSN: dsn}
	})

	require.NotNil(t, shared, "shared postgres container failed to start")
	return shared
}

func (pc *PostgresContainer) Cleanup(t *testing.T) {
	t.Helper()

	db.Close(pc.DB)
	if pc.Container == nil {
		return
	}
	if err := pc.Container.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate postgres container: %s", err)
	}
}

// RunMigrations applies the same table and index migrations the service runs on startup.
func (pc *PostgresContainer) RunMigrations(t *testing.T, models []interface{}, indexes ...db.Index) {
	t.Helper()
	require.NoError(t, db.RunMigrations(context.Background(), pc.DB, models, indexes...), "failed to run migrations")
}

// CleanupTables empties tables and resets their id sequences.
func CleanupTables(t *testing.T, conn *bun.DB, tables ...string) {
	t.Helper()

	for _, table := range tables {
		_, err := conn.ExecContext(context.Background(), "TRUNCATE ? RESTART IDENTITY CASCADE", bun.Ident(table))
		require.NoError(t, err, "failed to truncate %s", table)
	}
}

// CountRows counts rows in table matching where; an empty where counts all rows.
func CountRows(t *testing.T, conn *bun.DB, table, where string, args ...interface{}) int {
	t.Helper()

	q := conn.NewSelect().Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	n, err := q.Count(context.Background())
	require.NoError(t, err, "failed to count rows in %s", table)
	return n
}
