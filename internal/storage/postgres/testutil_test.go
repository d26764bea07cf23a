package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"confidential-rebalancer/internal/domain"
	"confidential-rebalancer/internal/fhe"
)

// setupTestDB creates a PostgreSQL container for testing and applies the
// migrations. Returns a cleanup function that must be called after tests
// complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations applies the SQL files from the sibling migrations directory
// in lexical order. The migration runner in internal/storage/migrations
// cannot be imported here without a package cycle, so the files are read
// directly.
func runMigrations(t *testing.T, pool *Pool) {
	t.Helper()
	ctx := context.Background()

	dir := filepath.Join("..", "migrations", "postgres")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "failed to read migrations directory")

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	require.NotEmpty(t, files, "no migration files found")

	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(dir, file))
		require.NoError(t, err, "failed to read migration %s", file)

		_, err = pool.Exec(ctx, string(data))
		require.NoError(t, err, "failed to apply migration %s", file)
	}
}

// testStrategyID builds a deterministic strategy id for tests.
func testStrategyID(b byte) domain.StrategyID {
	var id domain.StrategyID
	id[0] = b
	return id
}

// testHandle builds a deterministic handle for tests.
func testHandle(b byte) fhe.Handle {
	var h fhe.Handle
	h[0] = b
	return h
}

// testStrategy builds a strategy record with distinct handle values.
func testStrategy(b byte) *domain.Strategy {
	return &domain.Strategy{
		ID:                 testStrategyID(b),
		Owner:              "owner-1",
		Active:             true,
		RebalanceFrequency: 10,
		Params: domain.ExecutionParams{
			ExecutionWindow: testHandle(1),
			SpreadBlocks:    testHandle(2),
			PriorityFee:     testHandle(3),
			MaxSlippage:     testHandle(4),
		},
		CreatedAt: 1704067200000,
	}
}
