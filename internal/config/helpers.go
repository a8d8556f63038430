// Package config provides configuration and shared test utilities for the Datawarden application.
package config

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	occurrenceCount = 2
	startUpTimeOut  = 120 * time.Second
)

// TestWarehouse encapsulates warehouse test resources for cleanup.
// Used by integration tests that exercise the downstream load boundary.
type TestWarehouse struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
	URL        string
}

// SetupTestWarehouse creates a PostgreSQL container acting as the downstream warehouse.
// The warehouse sink manages its own target tables, so no migrations are applied here.
//
// Usage:
//
//	func TestWarehouseLoad(t *testing.T) {
//		if testing.Short() {
//			t.Skip("skipping integration test in short mode")
//		}
//		ctx := context.Background()
//		wh := config.SetupTestWarehouse(ctx, t)
//		t.Cleanup(func() {
//			_ = wh.Connection.Close()
//			_ = testcontainers.TerminateContainer(wh.Container)
//		})
//		// ... your test code
//	}
//
// The caller's package must register the "postgres" database/sql driver;
// importing the warehouse loader does that.
//
// Cleanup is the caller's responsibility using t.Cleanup().
func SetupTestWarehouse(ctx context.Context, t *testing.T) *TestWarehouse {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("warehouse_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(occurrenceCount).
				WithStartupTimeout(startUpTimeOut),
		),
	)
	require.NoError(t, err, "Failed to start postgres container")
	require.NotNil(t, pgContainer, "postgres container is nil")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "Failed to open warehouse database")

	return &TestWarehouse{
		Container:  pgContainer,
		Connection: conn,
		URL:        connStr,
	}
}
