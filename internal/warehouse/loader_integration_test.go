package warehouse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/datawarden-io/datawarden/internal/config"
)

// setupWarehouse starts a throwaway warehouse container and registers its
// cleanup. The pq driver is registered by this package's loader import.
func setupWarehouse(ctx context.Context, t *testing.T) *config.TestWarehouse {
	t.Helper()

	wh := config.SetupTestWarehouse(ctx, t)

	t.Cleanup(func() {
		_ = wh.Connection.Close()
		_ = testcontainers.TerminateContainer(wh.Container)
	})

	return wh
}

func TestPostgresLoader_CopyRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	wh := setupWarehouse(ctx, t)

	_, err := wh.Connection.ExecContext(ctx, `
		CREATE TABLE transactions (
			transaction_id BIGINT,
			amount         DOUBLE PRECISION,
			currency       TEXT,
			created_at     TIMESTAMPTZ,
			settled        BOOLEAN
		)`)
	require.NoError(t, err)

	loader, err := NewPostgresLoader(NewConfig(wh.URL))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = loader.Close()
	})

	result, err := loader.Load(ctx, sampleTable(t), "transactions")
	require.NoError(t, err)

	assert.Equal(t, "transactions", result.TableName)
	assert.Equal(t, 3, result.RowsLoaded)
	assert.True(t, strings.HasPrefix(result.Label, "load_"))

	var count int
	require.NoError(t, wh.Connection.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions`).Scan(&count))
	assert.Equal(t, 3, count)

	// Nulls survive the copy as SQL NULL, not empty strings.
	var nullCurrencies int
	require.NoError(t, wh.Connection.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE currency IS NULL`).Scan(&nullCurrencies))
	assert.Equal(t, 1, nullCurrencies)

	var total float64
	require.NoError(t, wh.Connection.QueryRowContext(ctx,
		`SELECT SUM(amount) FROM transactions`).Scan(&total))
	assert.InDelta(t, 60.75, total, 0.0001)

	var settled int
	require.NoError(t, wh.Connection.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE settled`).Scan(&settled))
	assert.Equal(t, 2, settled)
}

func TestPostgresLoader_MissingTargetTable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	wh := setupWarehouse(ctx, t)

	loader, err := NewPostgresLoader(NewConfig(wh.URL))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = loader.Close()
	})

	// The warehouse is reachable, so this is a load fault, not infra.
	_, err = loader.Load(ctx, sampleTable(t), "never_created")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.NotErrorIs(t, err, ErrInfraTransient)
}

func TestPostgresLoader_LoadIsTransactional(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	wh := setupWarehouse(ctx, t)

	// NOT NULL on currency makes the second row poison the copy.
	_, err := wh.Connection.ExecContext(ctx, `
		CREATE TABLE transactions (
			transaction_id BIGINT,
			amount         DOUBLE PRECISION,
			currency       TEXT NOT NULL,
			created_at     TIMESTAMPTZ,
			settled        BOOLEAN
		)`)
	require.NoError(t, err)

	loader, err := NewPostgresLoader(NewConfig(wh.URL))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = loader.Close()
	})

	_, err = loader.Load(ctx, sampleTable(t), "transactions")
	require.ErrorIs(t, err, ErrLoadFailed)

	// The failed load left nothing behind.
	var count int
	require.NoError(t, wh.Connection.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions`).Scan(&count))
	assert.Zero(t, count)
}
