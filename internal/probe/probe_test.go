package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lookupFunc adapts a function to the HashLookup interface.
type lookupFunc func(ctx context.Context, tableName, hash string) (string, bool, error)

func (f lookupFunc) LookupFileHash(ctx context.Context, tableName, hash string) (string, bool, error) {
	return f(ctx, tableName, hash)
}

func writeProbeFile(t *testing.T, content string) (string, time.Time) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	return path, info.ModTime().UTC()
}

func TestProber_FreshFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path, modifiedAt := writeProbeFile(t, "hello world\n")

	prober := NewProber(1<<30, WithClock(func() time.Time {
		return modifiedAt.Add(1 * time.Hour)
	}))

	meta, err := prober.Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
	require.NoError(t, err)

	assert.Equal(t, StatusFresh, meta.Status)
	assert.Equal(t, DecisionContinue, meta.Decision)
	assert.Empty(t, meta.Reason)
	assert.Equal(t, int64(12), meta.SizeBytes)
	assert.Equal(t, "6f5902ac237024bdd0c176cb93063dc4", meta.Hash)
	assert.Equal(t, 1*time.Hour, meta.Age)
	assert.False(t, meta.ShouldSample)
}

func TestProber_StaleFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path, modifiedAt := writeProbeFile(t, "hello world\n")

	prober := NewProber(1<<30, WithClock(func() time.Time {
		return modifiedAt.Add(48 * time.Hour)
	}))

	meta, err := prober.Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
	require.NoError(t, err)

	assert.Equal(t, StatusStale, meta.Status)
	assert.Equal(t, DecisionStop, meta.Decision)
	assert.Equal(t, "File is 48.0 hours old, exceeds maximum age of 24.0 hours", meta.Reason)
}

func TestProber_ExactAgeIsStale(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path, modifiedAt := writeProbeFile(t, "hello world\n")

	prober := NewProber(1<<30, WithClock(func() time.Time {
		return modifiedAt.Add(24 * time.Hour)
	}))

	meta, err := prober.Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
	require.NoError(t, err)

	assert.Equal(t, StatusStale, meta.Status)
	assert.Equal(t, "File is 24.0 hours old, exceeds maximum age of 24.0 hours", meta.Reason)
}

func TestProber_MissingFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), "nope.csv")
	prober := NewProber(1 << 30)

	meta, err := prober.Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
	require.NoError(t, err)

	assert.Equal(t, StatusMissing, meta.Status)
	assert.Equal(t, DecisionStop, meta.Decision)
	assert.Equal(t, "File not found: "+path, meta.Reason)
	assert.Empty(t, meta.Hash)
}

func TestProber_DuplicateFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path, modifiedAt := writeProbeFile(t, "hello world\n")

	var lookedUp string

	lookup := lookupFunc(func(_ context.Context, tableName, hash string) (string, bool, error) {
		assert.Equal(t, "orders", tableName)
		lookedUp = hash

		return "run-123", true, nil
	})

	prober := NewProber(1<<30,
		WithHashLookup(lookup),
		WithClock(func() time.Time { return modifiedAt.Add(time.Hour) }),
	)

	meta, err := prober.Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicate, meta.Status)
	assert.Equal(t, DecisionStop, meta.Decision)
	assert.Equal(t, "File hash already processed", meta.Reason)
	assert.Equal(t, "run-123", meta.PriorRunID)
	assert.Equal(t, meta.Hash, lookedUp)
}

func TestProber_LookupErrorSurfaces(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path, _ := writeProbeFile(t, "hello world\n")

	lookupErr := errors.New("store unavailable")
	lookup := lookupFunc(func(context.Context, string, string) (string, bool, error) {
		return "", false, lookupErr
	})

	prober := NewProber(1<<30, WithHashLookup(lookup))

	_, err := prober.Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
	assert.ErrorIs(t, err, lookupErr)
}

func TestProber_SamplingRecommendation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	content := "hello world\n"
	path, modifiedAt := writeProbeFile(t, content)
	size := int64(len(content))

	clock := WithClock(func() time.Time { return modifiedAt.Add(time.Hour) })

	t.Run("above threshold samples", func(t *testing.T) {
		meta, err := NewProber(size-1, clock).Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
		require.NoError(t, err)
		assert.True(t, meta.ShouldSample)
	})

	t.Run("at threshold loads fully", func(t *testing.T) {
		meta, err := NewProber(size, clock).Probe(context.Background(), "orders", path, DefaultFreshnessLimit)
		require.NoError(t, err)
		assert.False(t, meta.ShouldSample)
	})
}
