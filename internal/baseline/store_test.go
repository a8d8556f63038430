package baseline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

// setupStore opens a throwaway baseline database with the embedded schema
// applied.
func setupStore(t *testing.T) *Store {
	t.Helper()

	cfg := &Config{
		Path:           filepath.Join(t.TempDir(), "baseline.db"),
		MigrationTable: "schema_migrations",
	}

	conn, err := NewConnection(cfg)
	require.NoError(t, err, "Failed to open baseline database")

	t.Cleanup(func() {
		_ = conn.Close()
	})

	store, err := NewStore(conn)
	require.NoError(t, err)

	return store
}

// mondays returns n consecutive Mondays ending 2025-06-02.
func mondays(n int) []time.Time {
	last := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) // a Monday

	out := make([]time.Time, n)
	for i := range out {
		out[n-1-i] = last.AddDate(0, 0, -7*i)
	}

	return out
}

func TestNewStore_NilConnection(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := NewStore(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoDatabaseConnection), "Should return ErrNoDatabaseConnection") //nolint:testifylint
}

func TestMondayWeekday(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"Monday is 0", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), 0},
		{"Wednesday is 2", time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), 2},
		{"Sunday is 6", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mondayWeekday(tt.date); got != tt.want {
				t.Errorf("mondayWeekday() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSeasonalBaseline_Initializing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	// Two samples total: below both the seasonal and global minimums.
	for i, ts := range mondays(2) {
		err := store.RecordMetrics(ctx, uuid.New().String(), "orders", ts, map[string]float64{
			"row_count": 1000 + float64(i),
		})
		require.NoError(t, err)
	}

	stats, err := store.SeasonalBaseline(ctx, "orders", "row_count", time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, stats.Initializing())
	assert.Equal(t, 2, stats.Count)
}

func TestSeasonalBaseline_SeasonalFromSameWeekday(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	values := []float64{1000, 1010, 990}
	for i, ts := range mondays(3) {
		err := store.RecordMetrics(ctx, uuid.New().String(), "orders", ts, map[string]float64{
			"row_count": values[i],
		})
		require.NoError(t, err)
	}

	// Next Monday: three same-weekday samples exist.
	stats, err := store.SeasonalBaseline(ctx, "orders", "row_count", time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, verdict.BaselineSeasonal, stats.Kind)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 1000.0, stats.Mean, 1e-9)
	assert.InDelta(t, 10.0, stats.Std, 1e-9)
}

func TestSeasonalBaseline_GlobalFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	// Three samples spread across Tue/Wed/Thu: no weekday has three, but
	// the global window does.
	days := []time.Time{
		time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 5, 8, 0, 0, 0, time.UTC),
	}
	for i, ts := range days {
		err := store.RecordMetrics(ctx, uuid.New().String(), "orders", ts, map[string]float64{
			"row_count": 500 + float64(i)*10,
		})
		require.NoError(t, err)
	}

	stats, err := store.SeasonalBaseline(ctx, "orders", "row_count", time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, verdict.BaselineGlobal, stats.Kind)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 510.0, stats.Mean, 1e-9)
}

func TestMonthlyBaseline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	june := []time.Time{
		time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC),
	}
	for i, ts := range june {
		err := store.RecordMetrics(ctx, uuid.New().String(), "orders", ts, map[string]float64{
			"mean_amount": 100 + float64(i)*2,
		})
		require.NoError(t, err)
	}

	t.Run("TwoSameMonthSamplesSuffice", func(t *testing.T) {
		stats, err := store.MonthlyBaseline(ctx, "orders", "mean_amount", time.Date(2025, 6, 17, 8, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		assert.Equal(t, verdict.BaselineSeasonal, stats.Kind)
		assert.Equal(t, 2, stats.Count)
		assert.InDelta(t, 101.0, stats.Mean, 1e-9)
	})

	t.Run("DifferentMonthInitializing", func(t *testing.T) {
		stats, err := store.MonthlyBaseline(ctx, "orders", "mean_amount", time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		assert.True(t, stats.Initializing())
	})
}

func TestRecordRun_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	quality := 87.5
	zMax := 1.4
	rec := &RunRecord{
		RunID:        uuid.New().String(),
		Timestamp:    time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
		TableName:    "orders",
		FileHash:     "d41d8cd98f00b204e9800998ecf8427e",
		RowCount:     1000,
		Status:       verdict.StatusPassWithWarnings,
		QualityScore: &quality,
		AnomalyCount: 1,
		ZScoreMax:    &zMax,
		DurationMS:   230,
		Reason:       "1 warning",
		Violations: []verdict.Violation{
			verdict.Warning(verdict.KindSchemaWarning, "tier", "Unexpected column: tier"),
		},
	}

	require.NoError(t, store.RecordRun(ctx, rec))

	runs, err := store.RecentRuns(ctx, "orders", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, verdict.StatusPassWithWarnings, got.Status)
	assert.Equal(t, int64(1000), got.RowCount)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 87.5, *got.QualityScore, 1e-9)
	require.Len(t, got.Violations, 1)
	assert.Equal(t, verdict.KindSchemaWarning, got.Violations[0].Kind)
	assert.Equal(t, "tier", got.Violations[0].Column)
}

func TestRecordRun_ValidationFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	tests := []struct {
		name    string
		rec     *RunRecord
		wantErr error
	}{
		{
			name:    "empty run id",
			rec:     &RunRecord{TableName: "orders", Timestamp: time.Now(), Status: verdict.StatusPass},
			wantErr: ErrRunIDEmpty,
		},
		{
			name:    "empty table name",
			rec:     &RunRecord{RunID: "r1", Timestamp: time.Now(), Status: verdict.StatusPass},
			wantErr: ErrTableNameEmpty,
		},
		{
			name:    "zero timestamp",
			rec:     &RunRecord{RunID: "r1", TableName: "orders", Status: verdict.StatusPass},
			wantErr: ErrTimestampZero,
		},
		{
			name:    "invalid status",
			rec:     &RunRecord{RunID: "r1", TableName: "orders", Timestamp: time.Now(), Status: verdict.Status("BAD")},
			wantErr: ErrStatusInvalid,
		},
		{
			name: "negative row count",
			rec: &RunRecord{
				RunID: "r1", TableName: "orders", Timestamp: time.Now(),
				Status: verdict.StatusPass, RowCount: -1,
			},
			wantErr: ErrRowCountNegative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.RecordRun(ctx, tt.rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v in chain, got %v", tt.wantErr, err) //nolint:testifylint
		})
	}
}

func TestLookupFileHash(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	runID := uuid.New().String()
	rec := &RunRecord{
		RunID:     runID,
		Timestamp: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
		TableName: "orders",
		FileHash:  "abc123",
		Status:    verdict.StatusPass,
	}
	require.NoError(t, store.RecordRun(ctx, rec))

	t.Run("KnownHash", func(t *testing.T) {
		got, found, err := store.LookupFileHash(ctx, "orders", "abc123")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, runID, got)
	})

	t.Run("UnknownHash", func(t *testing.T) {
		_, found, err := store.LookupFileHash(ctx, "orders", "def456")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SameHashOtherTable", func(t *testing.T) {
		_, found, err := store.LookupFileHash(ctx, "payments", "abc123")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestLearn_RefreshesThresholds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	for i, ts := range mondays(4) {
		err := store.Learn(ctx, uuid.New().String(), "orders", ts, map[string]float64{
			"row_count": 1000 + float64(i)*10,
		})
		require.NoError(t, err)
	}

	thresholds, err := store.LearnedThresholds(ctx, "orders")
	require.NoError(t, err)

	// Delete-then-insert keeps exactly one row per metric.
	require.Len(t, thresholds, 1)

	th, ok := thresholds["row_count"]
	require.True(t, ok)
	assert.Equal(t, 4, th.SampleCount)
	assert.InDelta(t, 1015.0, th.Mean, 1e-9)
	assert.Less(t, th.LowerBound, th.Mean)
	assert.Greater(t, th.UpperBound, th.Mean)
	assert.True(t, th.Contains(1015.0))
	assert.False(t, th.Contains(100000.0))
}

func TestRecentMetricValues_SinceFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	for i, ts := range mondays(4) {
		err := store.RecordMetrics(ctx, uuid.New().String(), "orders", ts, map[string]float64{
			"row_count": float64(i),
		})
		require.NoError(t, err)
	}

	// Only the last two Mondays fall inside the window.
	since := time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC)

	samples, err := store.RecentMetricValues(ctx, "orders", "row_count", since)
	require.NoError(t, err)

	require.Len(t, samples, 2)
	assert.True(t, samples[0].Timestamp.Before(samples[1].Timestamp), "samples must be oldest first")
	assert.InDelta(t, 2.0, samples[0].Value, 1e-9)
	assert.InDelta(t, 3.0, samples[1].Value, 1e-9)
}

func TestUpsertDataset_PreservesExistingState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	scanned := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	first := &DatasetEntry{
		TableName:    "orders",
		ContractPath: "/contracts/orders.yaml",
		Lifecycle:    "active",
		Criticality:  verdict.CriticalityHigh,
		LastScanned:  &scanned,
		LastStatus:   verdict.StatusPass,
	}
	require.NoError(t, store.UpsertDataset(ctx, first))

	// Second upsert omits everything except the status: existing values
	// must survive and the scan counter must advance.
	second := &DatasetEntry{
		TableName:  "orders",
		LastStatus: verdict.StatusFail,
	}
	require.NoError(t, store.UpsertDataset(ctx, second))

	got, err := store.Dataset(ctx, "orders")
	require.NoError(t, err)

	assert.Equal(t, "/contracts/orders.yaml", got.ContractPath)
	assert.Equal(t, "active", got.Lifecycle)
	assert.Equal(t, verdict.CriticalityHigh, got.Criticality)
	assert.Equal(t, verdict.StatusFail, got.LastStatus)
	require.NotNil(t, got.LastScanned)
	assert.Equal(t, 2, got.ScanCount)
}

func TestUpsertDataset_MtimePrecisionRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	// File mtimes carry sub-second fractions on most filesystems. The
	// registry must return the exact instant it was given, or the
	// unchanged-file check re-evaluates every sweep.
	mtime := time.Date(2025, 6, 2, 8, 0, 0, 537123456, time.UTC)
	entry := &DatasetEntry{
		TableName:     "orders",
		LastStatus:    verdict.StatusPass,
		LastFileMtime: &mtime,
	}
	require.NoError(t, store.UpsertDataset(ctx, entry))

	got, err := store.Dataset(ctx, "orders")
	require.NoError(t, err)

	require.NotNil(t, got.LastFileMtime)
	assert.True(t, got.LastFileMtime.Equal(mtime),
		"stored mtime %v must equal original %v", got.LastFileMtime, mtime)
}

func TestDataset_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	_, err := store.Dataset(ctx, "ghost_table")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatasetNotFound), "Should return ErrDatasetNotFound") //nolint:testifylint
}

func TestListDatasets_Ordered(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	for _, name := range []string{"payments", "orders", "users"} {
		require.NoError(t, store.UpsertDataset(ctx, &DatasetEntry{TableName: name}))
	}

	entries, err := store.ListDatasets(ctx)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "orders", entries[0].TableName)
	assert.Equal(t, "payments", entries[1].TableName)
	assert.Equal(t, "users", entries[2].TableName)

	// Defaults fill in for fields the upsert omitted.
	assert.Equal(t, "active", entries[0].Lifecycle)
	assert.Equal(t, verdict.CriticalityLow, entries[0].Criticality)
}

func TestBaselineHistory_GrowsMonotonically(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	for i, ts := range mondays(5) {
		err := store.RecordMetrics(ctx, uuid.New().String(), "orders", ts, map[string]float64{
			"row_count": 1000 + float64(i),
		})
		require.NoError(t, err)

		stats, err := store.SeasonalBaseline(ctx, "orders", "row_count", ts.AddDate(0, 0, 7))
		require.NoError(t, err)
		assert.Equal(t, i+1, stats.Count, "every run must add exactly one sample")
	}
}
