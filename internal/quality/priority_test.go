package quality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `tables:
  transactions:
    certification: gold
    avg_daily_queries: 100
    sla_hours: 6
    owner: payments
  logs:
    certification: bronze
    avg_daily_queries: 0
    sla_hours: 24
  staging_events:
    certification: silver
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadCatalog(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("populated catalog", func(t *testing.T) {
		prioritizer, err := LoadCatalog(writeCatalog(t, sampleCatalog))
		require.NoError(t, err)
		assert.Equal(t, 3, prioritizer.TableCount())

		entry, ok := prioritizer.Entry("transactions")
		require.True(t, ok)
		assert.Equal(t, "gold", entry.Certification)
		assert.Equal(t, 100, entry.AvgDailyQueries)
		assert.InDelta(t, 6, entry.SLAHours, 0.001)
		assert.Equal(t, "payments", entry.Owner)
	})

	t.Run("missing file yields empty catalog", func(t *testing.T) {
		prioritizer, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Zero(t, prioritizer.TableCount())
	})

	t.Run("invalid yaml yields empty catalog", func(t *testing.T) {
		prioritizer, err := LoadCatalog(writeCatalog(t, "tables: [not: a: map"))
		require.NoError(t, err)
		assert.Zero(t, prioritizer.TableCount())
	})
}

func TestPrioritizer_Prioritize(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	prioritizer, err := LoadCatalog(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)

	t.Run("gold table with consumers ranks critical", func(t *testing.T) {
		priority := prioritizer.Prioritize("transactions", 3)

		// 100 (gold) + 30 (downstream) + ln(101)*5 + 36 (sla)
		assert.InDelta(t, 189.1, priority.Score, 0.05)
		assert.Equal(t, TierCritical, priority.Tier)
		assert.Equal(t, "gold", priority.Factors.Certification)
		assert.Equal(t, 3, priority.Factors.DownstreamConsumers)
		assert.Equal(t, 100, priority.Factors.AvgDailyQueries)
		assert.InDelta(t, 6, priority.Factors.SLAHours, 0.001)
		assert.Empty(t, priority.Reason)
	})

	t.Run("bronze table ranks medium", func(t *testing.T) {
		priority := prioritizer.Prioritize("logs", 0)

		assert.InDelta(t, 25, priority.Score, 0.001)
		assert.Equal(t, TierMedium, priority.Tier)
	})

	t.Run("omitted sla defaults to a day", func(t *testing.T) {
		priority := prioritizer.Prioritize("staging_events", 0)

		assert.InDelta(t, 24, priority.Factors.SLAHours, 0.001)
		assert.InDelta(t, 50, priority.Score, 0.001)
		assert.Equal(t, TierHigh, priority.Tier)
	})

	t.Run("unregistered table is unknown", func(t *testing.T) {
		priority := prioritizer.Prioritize("mystery", 2)

		assert.Zero(t, priority.Score)
		assert.Equal(t, TierUnknown, priority.Tier)
		assert.Equal(t, "Table not registered in metadata", priority.Reason)
		assert.Equal(t, "none", priority.Factors.Certification)
		assert.Equal(t, 2, priority.Factors.DownstreamConsumers)
	})
}

func TestScanCadence(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "Every run", ScanCadence(TierCritical))
	assert.Equal(t, "Hourly", ScanCadence(TierHigh))
	assert.Equal(t, "Daily", ScanCadence(TierMedium))
	assert.Equal(t, "Weekly", ScanCadence(TierLow))
	assert.Equal(t, "On demand", ScanCadence(TierUnknown))
}
