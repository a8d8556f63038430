package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// stubPatterns answers canned weekday and monthly baselines per metric.
type stubPatterns struct {
	weekday map[string]baseline.Stats
	monthly map[string]baseline.Stats
}

func (s *stubPatterns) SeasonalBaseline(_ context.Context, _, metricName string, _ time.Time) (baseline.Stats, error) {
	if stats, ok := s.weekday[metricName]; ok {
		return stats, nil
	}

	return baseline.Stats{Kind: verdict.BaselineInitializing}, nil
}

func (s *stubPatterns) MonthlyBaseline(_ context.Context, _, metricName string, _ time.Time) (baseline.Stats, error) {
	if stats, ok := s.monthly[metricName]; ok {
		return stats, nil
	}

	return baseline.Stats{Kind: verdict.BaselineInitializing}, nil
}

// aMonday is 2025-06-02, a Monday in June.
var aMonday = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func TestSeasonalDetector_Analyze_WeekdayPattern(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	detector := NewSeasonalDetector(&stubPatterns{
		weekday: map[string]baseline.Stats{
			"row_count": seasonalStats(1000, 100),
		},
	})

	t.Run("within two sigma is normal", func(t *testing.T) {
		analysis, err := detector.Analyze(context.Background(), "transactions",
			map[string]float64{"row_count": 1150}, aMonday)
		require.NoError(t, err)

		assert.Equal(t, SeasonalNormal, analysis.Status)
		assert.Equal(t, verdict.BaselineSeasonal, analysis.Kind)
		assert.Empty(t, analysis.Anomalies)
	})

	t.Run("between two and three sigma warns", func(t *testing.T) {
		analysis, err := detector.Analyze(context.Background(), "transactions",
			map[string]float64{"row_count": 1250}, aMonday)
		require.NoError(t, err)

		assert.Equal(t, SeasonalWarning, analysis.Status)
		require.Len(t, analysis.Anomalies, 1)

		anomaly := analysis.Anomalies[0]
		assert.Equal(t, "row_count", anomaly.Metric)
		assert.Equal(t, "day-of-week (Monday)", anomaly.Pattern)
		assert.InDelta(t, 2.5, anomaly.DeviationSigma, 0.001)
		assert.Equal(t, "Value deviates 2.5σ from day-of-week (Monday) norm", anomaly.Context)
	})

	t.Run("beyond three sigma is critical", func(t *testing.T) {
		analysis, err := detector.Analyze(context.Background(), "transactions",
			map[string]float64{"row_count": 1500}, aMonday)
		require.NoError(t, err)

		assert.Equal(t, SeasonalCritical, analysis.Status)
		require.Len(t, analysis.Anomalies, 1)
		assert.Equal(t, "Significant anomaly: 5.0σ from day-of-week (Monday) norm", analysis.Anomalies[0].Context)
	})
}

func TestSeasonalDetector_Analyze_MonthlyFallback(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	detector := NewSeasonalDetector(&stubPatterns{
		monthly: map[string]baseline.Stats{
			"row_count": seasonalStats(2000, 100),
		},
	})

	analysis, err := detector.Analyze(context.Background(), "transactions",
		map[string]float64{"row_count": 2250}, aMonday)
	require.NoError(t, err)

	require.Len(t, analysis.Anomalies, 1)
	assert.Equal(t, "monthly (June)", analysis.Anomalies[0].Pattern)
	assert.Equal(t, "Value deviates 2.5σ from monthly (June) norm", analysis.Anomalies[0].Context)
}

func TestSeasonalDetector_Analyze_GlobalBaselineIsNotAPattern(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// A global fallback from the pattern source must not masquerade as a
	// weekday pattern. With nothing monthly either, the metric stays
	// unjudged.
	detector := NewSeasonalDetector(&stubPatterns{
		weekday: map[string]baseline.Stats{
			"row_count": {Mean: 1000, Std: 50, Count: 20, Kind: verdict.BaselineGlobal},
		},
	})

	analysis, err := detector.Analyze(context.Background(), "transactions",
		map[string]float64{"row_count": 1500}, aMonday)
	require.NoError(t, err)

	assert.Equal(t, SeasonalUnknown, analysis.Status)
	assert.Equal(t, verdict.BaselineInitializing, analysis.Kind)
	assert.Empty(t, analysis.Anomalies)
	assert.Equal(t, "Insufficient historical data for seasonal analysis", analysis.Note)
}

func TestSeasonalDetector_Analyze_NoHistory(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	detector := NewSeasonalDetector(&stubPatterns{})

	analysis, err := detector.Analyze(context.Background(), "transactions",
		map[string]float64{"row_count": 1000, "mean_amount": 42}, aMonday)
	require.NoError(t, err)

	assert.Equal(t, SeasonalUnknown, analysis.Status)
	assert.Equal(t, "Insufficient historical data for seasonal analysis", analysis.Note)
}

func TestSeasonalDetector_Analyze_ZeroVariancePattern(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	detector := NewSeasonalDetector(&stubPatterns{
		weekday: map[string]baseline.Stats{
			"row_count": seasonalStats(1000, 0),
		},
	})

	// Std falls back to 10% of the mean, so 1250 sits 2.5 sigma out.
	analysis, err := detector.Analyze(context.Background(), "transactions",
		map[string]float64{"row_count": 1250}, aMonday)
	require.NoError(t, err)

	require.Len(t, analysis.Anomalies, 1)
	assert.InDelta(t, 2.5, analysis.Anomalies[0].DeviationSigma, 0.001)
}

func TestSeasonalDetector_Analyze_WorstSeverityWins(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	detector := NewSeasonalDetector(&stubPatterns{
		weekday: map[string]baseline.Stats{
			"mean_amount": seasonalStats(10, 1),   // 12.5 -> warning
			"row_count":   seasonalStats(1000, 1), // 2000 -> critical
		},
	})

	analysis, err := detector.Analyze(context.Background(), "transactions",
		map[string]float64{"mean_amount": 12.5, "row_count": 2000}, aMonday)
	require.NoError(t, err)

	assert.Equal(t, SeasonalCritical, analysis.Status)
	assert.Len(t, analysis.Anomalies, 2)
}

func TestSeasonalViolations(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	analysis := &verdict.SeasonalAnalysis{
		Status: SeasonalCritical,
		Anomalies: []verdict.SeasonalAnomaly{
			{Metric: "row_count", Severity: SeasonalCritical, Context: "Significant anomaly: 5.0σ from day-of-week (Monday) norm"},
			{Metric: "mean_amount", Severity: SeasonalWarning, Context: "Value deviates 2.5σ from monthly (June) norm"},
		},
	}

	violations := SeasonalViolations(analysis)
	require.Len(t, violations, 2)

	// Seasonal findings annotate, they never block.
	assert.Equal(t, verdict.SeverityWarning, violations[0].Severity)
	assert.Equal(t, verdict.KindAnomalyCritical, violations[0].Kind)
	assert.Equal(t, "Seasonal Anomaly: Significant anomaly: 5.0σ from day-of-week (Monday) norm", violations[0].Message)

	assert.Equal(t, verdict.SeverityWarning, violations[1].Severity)
	assert.Equal(t, verdict.KindAnomalyWarning, violations[1].Kind)
}
