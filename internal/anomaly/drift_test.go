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

// stubHistory answers canned samples per metric and records the windows
// it was asked for.
type stubHistory struct {
	samples map[string][]baseline.Sample
	asked   []string
}

func (s *stubHistory) RecentMetricValues(_ context.Context, _, metricName string, _ time.Time) ([]baseline.Sample, error) {
	s.asked = append(s.asked, metricName)

	return s.samples[metricName], nil
}

func samplesOf(values ...float64) []baseline.Sample {
	samples := make([]baseline.Sample, 0, len(values))
	for i := 0; i < len(values); i++ {
		samples = append(samples, baseline.Sample{
			Value:     values[i],
			Timestamp: time.Date(2025, 6, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}

	return samples
}

func TestDriftChecker_Check_NoBaseline(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	checker := NewDriftChecker(&stubHistory{})

	result, err := checker.Check(context.Background(), "transactions",
		map[string]float64{"row_count": 1000})
	require.NoError(t, err)

	assert.Equal(t, DriftNoBaseline, result.Status)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "No historical data available for comparison", result.Summary)
	assert.Empty(t, result.BaselinePeriod)
}

func TestDriftChecker_Check_RowCountDrift(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	history := &stubHistory{samples: map[string][]baseline.Sample{
		"row_count": samplesOf(1000, 1000, 1000, 1000, 1000),
	}}
	checker := NewDriftChecker(history)

	t.Run("beyond threshold", func(t *testing.T) {
		result, err := checker.Check(context.Background(), "transactions",
			map[string]float64{"row_count": 600})
		require.NoError(t, err)

		assert.Equal(t, DriftDetected, result.Status)
		assert.Equal(t, "Last 7 days (5 runs)", result.BaselinePeriod)
		assert.Equal(t, "1 drift warnings detected", result.Summary)
		require.Len(t, result.Warnings, 1)

		warning := result.Warnings[0]
		assert.Equal(t, "row_count", warning.Metric)
		assert.InDelta(t, 600, warning.Current, 0.001)
		assert.InDelta(t, 1000, warning.Baseline, 0.001)
		assert.InDelta(t, 40.0, warning.DeviationPct, 0.001)
	})

	t.Run("within threshold", func(t *testing.T) {
		result, err := checker.Check(context.Background(), "transactions",
			map[string]float64{"row_count": 1200})
		require.NoError(t, err)

		assert.Equal(t, DriftPass, result.Status)
		assert.Empty(t, result.Warnings)
		assert.Equal(t, "No drift detected", result.Summary)
	})

	t.Run("exactly at threshold passes", func(t *testing.T) {
		result, err := checker.Check(context.Background(), "transactions",
			map[string]float64{"row_count": 1300})
		require.NoError(t, err)

		assert.Equal(t, DriftPass, result.Status)
	})
}

func TestDriftChecker_Check_ColumnMeanDrift(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	history := &stubHistory{samples: map[string][]baseline.Sample{
		"row_count":   samplesOf(1000, 1000, 1000),
		"mean_amount": samplesOf(50.12345, 49.87655),
	}}
	checker := NewDriftChecker(history)

	result, err := checker.Check(context.Background(), "transactions",
		map[string]float64{"row_count": 1000, "mean_amount": 80, "null_rate_amount": 0.5})
	require.NoError(t, err)

	assert.Equal(t, DriftDetected, result.Status)
	require.Len(t, result.Warnings, 1)

	warning := result.Warnings[0]
	assert.Equal(t, "mean_amount", warning.Metric)
	assert.InDelta(t, 50.0, warning.Baseline, 0.0001)
	assert.InDelta(t, 60.0, warning.DeviationPct, 0.001)

	// Null-rate metrics belong to the anomaly engine, never to drift.
	assert.NotContains(t, history.asked, "null_rate_amount")
}

func TestDriftChecker_Check_NegativeMeanBaseline(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	history := &stubHistory{samples: map[string][]baseline.Sample{
		"row_count":    samplesOf(1000),
		"mean_balance": samplesOf(-100, -100),
	}}
	checker := NewDriftChecker(history)

	result, err := checker.Check(context.Background(), "accounts",
		map[string]float64{"row_count": 1000, "mean_balance": -40})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "mean_balance", result.Warnings[0].Metric)
	assert.InDelta(t, 60.0, result.Warnings[0].DeviationPct, 0.001)
}

func TestDriftChecker_Check_CustomThresholdAndLookback(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	history := &stubHistory{samples: map[string][]baseline.Sample{
		"row_count": samplesOf(1000, 1000),
	}}
	checker := NewDriftChecker(history,
		WithDriftThreshold(10),
		WithDriftLookback(14*24*time.Hour),
		WithDriftClock(func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) }),
	)

	result, err := checker.Check(context.Background(), "transactions",
		map[string]float64{"row_count": 1150})
	require.NoError(t, err)

	assert.Equal(t, DriftDetected, result.Status)
	assert.Equal(t, "Last 14 days (2 runs)", result.BaselinePeriod)
	require.Len(t, result.Warnings, 1)
	assert.InDelta(t, 15.0, result.Warnings[0].DeviationPct, 0.001)
}

func TestDriftResult_Violations(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	result := &DriftResult{
		Status: DriftDetected,
		Warnings: []DriftWarning{
			{Metric: "row_count", Current: 600, Baseline: 1000, DeviationPct: 40},
			{Metric: "mean_amount", Current: 80.5, Baseline: 50.25, DeviationPct: 60.2},
		},
	}

	violations := result.Violations()
	require.Len(t, violations, 2)

	assert.Equal(t, "Drift: row_count = 600 (baseline: 1000, deviation: 40.00%)", violations[0].Message)
	assert.Equal(t, "Drift: mean_amount = 80.5 (baseline: 50.25, deviation: 60.20%)", violations[1].Message)

	for i := 0; i < len(violations); i++ {
		assert.Equal(t, verdict.SeverityWarning, violations[i].Severity)
	}
}
