package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Drift defaults: a week of history, thirty percent deviation.
const (
	defaultDriftLookback  = 7 * 24 * time.Hour
	defaultDriftThreshold = 30.0
)

// Drift statuses.
const (
	DriftPass       = "PASS"
	DriftDetected   = "DRIFT_DETECTED"
	DriftNoBaseline = "NO_BASELINE"
)

type (
	// HistorySource answers recent metric samples for drift comparison.
	HistorySource interface {
		RecentMetricValues(ctx context.Context, tableName, metricName string, since time.Time) ([]baseline.Sample, error)
	}

	// DriftWarning is one metric that moved away from its rolling average.
	DriftWarning struct {
		Metric       string  `json:"metric"`
		Current      float64 `json:"current"`
		Baseline     float64 `json:"baseline"`
		DeviationPct float64 `json:"deviation_pct"`
	}

	// DriftResult is the outcome of comparing a run against recent history.
	DriftResult struct {
		// Status is PASS, DRIFT_DETECTED, or NO_BASELINE.
		Status string `json:"status"`

		// Warnings lists metrics beyond the deviation threshold.
		Warnings []DriftWarning `json:"drift_warnings"`

		// BaselinePeriod describes the history window, e.g. "Last 7 days (5 runs)".
		BaselinePeriod string `json:"baseline_period,omitempty"`

		// Summary is the one-line outcome for the execution log.
		Summary string `json:"summary"`
	}

	// DriftChecker compares run metrics against a rolling historical
	// average. Drift informs, it never blocks: gradual change is a
	// conversation with the producer, not an incident.
	DriftChecker struct {
		history      HistorySource
		lookback     time.Duration
		thresholdPct float64
		now          func() time.Time
	}

	// DriftOption configures optional DriftChecker behavior.
	DriftOption func(*DriftChecker)
)

var _ HistorySource = (*baseline.Store)(nil)

// WithDriftLookback overrides the history window.
func WithDriftLookback(lookback time.Duration) DriftOption {
	return func(c *DriftChecker) {
		c.lookback = lookback
	}
}

// WithDriftThreshold overrides the deviation percentage that counts as drift.
func WithDriftThreshold(pct float64) DriftOption {
	return func(c *DriftChecker) {
		c.thresholdPct = pct
	}
}

// WithDriftClock overrides the time source.
func WithDriftClock(now func() time.Time) DriftOption {
	return func(c *DriftChecker) {
		c.now = now
	}
}

// NewDriftChecker creates a drift checker backed by the given history.
func NewDriftChecker(history HistorySource, opts ...DriftOption) *DriftChecker {
	checker := &DriftChecker{
		history:      history,
		lookback:     defaultDriftLookback,
		thresholdPct: defaultDriftThreshold,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(checker)
	}

	return checker
}

// Check compares the run's row count and column means against their
// rolling averages. Null-rate metrics are excluded: a null-rate shift is
// the anomaly engine's job, not a volume conversation.
func (c *DriftChecker) Check(
	ctx context.Context,
	tableName string,
	metrics map[string]float64,
) (*DriftResult, error) {
	since := c.now().UTC().Add(-c.lookback)

	rowHistory, err := c.history.RecentMetricValues(ctx, tableName, "row_count", since)
	if err != nil {
		return nil, fmt.Errorf("drift history for row_count: %w", err)
	}

	if len(rowHistory) == 0 {
		return &DriftResult{
			Status:   DriftNoBaseline,
			Warnings: []DriftWarning{},
			Summary:  "No historical data available for comparison",
		}, nil
	}

	result := &DriftResult{
		Status:         DriftPass,
		Warnings:       []DriftWarning{},
		BaselinePeriod: fmt.Sprintf("Last %d days (%d runs)", int(c.lookback.Hours()/24), len(rowHistory)),
	}

	if current, ok := metrics["row_count"]; ok {
		avg := sampleMean(rowHistory)
		if avg > 0 {
			deviation := math.Abs(current-avg) / avg * 100
			if deviation > c.thresholdPct {
				result.Warnings = append(result.Warnings, DriftWarning{
					Metric:       "row_count",
					Current:      current,
					Baseline:     round2(avg),
					DeviationPct: round2(deviation),
				})
			}
		}
	}

	for _, name := range meanMetricNames(metrics) {
		history, err := c.history.RecentMetricValues(ctx, tableName, name, since)
		if err != nil {
			return nil, fmt.Errorf("drift history for %s: %w", name, err)
		}

		if len(history) == 0 {
			continue
		}

		avg := sampleMean(history)
		if avg == 0 {
			continue
		}

		deviation := math.Abs(metrics[name]-avg) / math.Abs(avg) * 100
		if deviation > c.thresholdPct {
			result.Warnings = append(result.Warnings, DriftWarning{
				Metric:       name,
				Current:      metrics[name],
				Baseline:     round4(avg),
				DeviationPct: round2(deviation),
			})
		}
	}

	if len(result.Warnings) > 0 {
		result.Status = DriftDetected
		result.Summary = fmt.Sprintf("%d drift warnings detected", len(result.Warnings))
	} else {
		result.Summary = "No drift detected"
	}

	return result, nil
}

// Violations renders drift warnings for the verdict. Always warnings.
func (r *DriftResult) Violations() []verdict.Violation {
	violations := make([]verdict.Violation, 0, len(r.Warnings))

	for _, w := range r.Warnings {
		violations = append(violations, verdict.Warning(verdict.KindAnomalyWarning, "",
			fmt.Sprintf("Drift: %s = %s (baseline: %s, deviation: %.2f%%)",
				w.Metric, trimFloat(w.Current), trimFloat(w.Baseline), w.DeviationPct)))
	}

	return violations
}

// meanMetricNames selects the mean_<col> metrics in stable order.
func meanMetricNames(metrics map[string]float64) []string {
	names := make([]string, 0, len(metrics))

	for name := range metrics {
		if strings.HasPrefix(name, "mean_") {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}

func sampleMean(samples []baseline.Sample) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s.Value
	}

	return sum / float64(len(samples))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
