package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Seasonal severity bands, in sigma units against the learned pattern.
const (
	seasonalWarnSigma = 2.0
	seasonalCritSigma = 3.0
)

// Seasonal severities.
const (
	SeasonalNormal   = "NORMAL"
	SeasonalWarning  = "WARNING"
	SeasonalCritical = "CRITICAL"
	SeasonalUnknown  = "UNKNOWN"
)

type (
	// PatternSource answers weekday and monthly pattern baselines. Unlike
	// BaselineSource, the monthly fallback is explicit: the seasonal
	// detector never judges against global history.
	PatternSource interface {
		SeasonalBaseline(ctx context.Context, tableName, metricName string, asOf time.Time) (baseline.Stats, error)
		MonthlyBaseline(ctx context.Context, tableName, metricName string, asOf time.Time) (baseline.Stats, error)
	}

	// SeasonalDetector judges metrics against learned weekday and monthly
	// patterns. A Monday file is compared with previous Mondays, so a
	// routine weekend dip never pages anyone.
	SeasonalDetector struct {
		patterns PatternSource
		logger   *slog.Logger
	}

	// SeasonalOption configures optional SeasonalDetector behavior.
	SeasonalOption func(*SeasonalDetector)
)

var _ PatternSource = (*baseline.Store)(nil)

// WithSeasonalLogger sets the structured logger.
func WithSeasonalLogger(logger *slog.Logger) SeasonalOption {
	return func(d *SeasonalDetector) {
		d.logger = logger
	}
}

// NewSeasonalDetector creates a detector backed by the given pattern source.
func NewSeasonalDetector(patterns PatternSource, opts ...SeasonalOption) *SeasonalDetector {
	detector := &SeasonalDetector{
		patterns: patterns,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(detector)
	}

	return detector
}

// Analyze checks every metric against its seasonal patterns as of the
// given time. Day-of-week patterns win over monthly patterns; metrics
// with neither are reported as UNKNOWN and never flagged.
func (d *SeasonalDetector) Analyze(
	ctx context.Context,
	tableName string,
	metrics map[string]float64,
	asOf time.Time,
) (*verdict.SeasonalAnalysis, error) {
	analysis := &verdict.SeasonalAnalysis{
		Status:    SeasonalUnknown,
		Kind:      verdict.BaselineInitializing,
		Anomalies: []verdict.SeasonalAnomaly{},
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}

	sort.Strings(names)

	patterned := 0

	for _, name := range names {
		stats, pattern, err := d.lookupPattern(ctx, tableName, name, asOf)
		if err != nil {
			return nil, fmt.Errorf("seasonal pattern for %s: %w", name, err)
		}

		if pattern == "" {
			continue
		}

		patterned++

		anomaly := judgeSeasonal(name, metrics[name], stats, pattern)
		if anomaly.Severity == SeasonalNormal {
			if analysis.Status == SeasonalUnknown {
				analysis.Status = SeasonalNormal
			}

			continue
		}

		analysis.Anomalies = append(analysis.Anomalies, anomaly)

		if worseSeasonal(anomaly.Severity, analysis.Status) {
			analysis.Status = anomaly.Severity
		}

		d.logger.Warn("Seasonal anomaly detected",
			slog.String("table", tableName),
			slog.String("metric", name),
			slog.String("severity", anomaly.Severity),
			slog.Float64("deviation_sigma", anomaly.DeviationSigma),
		)
	}

	if patterned == 0 {
		analysis.Note = "Insufficient historical data for seasonal analysis"

		return analysis, nil
	}

	analysis.Kind = verdict.BaselineSeasonal

	return analysis, nil
}

// Violations renders seasonal anomalies as warnings. Seasonal deviations
// document themselves in the verdict but never block a run on their own.
func SeasonalViolations(analysis *verdict.SeasonalAnalysis) []verdict.Violation {
	violations := make([]verdict.Violation, 0, len(analysis.Anomalies))

	for _, anomaly := range analysis.Anomalies {
		kind := verdict.KindAnomalyWarning
		if anomaly.Severity == SeasonalCritical {
			kind = verdict.KindAnomalyCritical
		}

		violations = append(violations, verdict.Warning(kind, "",
			fmt.Sprintf("Seasonal Anomaly: %s", anomaly.Context)))
	}

	return violations
}

// lookupPattern resolves the preferred pattern for a metric: same
// weekday first, same calendar month as fallback. The empty pattern name
// means neither has enough history.
func (d *SeasonalDetector) lookupPattern(
	ctx context.Context,
	tableName, metricName string,
	asOf time.Time,
) (baseline.Stats, string, error) {
	weekday, err := d.patterns.SeasonalBaseline(ctx, tableName, metricName, asOf)
	if err != nil {
		return baseline.Stats{}, "", err
	}

	// Only a true same-weekday baseline counts as a weekday pattern; the
	// global fallback is the engine's territory.
	if weekday.Kind == verdict.BaselineSeasonal {
		return weekday, fmt.Sprintf("day-of-week (%s)", asOf.UTC().Weekday()), nil
	}

	monthly, err := d.patterns.MonthlyBaseline(ctx, tableName, metricName, asOf)
	if err != nil {
		return baseline.Stats{}, "", err
	}

	if monthly.Kind == verdict.BaselineSeasonal {
		return monthly, fmt.Sprintf("monthly (%s)", asOf.UTC().Month()), nil
	}

	return baseline.Stats{}, "", nil
}

// judgeSeasonal grades one value against a pattern.
func judgeSeasonal(metric string, value float64, stats baseline.Stats, pattern string) verdict.SeasonalAnomaly {
	std := stats.Std
	if std == 0 {
		std = stats.Mean * 0.1
	}

	var sigma float64

	switch {
	case std != 0:
		sigma = math.Abs(value-stats.Mean) / std
	case value != stats.Mean:
		// Zero-variance pattern around zero: any deviation is capped at
		// the maximum rather than dividing by zero.
		sigma = zScoreCap
	}

	anomaly := verdict.SeasonalAnomaly{
		Metric:         metric,
		Value:          round2(value),
		DeviationSigma: round2(sigma),
		Pattern:        pattern,
	}

	switch {
	case sigma <= seasonalWarnSigma:
		anomaly.Severity = SeasonalNormal
		anomaly.Context = fmt.Sprintf("Value is within expected %s range", pattern)
	case sigma <= seasonalCritSigma:
		anomaly.Severity = SeasonalWarning
		anomaly.Context = fmt.Sprintf("Value deviates %.1fσ from %s norm", sigma, pattern)
	default:
		anomaly.Severity = SeasonalCritical
		anomaly.Context = fmt.Sprintf("Significant anomaly: %.1fσ from %s norm", sigma, pattern)
	}

	return anomaly
}

// worseSeasonal reports whether severity a outranks b.
func worseSeasonal(a, b string) bool {
	rank := map[string]int{
		SeasonalUnknown:  0,
		SeasonalNormal:   1,
		SeasonalWarning:  2,
		SeasonalCritical: 3,
	}

	return rank[a] > rank[b]
}
