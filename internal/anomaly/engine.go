// Package anomaly is the statistical brain of the gatekeeper. It scores
// the current run's metrics against learned baselines (z-score with
// seasonal awareness), checks weekday and monthly seasonal patterns, and
// measures drift against a short rolling history.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// zScoreCap bounds the z-score when the baseline has zero variance. Any
// deviation from a constant is infinitely surprising; the cap keeps the
// number plottable while preserving sign.
const zScoreCap = 10.0

// Assessment statuses.
const (
	StatusPass            = "PASS"
	StatusAnomalyDetected = "ANOMALY_DETECTED"
)

type (
	// BaselineSource answers the preferred statistical baseline for one
	// metric: same-weekday history first, recent global history as
	// fallback, initializing when both are too thin.
	BaselineSource interface {
		SeasonalBaseline(ctx context.Context, tableName, metricName string, asOf time.Time) (baseline.Stats, error)
	}

	// MetricReading is one metric's evaluation against its baseline.
	MetricReading struct {
		Value        float64              `json:"value"`
		BaselineMean float64              `json:"baseline_mean"`
		BaselineStd  float64              `json:"baseline_std_dev"`
		BaselineKind verdict.BaselineKind `json:"baseline_type"`
		ZScore       float64              `json:"z_score"`
		IsAnomaly    bool                 `json:"is_anomaly"`
		Reason       string               `json:"reason"`
	}

	// Finding is one metric whose deviation crossed a threshold band.
	// Band is the statistical band (warning or critical), not the final
	// verdict severity; the decision matrix in Violations folds in the
	// table's criticality.
	Finding struct {
		Metric  string           `json:"metric"`
		Band    verdict.Severity `json:"severity"`
		ZScore  float64          `json:"z_score"`
		Details string           `json:"details"`
		Context string           `json:"context"`
	}

	// Assessment is the evaluation of all metrics for one run.
	Assessment struct {
		// Status is ANOMALY_DETECTED when any finding exists, else PASS.
		Status string `json:"status"`

		// Metrics holds the per-metric readings keyed by metric name.
		Metrics map[string]MetricReading `json:"metrics"`

		// Findings lists the metrics that crossed a band, in metric order.
		Findings []Finding `json:"anomalies"`

		// Note explains thin history when some baselines are initializing.
		Note string `json:"note,omitempty"`

		maxAbsZ      *float64
		initializing int
	}

	// Engine scores metrics against learned baselines.
	Engine struct {
		baselines BaselineSource
		logger    *slog.Logger
	}

	// Option configures optional Engine behavior.
	Option func(*Engine)
)

var _ BaselineSource = (*baseline.Store)(nil)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an anomaly engine backed by the given baseline source.
func NewEngine(baselines BaselineSource, opts ...Option) *Engine {
	engine := &Engine{
		baselines: baselines,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Detect evaluates every metric against its baseline using the
// contract's z-score limits. Metrics with initializing baselines are
// never flagged. Metrics are evaluated in name order so reports are
// stable across runs.
func (e *Engine) Detect(
	ctx context.Context,
	tableName string,
	metrics map[string]float64,
	limits contract.Limits,
	asOf time.Time,
) (*Assessment, error) {
	assessment := &Assessment{
		Status:   StatusPass,
		Metrics:  make(map[string]MetricReading, len(metrics)),
		Findings: []Finding{},
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		value := metrics[name]

		stats, err := e.baselines.SeasonalBaseline(ctx, tableName, name, asOf)
		if err != nil {
			return nil, fmt.Errorf("baseline for %s: %w", name, err)
		}

		reading := MetricReading{Value: value, BaselineKind: stats.Kind}

		if stats.Initializing() {
			reading.Reason = "Baseline Initializing (insufficient history)"
			assessment.initializing++
			assessment.Metrics[name] = reading

			continue
		}

		z := zScore(value, stats.Mean, stats.Std)
		reading.BaselineMean = round2(stats.Mean)
		reading.BaselineStd = round2(stats.Std)
		reading.ZScore = round2(z)

		if assessment.maxAbsZ == nil || math.Abs(z) > *assessment.maxAbsZ {
			absZ := math.Abs(z)
			assessment.maxAbsZ = &absZ
		}

		switch {
		case math.Abs(z) > limits.ZCrit:
			reading.IsAnomaly = true
			reading.Reason = fmt.Sprintf("CRITICAL ANOMALY: Z-Score %.2f > %.1f", z, limits.ZCrit)
			assessment.Findings = append(assessment.Findings, Finding{
				Metric:  name,
				Band:    verdict.SeverityCritical,
				ZScore:  reading.ZScore,
				Details: reading.Reason,
				Context: expectation(stats.Mean, limits.ZCrit*stats.Std, value),
			})

			e.logger.Warn("Statistical anomaly detected",
				slog.String("table", tableName),
				slog.String("metric", name),
				slog.Float64("z_score", reading.ZScore),
			)
		case math.Abs(z) > limits.ZWarn:
			reading.IsAnomaly = true
			reading.Reason = fmt.Sprintf("WARNING: Z-Score %.2f > %.1f", z, limits.ZWarn)
			assessment.Findings = append(assessment.Findings, Finding{
				Metric:  name,
				Band:    verdict.SeverityWarning,
				ZScore:  reading.ZScore,
				Details: reading.Reason,
				Context: expectation(stats.Mean, limits.ZCrit*stats.Std, value),
			})
		default:
			reading.Reason = fmt.Sprintf("Normal (Z-Score: %.2f)", z)
		}

		assessment.Metrics[name] = reading
	}

	if len(assessment.Findings) > 0 {
		assessment.Status = StatusAnomalyDetected
	}

	if assessment.initializing > 0 {
		assessment.Note = fmt.Sprintf(
			"Baseline initializing for %d of %d metrics", assessment.initializing, len(metrics),
		)
	}

	return assessment, nil
}

// Violations renders the findings per the anomaly decision matrix: the
// warning band always yields warnings; the critical band blocks only
// tables whose downstream criticality is HIGH or CRITICAL.
func (a *Assessment) Violations(criticality verdict.Criticality) []verdict.Violation {
	violations := make([]verdict.Violation, 0, len(a.Findings))

	for _, f := range a.Findings {
		if f.Band == verdict.SeverityCritical {
			msg := fmt.Sprintf("Anomaly in %s: %s (Z-Score: %.2f)", f.Metric, f.Context, f.ZScore)

			if criticality.AtLeast(verdict.CriticalityHigh) {
				violations = append(violations, verdict.Critical(verdict.KindAnomalyCritical, "", msg))
			} else {
				violations = append(violations, verdict.Warning(verdict.KindAnomalyCritical, "", msg))
			}

			continue
		}

		msg := fmt.Sprintf("Deviation in %s: %s (Z-Score: %.2f)", f.Metric, f.Context, f.ZScore)
		violations = append(violations, verdict.Warning(verdict.KindAnomalyWarning, "", msg))
	}

	return violations
}

// AnomalyCount returns the number of metrics that crossed any band.
func (a *Assessment) AnomalyCount() int {
	return len(a.Findings)
}

// MaxAbsZ returns the largest absolute z-score observed, nil when every
// baseline was initializing.
func (a *Assessment) MaxAbsZ() *float64 {
	if a.maxAbsZ == nil {
		return nil
	}

	z := round2(*a.maxAbsZ)

	return &z
}

// InitializingCount returns how many metrics had no usable baseline.
func (a *Assessment) InitializingCount() int {
	return a.initializing
}

// zScore computes (x − mean)/std, capping the magnitude at zScoreCap
// when the baseline has zero variance.
func zScore(value, mean, std float64) float64 {
	if std == 0 {
		if value == mean {
			return 0
		}

		if value > mean {
			return zScoreCap
		}

		return -zScoreCap
	}

	return (value - mean) / std
}

// expectation renders the human-readable context for a finding.
func expectation(mean, band, value float64) string {
	return fmt.Sprintf("Expected %.2f ±%.2f, got %s", mean, band, trimFloat(value))
}

// trimFloat renders a float without trailing zeros, so counts read as
// integers.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
