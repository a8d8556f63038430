// Package profile computes per-column statistics over a loaded table and
// flags outlier rows. The outlier method adapts to distribution shape:
// z-scores when skewness is mild, IQR fences otherwise.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/tabular"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Outlier detection parameters.
const (
	// skewCutoff switches between outlier methods. Distributions with
	// |skewness| below it are treated as roughly normal.
	skewCutoff = 1.0

	// zScoreThreshold flags values whose |z| exceeds it, using the
	// population standard deviation.
	zScoreThreshold = 3.0

	// iqrMultiplier widens the Tukey fences around the quartiles.
	iqrMultiplier = 1.5

	// maxOutlierIndices caps the per-column index list carried in results.
	maxOutlierIndices = 100
)

// Outlier method names as they appear in reports.
const (
	MethodZScore = "Z-Score"
	MethodIQR    = "IQR"
)

type (
	// ColumnProfile holds the computed statistics for one column. Moment
	// fields are meaningful only when Numeric is true and AllNull is
	// false.
	ColumnProfile struct {
		Name        string
		DType       string
		NullCount   int
		NullPct     float64
		UniqueCount int
		UniquePct   float64

		// Numeric reports whether moment statistics were computed.
		Numeric bool

		// AllNull marks a numeric column with no usable values.
		AllNull bool

		Min      float64
		Max      float64
		Mean     float64
		Median   float64
		Std      float64
		Skewness float64
		Kurtosis float64

		OutlierMethod string

		// OutlierIndices are row indices in ascending order, capped at
		// maxOutlierIndices. OutlierCount is the uncapped total.
		OutlierIndices []int
		OutlierCount   int
	}

	// TableProfile is the profile of every column plus the row count.
	TableProfile struct {
		RowCount int
		Columns  []ColumnProfile
	}

	// Profiler computes table profiles.
	Profiler struct {
		logger *slog.Logger
	}

	// Option configures optional Profiler behavior.
	Option func(*Profiler)
)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Profiler) {
		p.logger = logger
	}
}

// NewProfiler creates a profiler.
func NewProfiler(opts ...Option) *Profiler {
	profiler := &Profiler{
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(profiler)
	}

	return profiler
}

// Profile computes statistics for every column of the table.
func (p *Profiler) Profile(ctx context.Context, table *tabular.Table) (*TableProfile, error) {
	profile := &TableProfile{
		RowCount: table.NumRows(),
		Columns:  make([]ColumnProfile, 0, table.NumCols()),
	}

	for _, col := range table.Columns() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		profile.Columns = append(profile.Columns, profileColumn(col, table.NumRows()))
	}

	p.logger.Debug("Profiled table",
		slog.Int("rows", profile.RowCount),
		slog.Int("columns", len(profile.Columns)),
	)

	return profile, nil
}

// profileColumn computes one column's statistics.
func profileColumn(col *tabular.Column, rows int) ColumnProfile {
	cp := ColumnProfile{
		Name:        col.Name(),
		DType:       col.DType().String(),
		NullCount:   col.NullCount(),
		UniqueCount: col.UniqueCount(),
		Numeric:     col.DType().IsNumeric(),
	}

	if rows > 0 {
		cp.NullPct = float64(cp.NullCount) / float64(rows) * 100
		cp.UniquePct = float64(cp.UniqueCount) / float64(rows) * 100
	}

	if !cp.Numeric {
		return cp
	}

	values, indices := col.FloatValues()
	if len(values) == 0 {
		cp.AllNull = true
		return cp
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	cp.Min, cp.Max = sorted[0], sorted[len(sorted)-1]
	cp.Mean, cp.Std = meanStd(values)
	cp.Median = quantileLinear(0.5, sorted)
	cp.Skewness, cp.Kurtosis = shape(values, cp.Std)

	if math.Abs(cp.Skewness) < skewCutoff {
		cp.OutlierMethod = MethodZScore
		cp.OutlierIndices, cp.OutlierCount = outliersZScore(values, indices)
	} else {
		cp.OutlierMethod = MethodIQR
		cp.OutlierIndices, cp.OutlierCount = outliersIQR(values, indices, sorted)
	}

	return cp
}

// Column returns the profile for the named column.
func (tp *TableProfile) Column(name string) (*ColumnProfile, bool) {
	for i := range tp.Columns {
		if tp.Columns[i].Name == name {
			return &tp.Columns[i], true
		}
	}

	return nil, false
}

// Metrics flattens the profile into the named series recorded for
// baseline learning: row_count, mean_<col>, and null_rate_<col>.
func (tp *TableProfile) Metrics() map[string]float64 {
	metrics := map[string]float64{
		"row_count": float64(tp.RowCount),
	}

	for _, cp := range tp.Columns {
		metrics["null_rate_"+cp.Name] = cp.NullPct

		if cp.Numeric && !cp.AllNull {
			metrics["mean_"+cp.Name] = cp.Mean
		}
	}

	return metrics
}

// OutlierRows merges every column's outlier indices, deduplicated and
// ascending.
func (tp *TableProfile) OutlierRows() []int {
	seen := make(map[int]struct{})

	for _, cp := range tp.Columns {
		for _, idx := range cp.OutlierIndices {
			seen[idx] = struct{}{}
		}
	}

	rows := make([]int, 0, len(seen))
	for idx := range seen {
		rows = append(rows, idx)
	}

	sort.Ints(rows)

	return rows
}

// Stats converts the profile into the report wire shape, with
// percentages rounded to two decimals and moments to four.
func (cp *ColumnProfile) Stats() verdict.ColumnStats {
	stats := verdict.ColumnStats{
		DType:       cp.DType,
		NullCount:   int64(cp.NullCount),
		NullPct:     round2(cp.NullPct),
		UniqueCount: int64(cp.UniqueCount),
		UniquePct:   round2(cp.UniquePct),
	}

	if !cp.Numeric || cp.AllNull {
		return stats
	}

	stats.Mean = round4p(cp.Mean)
	stats.Median = round4p(cp.Median)
	stats.Std = round4p(cp.Std)
	stats.Min = round4p(cp.Min)
	stats.Max = round4p(cp.Max)
	stats.Skewness = round4p(cp.Skewness)
	stats.Kurtosis = round4p(cp.Kurtosis)
	stats.OutlierMethod = cp.OutlierMethod
	stats.OutlierCount = cp.OutlierCount

	return stats
}

// Summary renders the one-line profile used in execution logs.
func (cp *ColumnProfile) Summary() string {
	if !cp.Numeric || cp.AllNull {
		return fmt.Sprintf("%s: %s, %.2f%% nulls", cp.Name, cp.DType, cp.NullPct)
	}

	return fmt.Sprintf("%s: %s method, %d outliers", cp.Name, cp.OutlierMethod, cp.OutlierCount)
}

// meanStd returns the mean and sample standard deviation. A single
// observation reports zero spread; NaN never enters a profile.
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 1 {
		return values[0], 0
	}

	return stat.MeanStdDev(values, nil)
}

// shape returns sample skewness and excess kurtosis, zero when the
// sample is too small or has no spread to define them.
func shape(values []float64, std float64) (skew, kurt float64) {
	if std == 0 {
		return 0, 0
	}

	if len(values) > 2 {
		skew = stat.Skew(values, nil)
	}

	if len(values) > 3 {
		kurt = stat.ExKurtosis(values, nil)
	}

	return skew, kurt
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4p(v float64) *float64 {
	rounded := math.Round(v*10000) / 10000
	return &rounded
}
