// Package quality enriches verdicts with consumer-facing signals: the
// four-dimension quality score, the health indicator, and the table
// priority ranking. Everything here is deterministic math over data the
// pipeline already computed; nothing in this package can block a run.
package quality

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/profile"
	"github.com/datawarden-io/datawarden/internal/tabular"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Quality statuses over the overall score.
const (
	StatusHealthy  = "HEALTHY"
	StatusDegraded = "DEGRADED"
	StatusCritical = "CRITICAL"

	healthyScore  = 90.0
	degradedScore = 70.0
)

// Validity scoring: each failed check deducts a fixed slice, and values
// beyond five sigma count as extreme outliers.
const (
	validityCheckPenalty = 20.0
	extremeOutlierSigma  = 5.0
)

type (
	// Scorer computes quality metrics for a loaded table.
	Scorer struct {
		maxAge time.Duration
		now    func() time.Time
		logger *slog.Logger
	}

	// ScorerOption configures optional Scorer behavior.
	ScorerOption func(*Scorer)
)

// WithMaxAge overrides the age under which timestamp columns count as fresh.
func WithMaxAge(maxAge time.Duration) ScorerOption {
	return func(s *Scorer) {
		s.maxAge = maxAge
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) {
		s.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ScorerOption {
	return func(s *Scorer) {
		s.logger = logger
	}
}

// NewScorer creates a scorer with a 24-hour freshness horizon.
func NewScorer(opts ...ScorerOption) *Scorer {
	scorer := &Scorer{
		maxAge: 24 * time.Hour,
		now:    time.Now,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(scorer)
	}

	return scorer
}

// Score grades the table on freshness, completeness, validity, and
// uniqueness, each 0-100. The profile must describe the same table. The
// overall score is the mean of the four dimensions.
func (s *Scorer) Score(table *tabular.Table, prof *profile.TableProfile) *verdict.QualityMetrics {
	metrics := &verdict.QualityMetrics{
		Freshness:    s.scoreFreshness(table),
		Completeness: scoreCompleteness(prof),
		Validity:     scoreValidity(table, prof),
		Uniqueness:   scoreUniqueness(table),
		ColumnHealth: columnHealth(prof),
	}

	overall := (metrics.Freshness + metrics.Completeness + metrics.Validity + metrics.Uniqueness) / 4
	metrics.OverallScore = round2(overall)

	switch {
	case metrics.OverallScore >= healthyScore:
		metrics.Status = StatusHealthy
	case metrics.OverallScore >= degradedScore:
		metrics.Status = StatusDegraded
	default:
		metrics.Status = StatusCritical
	}

	if metrics.Status != StatusHealthy {
		s.logger.Info("Quality degraded",
			slog.Float64("overall_score", metrics.OverallScore),
			slog.String("status", metrics.Status),
		)
	}

	return metrics
}

// scoreFreshness grades timestamp columns by the age of their newest
// record. Columns are auto-detected by name; a table without any stays
// at a neutral 100.
func (s *Scorer) scoreFreshness(table *tabular.Table) float64 {
	candidates := timestampColumns(table)
	if len(candidates) == 0 {
		return 100
	}

	fresh := 0

	for _, col := range candidates {
		newest, ok := newestTimestamp(col)
		if !ok {
			// Name suggests a timestamp but the values are not; the
			// column counts against freshness rather than being ignored.
			continue
		}

		if s.now().Sub(newest) < s.maxAge {
			fresh++
		}
	}

	return round2(float64(fresh) / float64(len(candidates)) * 100)
}

// scoreCompleteness is 100 minus the mean null percentage.
func scoreCompleteness(prof *profile.TableProfile) float64 {
	if len(prof.Columns) == 0 {
		return 100
	}

	total := 0.0
	for i := 0; i < len(prof.Columns); i++ {
		total += prof.Columns[i].NullPct
	}

	return round2(100 - total/float64(len(prof.Columns)))
}

// scoreValidity runs per-column plausibility checks and deducts a fixed
// penalty per failed check. Numeric columns are checked for negative
// values and extreme outliers; string columns for empty and
// whitespace-only values.
func scoreValidity(table *tabular.Table, prof *profile.TableProfile) float64 {
	columns := table.Columns()
	if len(columns) == 0 {
		return 100
	}

	total := 0.0

	for _, col := range columns {
		failed := 0

		switch {
		case col.DType().IsNumeric():
			failed = numericValidityFailures(col, prof)
		case col.DType() == tabular.DTypeString:
			failed = stringValidityFailures(col)
		}

		score := 100.0
		if failed > 0 {
			score = math.Max(0, 100-float64(failed)*validityCheckPenalty)
		}

		total += score
	}

	return round2(total / float64(len(columns)))
}

func numericValidityFailures(col *tabular.Column, prof *profile.TableProfile) int {
	cp, ok := prof.Column(col.Name())
	if !ok || cp.AllNull {
		return 0
	}

	values, _ := col.FloatValues()

	negatives := 0
	outliers := 0

	for i := 0; i < len(values); i++ {
		if values[i] < 0 {
			negatives++
		}

		if cp.Std > 0 && math.Abs(values[i]-cp.Mean) > extremeOutlierSigma*cp.Std {
			outliers++
		}
	}

	failed := 0
	if negatives > 0 {
		failed++
	}

	if outliers > 0 {
		failed++
	}

	return failed
}

func stringValidityFailures(col *tabular.Column) int {
	empty := 0
	whitespace := 0

	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			continue
		}

		s, ok := col.Value(i).(string)
		if !ok {
			continue
		}

		switch {
		case s == "":
			empty++
		case strings.TrimSpace(s) == "":
			whitespace++
		}
	}

	failed := 0
	if empty > 0 {
		failed++
	}

	if whitespace > 0 {
		failed++
	}

	return failed
}

// scoreUniqueness grades identifier columns by their distinct-value
// ratio. Tables without identifier columns fall back to full-row
// duplicate detection.
func scoreUniqueness(table *tabular.Table) float64 {
	idCols := identifierColumns(table)

	if len(idCols) > 0 {
		total := 0.0

		for _, col := range idCols {
			nonNull := col.Len() - col.NullCount()
			if nonNull == 0 {
				total += 100

				continue
			}

			total += float64(col.UniqueCount()) / float64(nonNull) * 100
		}

		return round2(total / float64(len(idCols)))
	}

	rows := table.NumRows()
	if rows == 0 {
		return 100
	}

	dupes := rows - distinctRowCount(table)
	if dupes == 0 {
		return 100
	}

	return round2(100 - float64(dupes)/float64(rows)*100)
}

// columnHealth maps every column to a null-penalized score for the verdict.
func columnHealth(prof *profile.TableProfile) map[string]float64 {
	health := make(map[string]float64, len(prof.Columns))

	for i := 0; i < len(prof.Columns); i++ {
		cp := &prof.Columns[i]
		health[cp.Name] = math.Max(0, round2(100-cp.NullPct*0.5))
	}

	return health
}

// timestampColumns selects columns whose name suggests a timestamp.
func timestampColumns(table *tabular.Table) []*tabular.Column {
	var out []*tabular.Column

	for _, col := range table.Columns() {
		name := strings.ToLower(col.Name())
		if strings.Contains(name, "date") || strings.Contains(name, "time") {
			out = append(out, col)
		}
	}

	return out
}

// identifierColumns selects columns whose name suggests a key.
func identifierColumns(table *tabular.Table) []*tabular.Column {
	var out []*tabular.Column

	for _, col := range table.Columns() {
		name := strings.ToLower(col.Name())
		if strings.Contains(name, "id") || strings.Contains(name, "key") {
			out = append(out, col)
		}
	}

	return out
}

func newestTimestamp(col *tabular.Column) (time.Time, bool) {
	var newest time.Time

	found := false

	for i := 0; i < col.Len(); i++ {
		ts, ok := col.Time(i)
		if !ok {
			continue
		}

		if !found || ts.After(newest) {
			newest = ts
			found = true
		}
	}

	return newest, found
}

// distinctRowCount counts distinct full rows using a canonical cell
// rendering with an unprintable separator, so concatenation never
// produces accidental collisions.
func distinctRowCount(table *tabular.Table) int {
	columns := table.Columns()
	seen := make(map[string]struct{}, table.NumRows())

	for row := 0; row < table.NumRows(); row++ {
		var b strings.Builder

		for c := 0; c < len(columns); c++ {
			if c > 0 {
				b.WriteByte('\x1f')
			}

			writeCell(&b, columns[c].Value(row))
		}

		seen[b.String()] = struct{}{}
	}

	return len(seen)
}

func writeCell(b *strings.Builder, v any) {
	switch cell := v.(type) {
	case nil:
		b.WriteString("\x00")
	case string:
		b.WriteString(cell)
	case time.Time:
		b.WriteString(cell.UTC().Format(time.RFC3339Nano))
	case int64:
		b.WriteString(strconv.FormatInt(cell, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(cell, 'g', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(cell))
	default:
		fmt.Fprintf(b, "%v", cell)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
