// Package consistency validates referential integrity across datasets.
// Every foreign key declared in a contract is checked against the
// referenced table's primary key set; child rows pointing at nothing are
// orphans, and orphans block the run.
package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/tabular"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// sampleOrphanLimit caps how many distinct orphan keys a check reports.
const sampleOrphanLimit = 5

// compositeKeySeparator joins the parts of a composite key into one
// comparable string. The unit separator cannot occur in tabular data.
const compositeKeySeparator = "\x1f"

// Check statuses.
const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusSkipped = "SKIPPED"
)

type (
	// ReferenceLoader resolves a reference table name to its loaded rows.
	// The pipeline backs this with the landing-directory loader so
	// reference datasets live next to the files being validated.
	ReferenceLoader interface {
		LoadReference(ctx context.Context, tableName string) (*tabular.Table, error)
	}

	// Result is the outcome of all foreign-key checks for one run.
	Result struct {
		// Status is the worst per-check outcome, or SKIPPED when the
		// contract declares no relationships.
		Status string

		// Checks holds one entry per declared foreign key.
		Checks []verdict.ConsistencyCheck

		// Summary is the one-line outcome for the execution log.
		Summary string

		violations []verdict.Violation
	}

	// Checker verifies foreign-key relationships declared in contracts.
	Checker struct {
		refs   ReferenceLoader
		logger *slog.Logger
	}

	// Option configures optional Checker behavior.
	Option func(*Checker)
)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// NewChecker creates a referential-integrity checker backed by the given
// reference loader.
func NewChecker(refs ReferenceLoader, opts ...Option) *Checker {
	checker := &Checker{
		refs: refs,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(checker)
	}

	return checker
}

// Check validates every foreign key the contract declares against its
// reference table. Orphaned rows, missing key columns, and unreadable
// reference tables all surface as critical violations; only context
// cancellation surfaces as an error.
func (c *Checker) Check(
	ctx context.Context,
	doc *contract.Document,
	table *tabular.Table,
) (*Result, error) {
	if len(doc.ForeignKeys) == 0 {
		return &Result{
			Status:  StatusSkipped,
			Checks:  []verdict.ConsistencyCheck{},
			Summary: fmt.Sprintf("No relationships defined for table '%s'", doc.TableName),
		}, nil
	}

	result := &Result{
		Status: StatusPass,
		Checks: make([]verdict.ConsistencyCheck, 0, len(doc.ForeignKeys)),
	}

	for _, fk := range doc.ForeignKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		check := c.checkRelationship(ctx, doc.TableName, fk, table, result)
		result.Checks = append(result.Checks, check)

		if check.Status == StatusFail {
			result.Status = StatusFail
		}
	}

	if result.Status == StatusPass {
		result.Summary = fmt.Sprintf("%d relationship(s) verified", len(result.Checks))
	} else {
		result.Summary = fmt.Sprintf("%d orphan check(s) failed", len(result.violations))
	}

	return result, nil
}

// checkRelationship verifies one foreign key and records any violation
// on the result.
func (c *Checker) checkRelationship(
	ctx context.Context,
	tableName string,
	fk contract.ForeignKey,
	table *tabular.Table,
	result *Result,
) verdict.ConsistencyCheck {
	relationship := relationshipLabel(tableName, fk)

	check := verdict.ConsistencyCheck{
		Relationship:  relationship,
		SampleOrphans: []string{},
		Status:        StatusPass,
	}

	childCols, missing := resolveColumns(table, fk.Columns)
	if missing != "" {
		check.Status = StatusFail
		result.violations = append(result.violations, verdict.Critical(
			verdict.KindConsistencyBreak, missing,
			fmt.Sprintf("FK column '%s' missing in source", missing),
		))

		return check
	}

	refTable, err := c.refs.LoadReference(ctx, fk.ReferenceTable)
	if err != nil {
		check.Status = StatusFail
		result.violations = append(result.violations, verdict.Critical(
			verdict.KindConsistencyBreak, strings.Join(fk.Columns, ","),
			fmt.Sprintf("Reference table '%s' not available for %s: %v", fk.ReferenceTable, relationship, err),
		))

		return check
	}

	refCols, missing := resolveColumns(refTable, fk.ReferenceColumns)
	if missing != "" {
		check.Status = StatusFail
		result.violations = append(result.violations, verdict.Critical(
			verdict.KindConsistencyBreak, missing,
			fmt.Sprintf("PK column '%s' missing in reference table '%s'", missing, fk.ReferenceTable),
		))

		return check
	}

	validKeys := keySet(refTable.NumRows(), refCols)

	var (
		orphanCount int64
		seenOrphans = map[string]struct{}{}
	)

	for row := 0; row < table.NumRows(); row++ {
		key, ok := rowKey(row, childCols)
		if !ok {
			// Null components opt the row out; nullability is the schema
			// validator's concern.
			continue
		}

		if _, found := validKeys[key]; found {
			continue
		}

		orphanCount++

		if _, seen := seenOrphans[key]; !seen && len(check.SampleOrphans) < sampleOrphanLimit {
			seenOrphans[key] = struct{}{}
			check.SampleOrphans = append(check.SampleOrphans, displayKey(key))
		}
	}

	check.OrphanCount = orphanCount
	if table.NumRows() > 0 {
		check.OrphanPct = float64(orphanCount) / float64(table.NumRows()) * 100
	}

	if orphanCount > 0 {
		check.Status = StatusFail
		result.violations = append(result.violations, verdict.Critical(
			verdict.KindConsistencyBreak, strings.Join(fk.Columns, ","),
			fmt.Sprintf("Found %d orphan records (%.1f%%) in %s. Sample IDs: [%s]",
				orphanCount, check.OrphanPct, relationship, strings.Join(check.SampleOrphans, ", ")),
		))

		return check
	}

	c.logger.Debug("Relationship verified",
		slog.String("relationship", relationship),
		slog.Int("reference_keys", len(validKeys)),
	)

	return check
}

// Violations returns the critical findings collected during the check.
func (r *Result) Violations() []verdict.Violation {
	return r.violations
}

// Decision maps the result onto the state machine: any orphan or broken
// reference is a critical stop.
func (r *Result) Decision() verdict.Decision {
	if r.Status == StatusFail {
		return verdict.DecisionCriticalStop
	}

	return verdict.DecisionContinue
}

// Document renders the result into the verdict wire shape.
func (r *Result) Document() *verdict.ConsistencyResult {
	return &verdict.ConsistencyResult{
		Status:  r.Status,
		Checks:  r.Checks,
		Summary: r.Summary,
	}
}

// relationshipLabel renders "<table>.<fk> -> <ref>.<pk>" with composite
// keys comma-joined.
func relationshipLabel(tableName string, fk contract.ForeignKey) string {
	return fmt.Sprintf("%s.%s -> %s.%s",
		tableName, strings.Join(fk.Columns, ","),
		fk.ReferenceTable, strings.Join(fk.ReferenceColumns, ","),
	)
}

// resolveColumns looks up the named columns, returning the first missing
// name when the table lacks one.
func resolveColumns(table *tabular.Table, names []string) ([]*tabular.Column, string) {
	cols := make([]*tabular.Column, 0, len(names))

	for _, name := range names {
		col, ok := table.Column(name)
		if !ok {
			return nil, name
		}

		cols = append(cols, col)
	}

	return cols, ""
}

// keySet renders every complete key in the reference table.
func keySet(rows int, cols []*tabular.Column) map[string]struct{} {
	keys := make(map[string]struct{}, rows)

	for row := 0; row < rows; row++ {
		if key, ok := rowKey(row, cols); ok {
			keys[key] = struct{}{}
		}
	}

	return keys
}

// rowKey renders one row's key columns into a comparable string. Rows
// with any null component return false.
func rowKey(row int, cols []*tabular.Column) (string, bool) {
	parts := make([]string, len(cols))

	for i, col := range cols {
		cell, ok := cellKey(col, row)
		if !ok {
			return "", false
		}

		parts[i] = cell
	}

	return strings.Join(parts, compositeKeySeparator), true
}

// cellKey renders one cell canonically so int64(7) and float64(7)
// compare equal across files with different inferred dtypes.
func cellKey(col *tabular.Column, row int) (string, bool) {
	if col.IsNull(row) {
		return "", false
	}

	switch v := col.Value(row).(type) {
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case string:
		return v, true
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// displayKey makes composite keys readable in samples and messages.
func displayKey(key string) string {
	return strings.ReplaceAll(key, compositeKeySeparator, "|")
}
