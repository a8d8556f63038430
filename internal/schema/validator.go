// Package schema validates a loaded table against its contract: column
// presence, physical types, per-column value rules, row volume bounds,
// and custom predicate checks. Every violation carries a severity;
// any critical one turns the result into a blocking stop.
package schema

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/tabular"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

type (
	// Validator compares tables against contract documents.
	Validator struct {
		now    func() time.Time
		logger *slog.Logger
	}

	// Option configures optional Validator behavior.
	Option func(*Validator)
)

// WithClock overrides the time source used by custom checks' now().
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// NewValidator creates a schema validator.
func NewValidator(opts ...Option) *Validator {
	validator := &Validator{
		now: time.Now,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(validator)
	}

	return validator
}

// Validate checks table against doc and returns every finding. The
// result's decision is CRITICAL_STOP iff any critical finding exists.
func (v *Validator) Validate(ctx context.Context, doc *contract.Document, table *tabular.Table) (*Result, error) {
	result := &Result{RowCount: table.NumRows()}

	v.checkMissingColumns(doc, table, result)
	v.checkUnexpectedColumns(doc, table, result)
	v.checkTypes(doc, table, result)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.checkColumnRules(doc, table, result)
	v.checkVolume(doc, table, result)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.checkCustomRules(doc, table, result)

	switch {
	case result.CriticalCount() > 0:
		result.Status = verdict.StatusFail
		result.Decision = verdict.DecisionCriticalStop
	case len(result.Findings) > 0:
		result.Status = verdict.StatusPassWithWarnings
		result.Decision = verdict.DecisionContinue
	default:
		result.Status = verdict.StatusPass
		result.Decision = verdict.DecisionContinue
	}

	v.logger.Debug("Validated schema",
		slog.String("table", doc.TableName),
		slog.String("status", result.Status.String()),
		slog.String("summary", result.Summary()),
	)

	return result, nil
}

// checkMissingColumns flags contract columns absent from the data.
// Required columns block; optional ones warn unless strict mode
// escalates them.
func (v *Validator) checkMissingColumns(doc *contract.Document, table *tabular.Table, result *Result) {
	for _, col := range doc.Columns {
		if _, ok := table.Column(col.Name); ok {
			continue
		}

		severity := verdict.SeverityWarning
		if !col.Nullable {
			severity = verdict.SeverityCritical
		}

		severity = escalate(doc.StrictMode, severity)

		result.add(columnFinding(col.Name, IssueMissing, severity, "column to exist", "column not found"))
	}
}

// checkUnexpectedColumns flags data columns the contract does not
// declare and drafts a suggested spec for each one.
func (v *Validator) checkUnexpectedColumns(doc *contract.Document, table *tabular.Table, result *Result) {
	for _, col := range table.Columns() {
		if _, ok := doc.Column(col.Name()); ok {
			continue
		}

		severity := escalate(doc.StrictMode, verdict.SeverityWarning)

		result.add(columnFinding(col.Name(), IssueExtra, severity, "not defined in schema", "column exists"))

		result.SuggestedColumns = append(result.SuggestedColumns, contract.Column{
			Name:         col.Name(),
			PhysicalType: contract.PhysicalTypeFor(col.DType()),
			Nullable:     col.NullCount() > 0,
			Description:  "Automatically detected column",
		})
	}
}

// checkTypes flags physical type disagreements. Type mismatches are
// always critical.
func (v *Validator) checkTypes(doc *contract.Document, table *tabular.Table, result *Result) {
	for _, col := range doc.Columns {
		actual, ok := table.Column(col.Name)
		if !ok || col.PhysicalType == "" {
			continue
		}

		actualType := actual.DType().String()
		if typesMatch(col.PhysicalType, actualType) {
			continue
		}

		result.add(columnFinding(col.Name, IssueTypeMismatch, verdict.SeverityCritical, col.PhysicalType, actualType))
	}
}

// escalate promotes warnings to critical under strict mode.
func escalate(strict bool, severity verdict.Severity) verdict.Severity {
	if strict && severity == verdict.SeverityWarning {
		return verdict.SeverityCritical
	}

	return severity
}
