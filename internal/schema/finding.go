package schema

import (
	"fmt"

	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Issue tags for findings. The set is closed so downstream consumers can
// route on it.
const (
	IssueMissing      = "missing"
	IssueExtra        = "extra"
	IssueTypeMismatch = "type_mismatch"
	IssueQualityRule  = "quality_rule"
	IssueVolume       = "volume"
	IssueCustomCheck  = "custom_check"
)

type (
	// Finding is one schema violation with the context needed to render
	// and route it.
	Finding struct {
		Column   string           `json:"column,omitempty"`
		Issue    string           `json:"issue"`
		Severity verdict.Severity `json:"severity"`
		Expected string           `json:"expected,omitempty"`
		Actual   string           `json:"actual,omitempty"`
		Message  string           `json:"message"`
	}

	// Result is the full outcome of validating one table against its
	// contract.
	Result struct {
		Status   verdict.Status
		Decision verdict.Decision
		Findings []Finding

		// SuggestedColumns are draft specs for columns present in the
		// data but absent from the contract, consumed by the remediator.
		SuggestedColumns []contract.Column

		RowCount int
	}
)

// columnFinding builds a finding in the standard per-column rendering.
func columnFinding(column, issue string, severity verdict.Severity, expected, actual string) Finding {
	return Finding{
		Column:   column,
		Issue:    issue,
		Severity: severity,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("Column '%s': %s (expected: %s, actual: %s)", column, issue, expected, actual),
	}
}

// tableFinding builds a table-level finding with a pre-rendered message.
func tableFinding(issue string, severity verdict.Severity, message string) Finding {
	return Finding{
		Issue:    issue,
		Severity: severity,
		Message:  message,
	}
}

// IsCritical reports whether this finding blocks the run.
func (f Finding) IsCritical() bool {
	return f.Severity == verdict.SeverityCritical
}

// Violation converts the finding into the shared violation taxonomy.
func (f Finding) Violation() verdict.Violation {
	if f.IsCritical() {
		return verdict.Critical(verdict.KindSchemaCritical, f.Column, f.Message)
	}

	return verdict.Warning(verdict.KindSchemaWarning, f.Column, f.Message)
}

// CriticalCount returns the number of blocking findings.
func (r *Result) CriticalCount() int {
	count := 0

	for _, f := range r.Findings {
		if f.IsCritical() {
			count++
		}
	}

	return count
}

// Summary renders the one-line result used in run reports.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d issues found (%d critical)", len(r.Findings), r.CriticalCount())
}

// Violations converts all findings into the shared taxonomy, in order.
func (r *Result) Violations() []verdict.Violation {
	violations := make([]verdict.Violation, len(r.Findings))
	for i, f := range r.Findings {
		violations[i] = f.Violation()
	}

	return violations
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
}
