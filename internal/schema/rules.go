package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/predicate"
	"github.com/datawarden-io/datawarden/internal/tabular"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// typeMatrix maps a contract physical type to the loaded dtypes it
// accepts. Timestamp columns accept object because string timestamps
// are validated at parse time, not here.
var typeMatrix = map[string][]string{
	"int":       {"int64", "int32", "int16", "int8"},
	"int64":     {"int64"},
	"integer":   {"int64", "int32"},
	"bigint":    {"int64"},
	"smallint":  {"int64", "int32", "int16"},
	"float":     {"float64", "float32"},
	"float64":   {"float64"},
	"double":    {"float64"},
	"string":    {"object", "string"},
	"varchar":   {"object"},
	"text":      {"object", "string"},
	"bool":      {"bool"},
	"boolean":   {"bool"},
	"timestamp": {"datetime64[ns]", "object"},
	"date":      {"datetime64[ns]", "object"},
}

// typesMatch reports whether the loaded dtype satisfies the contract's
// physical type. Parameterized types like varchar(255) match on their
// base name.
func typesMatch(expected, actual string) bool {
	want := strings.ToLower(expected)
	if idx := strings.Index(want, "("); idx >= 0 {
		want = want[:idx]
	}

	if accepted, ok := typeMatrix[want]; ok {
		for _, candidate := range accepted {
			if strings.Contains(actual, candidate) {
				return true
			}
		}

		return false
	}

	return strings.Contains(strings.ToLower(actual), want)
}

// checkColumnRules evaluates the per-column value rules: null bounds,
// uniqueness, numeric range, pattern, and allowed values.
func (v *Validator) checkColumnRules(doc *contract.Document, table *tabular.Table, result *Result) {
	for _, col := range doc.Columns {
		actual, ok := table.Column(col.Name)
		if !ok {
			continue
		}

		ruleSeverity := escalate(doc.StrictMode, col.RuleSeverity())

		if !col.Nullable {
			if nulls := actual.NullCount(); nulls > 0 {
				result.add(columnFinding(col.Name, IssueQualityRule, verdict.SeverityCritical,
					"0 nulls", fmt.Sprintf("%d nulls", nulls)))
			}
		}

		if col.Unique {
			nonNull := actual.Len() - actual.NullCount()
			if duplicates := nonNull - actual.UniqueCount(); duplicates > 0 {
				result.add(columnFinding(col.Name, IssueQualityRule, ruleSeverity,
					"unique values", fmt.Sprintf("%d duplicates", duplicates)))
			}
		}

		if col.MinValue != nil || col.MaxValue != nil {
			checkRange(col, actual, ruleSeverity, result)
		}

		if col.Pattern != "" {
			checkPattern(col, actual, ruleSeverity, result)
		}

		if len(col.AllowedValues) > 0 {
			checkAllowedValues(col, actual, ruleSeverity, result)
		}
	}
}

// checkRange compares observed numeric bounds against the contract's.
func checkRange(col contract.Column, actual *tabular.Column, severity verdict.Severity, result *Result) {
	values, _ := actual.FloatValues()
	if len(values) == 0 {
		return
	}

	observedMin, observedMax := values[0], values[0]
	for _, x := range values[1:] {
		if x < observedMin {
			observedMin = x
		}

		if x > observedMax {
			observedMax = x
		}
	}

	if col.MinValue != nil && observedMin < *col.MinValue {
		result.add(columnFinding(col.Name, IssueQualityRule, severity,
			fmt.Sprintf("min >= %s", formatNumber(*col.MinValue)),
			fmt.Sprintf("min = %s", formatNumber(observedMin))))
	}

	if col.MaxValue != nil && observedMax > *col.MaxValue {
		result.add(columnFinding(col.Name, IssueQualityRule, severity,
			fmt.Sprintf("max <= %s", formatNumber(*col.MaxValue)),
			fmt.Sprintf("max = %s", formatNumber(observedMax))))
	}
}

// checkPattern counts non-null values that fail the contract's regular
// expression. A pattern that does not compile is reported as a warning
// rather than blocking the run.
func checkPattern(col contract.Column, actual *tabular.Column, severity verdict.Severity, result *Result) {
	re, err := regexp.Compile(col.Pattern)
	if err != nil {
		result.add(columnFinding(col.Name, IssueQualityRule, verdict.SeverityWarning,
			fmt.Sprintf("pattern '%s' to compile", col.Pattern), err.Error()))

		return
	}

	mismatches := 0

	for i := 0; i < actual.Len(); i++ {
		if actual.IsNull(i) {
			continue
		}

		if !re.MatchString(cellText(actual, i)) {
			mismatches++
		}
	}

	if mismatches > 0 {
		result.add(columnFinding(col.Name, IssueQualityRule, severity,
			fmt.Sprintf("values matching pattern '%s'", col.Pattern),
			fmt.Sprintf("%d mismatches", mismatches)))
	}
}

// checkAllowedValues counts non-null values outside the contract's
// enumeration.
func checkAllowedValues(col contract.Column, actual *tabular.Column, severity verdict.Severity, result *Result) {
	allowed := make(map[string]struct{}, len(col.AllowedValues))
	for _, value := range col.AllowedValues {
		allowed[value] = struct{}{}
	}

	outside := 0

	for i := 0; i < actual.Len(); i++ {
		if actual.IsNull(i) {
			continue
		}

		if _, ok := allowed[cellText(actual, i)]; !ok {
			outside++
		}
	}

	if outside > 0 {
		result.add(columnFinding(col.Name, IssueQualityRule, severity,
			fmt.Sprintf("values in [%s]", strings.Join(col.AllowedValues, ", ")),
			fmt.Sprintf("%d values outside allowed set", outside)))
	}
}

// checkVolume enforces the contract's row count bounds. Volume breaches
// always block.
func (v *Validator) checkVolume(doc *contract.Document, table *tabular.Table, result *Result) {
	rows := int64(table.NumRows())

	if doc.Quality.MinRows != nil && rows < *doc.Quality.MinRows {
		result.add(tableFinding(IssueVolume, verdict.SeverityCritical,
			fmt.Sprintf("Found %d rows, expected at least %d rows", rows, *doc.Quality.MinRows)))

		return
	}

	if doc.Quality.MaxRows != nil && rows > *doc.Quality.MaxRows {
		result.add(tableFinding(IssueVolume, verdict.SeverityCritical,
			fmt.Sprintf("Found %d rows, expected at most %d rows", rows, *doc.Quality.MaxRows)))
	}
}

// checkCustomRules evaluates the contract's predicate checks over the
// loaded rows. A rule that cannot be parsed or evaluated is reported as
// a warning, not a blocking failure.
func (v *Validator) checkCustomRules(doc *contract.Document, table *tabular.Table, result *Result) {
	now := v.now()

	for _, check := range doc.Quality.CustomChecks {
		name := check.Name
		if name == "" {
			name = "Custom Check"
		}

		pred, err := predicate.Parse(check.SQLCondition)
		if err != nil {
			result.add(tableFinding(IssueCustomCheck, verdict.SeverityWarning,
				fmt.Sprintf("Failed to execute rule '%s': %v", name, err)))

			continue
		}

		failing, err := pred.CountViolations(table, now)
		if err != nil {
			result.add(tableFinding(IssueCustomCheck, verdict.SeverityWarning,
				fmt.Sprintf("Failed to execute rule '%s': %v", name, err)))

			continue
		}

		if failing > 0 {
			severity := escalate(doc.StrictMode, check.ParsedSeverity())

			result.add(tableFinding(IssueCustomCheck, severity,
				fmt.Sprintf("Rule '%s' failed on %d rows", name, failing)))
		}
	}
}

// cellText renders a cell for pattern and enumeration checks.
func cellText(col *tabular.Column, i int) string {
	value := col.Value(i)
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprint(value)
}

// formatNumber renders a float without trailing zeros.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
