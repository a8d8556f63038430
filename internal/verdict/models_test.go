package verdict

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsValid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"PASS is valid", StatusPass, true},
		{"PASS_WITH_WARNINGS is valid", StatusPassWithWarnings, true},
		{"FAIL is valid", StatusFail, true},
		{"CONTRACT_MISSING is valid", StatusContractMissing, true},
		{"UNCHANGED is valid", StatusUnchanged, true},
		{"SKIPPED is valid", StatusSkipped, true},
		{"Empty is not valid", Status(""), false},
		{"Lowercase is not valid", Status("pass"), false},
		{"Unknown is not valid", Status("BLOCKED"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.status.IsValid()
			if got != tt.want {
				t.Errorf("Status.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_Passed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"PASS promotes", StatusPass, true},
		{"PASS_WITH_WARNINGS promotes", StatusPassWithWarnings, true},
		{"FAIL does not promote", StatusFail, false},
		{"CONTRACT_MISSING does not promote", StatusContractMissing, false},
		{"UNCHANGED does not promote", StatusUnchanged, false},
		{"SKIPPED does not promote", StatusSkipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.status.Passed()
			if got != tt.want {
				t.Errorf("Status.Passed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsTerminalVerdict(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"PASS is a full-run verdict", StatusPass, true},
		{"PASS_WITH_WARNINGS is a full-run verdict", StatusPassWithWarnings, true},
		{"FAIL is a full-run verdict", StatusFail, true},
		{"CONTRACT_MISSING is a full-run verdict", StatusContractMissing, true},
		{"UNCHANGED is a batch short circuit", StatusUnchanged, false},
		{"SKIPPED is a batch short circuit", StatusSkipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.status.IsTerminalVerdict()
			if got != tt.want {
				t.Errorf("Status.IsTerminalVerdict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		raw     string
		want    Severity
		wantErr bool
	}{
		{"critical maps to CRITICAL", "critical", SeverityCritical, false},
		{"error maps to CRITICAL", "error", SeverityCritical, false},
		{"warning maps to WARNING", "warning", SeverityWarning, false},
		{"warn maps to WARNING", "warn", SeverityWarning, false},
		{"uppercase is accepted", "CRITICAL", SeverityCritical, false},
		{"surrounding whitespace is trimmed", "  error  ", SeverityCritical, false},
		{"unknown value fails", "fatal", "", true},
		{"empty value fails", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeverity(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownSeverity), "Should return ErrUnknownSeverity") //nolint:testifylint

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCriticality_AtLeast(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		c     Criticality
		other Criticality
		want  bool
	}{
		{"CRITICAL at least HIGH", CriticalityCritical, CriticalityHigh, true},
		{"HIGH at least HIGH", CriticalityHigh, CriticalityHigh, true},
		{"MEDIUM not at least HIGH", CriticalityMedium, CriticalityHigh, false},
		{"LOW not at least MEDIUM", CriticalityLow, CriticalityMedium, false},
		{"LOW at least LOW", CriticalityLow, CriticalityLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.c.AtLeast(tt.other)
			if got != tt.want {
				t.Errorf("Criticality.AtLeast() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxCriticality(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		values []Criticality
		want   Criticality
	}{
		{"empty defaults to LOW", nil, CriticalityLow},
		{"single value", []Criticality{CriticalityHigh}, CriticalityHigh},
		{"max wins", []Criticality{CriticalityLow, CriticalityCritical, CriticalityMedium}, CriticalityCritical},
		{"invalid values are ignored", []Criticality{Criticality("UNRANKED"), CriticalityMedium}, CriticalityMedium},
		{"all invalid defaults to LOW", []Criticality{Criticality("???")}, CriticalityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxCriticality(tt.values...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCriticality(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("ValidValues", func(t *testing.T) {
		for raw, want := range map[string]Criticality{
			"low":      CriticalityLow,
			"MEDIUM":   CriticalityMedium,
			" high ":   CriticalityHigh,
			"critical": CriticalityCritical,
		} {
			got, err := ParseCriticality(raw)
			require.NoError(t, err, "ParseCriticality(%q)", raw)
			assert.Equal(t, want, got)
		}
	})

	t.Run("UnknownValue", func(t *testing.T) {
		_, err := ParseCriticality("severe")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownCriticality), "Should return ErrUnknownCriticality") //nolint:testifylint
		assert.Contains(t, err.Error(), "severe", "Error should mention invalid value")
	})
}

func TestPartition(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	violations := []Violation{
		Critical(KindTimeliness, "", "File is 48.0 hours old, exceeds maximum age of 24.0 hours"),
		Warning(KindSchemaWarning, "tier", "Unexpected column: tier"),
		Critical(KindSchemaCritical, "transaction_id", "Missing required column: transaction_id"),
		Warning(KindAnomalyWarning, "amount", "mean_amount deviates from baseline"),
	}

	criticals, warnings := Partition(violations)

	require.Len(t, criticals, 2)
	require.Len(t, warnings, 2)
	assert.Equal(t, "File is 48.0 hours old, exceeds maximum age of 24.0 hours", criticals[0])
	assert.Equal(t, "Missing required column: transaction_id", criticals[1])
	assert.Equal(t, "Unexpected column: tier", warnings[0])
}

func TestReport_AddViolation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewReport("/data/orders.csv", "orders", time.Now().UTC())

	r.AddViolation(Critical(KindSchemaCritical, "order_id", "Missing required column: order_id"))
	r.AddViolation(Warning(KindSchemaWarning, "tier", "Unexpected column: tier"))

	assert.True(t, r.HasCritical())
	assert.Equal(t, []string{"Missing required column: order_id"}, r.CriticalErrors)
	assert.Equal(t, []string{"Unexpected column: tier"}, r.Warnings)
	assert.Len(t, r.Violations, 2)
}

func TestReport_SetExecutionTime(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewReport("/data/orders.csv", "orders", time.Now().UTC())
	r.SetExecutionTime(1234 * time.Millisecond)

	assert.Equal(t, "1.23s", r.ExecutionTime)
}

func TestReport_ErrorSummary(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewReport("/data/orders.csv", "orders", time.Now().UTC())
	r.AddViolation(Critical(KindTimeliness, "", "File is 48.0 hours old, exceeds maximum age of 24.0 hours"))
	r.AddViolation(Critical(KindSchemaCritical, "order_id", "Missing required column: order_id"))
	r.AddViolation(Critical(KindAnomalyCritical, "row_count", "row_count z-score 10.0 exceeds 3.0"))
	r.AddViolation(Warning(KindSchemaWarning, "tier", "Unexpected column: tier"))

	summary := r.ErrorSummary()

	assert.Equal(t, 3, summary.TotalErrors, "warnings must not count")
	assert.Equal(t, 1, summary.TimelinessIssues)
	assert.Equal(t, 1, summary.SchemaIssues)
	assert.Equal(t, 1, summary.ProfilingIssues)
}

func TestReport_MarshalsEmptyListsAsArrays(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewReport("/data/orders.csv", "orders", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	r.Status = StatusPass
	r.SetExecutionTime(500 * time.Millisecond)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	doc := string(data)
	assert.Contains(t, doc, `"critical_errors":[]`, "empty lists must marshal as arrays, not null")
	assert.Contains(t, doc, `"warnings":[]`)
	assert.Contains(t, doc, `"quarantine_indices":[]`)
	assert.Contains(t, doc, `"execution_log":[]`)
	assert.Contains(t, doc, `"status":"PASS"`)
	assert.NotContains(t, doc, "quality_metrics", "unset optional sections must be omitted")
	assert.NotContains(t, doc, "Violations", "typed violations never reach the wire")
}

func TestReport_LogStep(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewReport("/data/orders.csv", "orders", time.Now().UTC())
	r.LogStep("PROBE_METADATA", "fresh, first sighting")
	r.LogStep("LOAD_DATA", "1000 rows, 5 columns")

	require.Len(t, r.ExecutionLog, 2)
	assert.Equal(t, "PROBE_METADATA", r.ExecutionLog[0].Tool)
	assert.Equal(t, "1000 rows, 5 columns", r.ExecutionLog[1].Result)
	assert.False(t, r.ExecutionLog[0].Timestamp.IsZero())
}

func TestReportFileName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ts := time.Date(2025, 6, 1, 14, 30, 45, 0, time.UTC)
	got := ReportFileName(ts)

	assert.Equal(t, "monitor_report_20250601_143045.json", got)
	assert.True(t, strings.HasPrefix(got, "monitor_report_"))
}
