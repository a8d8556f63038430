package verdict

import (
	"fmt"
	"time"
)

type (
	// Report is the verdict document emitted after every run. Its JSON shape
	// is the public interface of the gatekeeper and is kept wire-stable.
	Report struct {
		// Timestamp is when the run started.
		Timestamp time.Time `json:"timestamp"`

		// File is the absolute path of the evaluated data file.
		File string `json:"file"`

		// TableName is the logical dataset name derived from the file stem.
		TableName string `json:"table_name"`

		// Status is the terminal outcome of the run.
		Status Status `json:"status"`

		// ExecutionTime is the wall-clock duration rendered as "1.23s".
		ExecutionTime string `json:"execution_time"`

		// CriticalErrors are the rendered messages of blocking violations.
		CriticalErrors []string `json:"critical_errors"`

		// Warnings are the rendered messages of non-blocking violations.
		Warnings []string `json:"warnings"`

		// StatsSummary holds the per-column statistical profile.
		StatsSummary map[string]ColumnStats `json:"stats_summary"`

		// QuarantineIndices are row indices of statistical outliers, capped
		// at one hundred entries.
		QuarantineIndices []int `json:"quarantine_indices"`

		// ExecutionLog records every stage the state machine visited.
		ExecutionLog []ExecutionLogEntry `json:"execution_log"`

		// QualityMetrics scores the four quality dimensions, when computed.
		QualityMetrics *QualityMetrics `json:"quality_metrics,omitempty"`

		// HealthIndicator is the consumer-facing traffic light, when computed.
		HealthIndicator *HealthIndicator `json:"health_indicator,omitempty"`

		// TablePriority ranks the table by operational importance, when
		// the table is registered in the catalog.
		TablePriority *TablePriority `json:"table_priority,omitempty"`

		// SeasonalAnalysis reports weekday- and month-aware deviations.
		SeasonalAnalysis *SeasonalAnalysis `json:"seasonal_analysis,omitempty"`

		// ConsistencyResult reports referential integrity checks.
		ConsistencyResult *ConsistencyResult `json:"consistency_result,omitempty"`

		// SchemaEvolution carries suggested contract updates for columns
		// observed in data but absent from the contract.
		SchemaEvolution *SchemaEvolution `json:"schema_evolution,omitempty"`

		// InferredContract is the draft contract document emitted on
		// CONTRACT_MISSING runs.
		InferredContract any `json:"inferred_contract,omitempty"`

		// ActiveContract is the contract document the run validated against.
		ActiveContract any `json:"active_contract,omitempty"`

		// Violations holds the typed findings behind CriticalErrors and
		// Warnings. Internal only; the wire carries rendered messages.
		Violations []Violation `json:"-"`
	}

	// ExecutionLogEntry records one state-machine transition.
	ExecutionLogEntry struct {
		// Tool is the stage name, e.g. "VALIDATE_SCHEMA".
		Tool string `json:"tool"`

		// Timestamp is when the stage completed.
		Timestamp time.Time `json:"timestamp"`

		// Result is the stage's one-line outcome.
		Result string `json:"result"`
	}

	// ColumnStats is the wire shape of a single column's profile.
	ColumnStats struct {
		DType       string   `json:"dtype"`
		NullCount   int64    `json:"null_count"`
		NullPct     float64  `json:"null_pct"`
		UniqueCount int64    `json:"unique_count"`
		UniquePct   float64  `json:"unique_pct"`
		Mean        *float64 `json:"mean,omitempty"`
		Median      *float64 `json:"median,omitempty"`
		Std         *float64 `json:"std,omitempty"`
		Min         *float64 `json:"min,omitempty"`
		Max         *float64 `json:"max,omitempty"`
		Skewness    *float64 `json:"skewness,omitempty"`
		Kurtosis    *float64 `json:"kurtosis,omitempty"`

		// OutlierMethod is "Z-Score" or "IQR" depending on distribution shape.
		OutlierMethod string `json:"outlier_method,omitempty"`
		OutlierCount  int    `json:"outlier_count,omitempty"`
	}

	// QualityMetrics scores the dataset on four dimensions, each 0-100.
	QualityMetrics struct {
		Freshness    float64 `json:"freshness"`
		Completeness float64 `json:"completeness"`
		Validity     float64 `json:"validity"`
		Uniqueness   float64 `json:"uniqueness"`

		// OverallScore is the arithmetic mean of the four dimensions.
		OverallScore float64 `json:"overall_score"`

		// Status is HEALTHY (>=90), DEGRADED (>=70), or CRITICAL.
		Status string `json:"status"`

		// ColumnHealth maps each column to a completeness-derived score.
		ColumnHealth map[string]float64 `json:"column_health,omitempty"`
	}

	// HealthIndicator is the consumer-facing summary of whether the
	// dataset should be trusted right now.
	HealthIndicator struct {
		Score     float64        `json:"health_score"`
		Badge     string         `json:"badge"`
		SafeToUse bool           `json:"safe_to_use"`
		Issues    []string       `json:"issues"`
		Insights  HealthInsights `json:"insights"`
	}

	// HealthInsights narrates the health indicator for humans.
	HealthInsights struct {
		Summary         string   `json:"summary"`
		Recommendations []string `json:"recommendations"`
		RiskLevel       string   `json:"risk_level"`
	}

	// TablePriority ranks the table by business importance.
	TablePriority struct {
		Score   float64         `json:"priority_score"`
		Tier    string          `json:"tier"`
		Factors PriorityFactors `json:"factors"`

		// Reason explains an UNKNOWN tier for unregistered tables.
		Reason string `json:"reason,omitempty"`
	}

	// PriorityFactors are the catalog attributes behind a priority score.
	PriorityFactors struct {
		Certification       string  `json:"certification"`
		DownstreamConsumers int     `json:"downstream_consumers"`
		AvgDailyQueries     int     `json:"avg_daily_queries"`
		SLAHours            float64 `json:"sla_hours"`
	}

	// SeasonalAnalysis reports deviations against weekday and monthly norms.
	SeasonalAnalysis struct {
		// Status is the worst per-metric outcome: NORMAL, WARNING, or CRITICAL.
		Status string `json:"status"`

		// Kind records which baseline answered: seasonal, global, or initializing.
		Kind BaselineKind `json:"baseline_kind"`

		// Anomalies lists metrics that deviated from their norm.
		Anomalies []SeasonalAnomaly `json:"anomalies"`

		// Note carries the initializing explanation when history is thin.
		Note string `json:"note,omitempty"`
	}

	// SeasonalAnomaly is one metric's deviation from its seasonal norm.
	SeasonalAnomaly struct {
		Metric         string  `json:"metric"`
		Value          float64 `json:"value"`
		DeviationSigma float64 `json:"deviation_sigma"`

		// Pattern names the norm the value was judged against, e.g.
		// "Monday" or "December".
		Pattern  string `json:"pattern"`
		Severity string `json:"severity"`
		Context  string `json:"context"`
	}

	// ConsistencyResult reports referential integrity across datasets.
	ConsistencyResult struct {
		Status  string             `json:"status"`
		Checks  []ConsistencyCheck `json:"checks"`
		Summary string             `json:"summary,omitempty"`
	}

	// ConsistencyCheck is one foreign-key relationship verification.
	ConsistencyCheck struct {
		// Relationship labels the check as "<table>.<fk> -> <ref>.<pk>".
		Relationship string `json:"relationship"`

		OrphanCount   int64    `json:"orphan_count"`
		OrphanPct     float64  `json:"orphan_pct"`
		SampleOrphans []string `json:"sample_orphans"`
		Status        string   `json:"status"`
	}

	// SchemaEvolution carries non-binding suggestions for contract updates.
	SchemaEvolution struct {
		SuggestedUpdates []SuggestedColumn `json:"suggested_updates"`

		// Advice is optional remediation guidance; advisory only.
		Advice string `json:"advice,omitempty"`
	}

	// SuggestedColumn is a draft contract entry for an undeclared column.
	SuggestedColumn struct {
		Name         string `json:"name"`
		PhysicalType string `json:"physicalType"`
		Quality      []any  `json:"quality"`
		Description  string `json:"description"`
	}

	// ErrorSummary categorizes blocking violations for the quarantine
	// sidecar file.
	ErrorSummary struct {
		TotalErrors      int `json:"total_errors"`
		TimelinessIssues int `json:"timeliness_issues"`
		SchemaIssues     int `json:"schema_issues"`
		ProfilingIssues  int `json:"profiling_issues"`
	}
)

// NewReport creates a report for a run over the given file. List-valued
// fields are initialized so the document marshals them as empty arrays,
// never null.
func NewReport(file, tableName string, startedAt time.Time) *Report {
	return &Report{
		Timestamp:         startedAt,
		File:              file,
		TableName:         tableName,
		Status:            StatusFail,
		CriticalErrors:    []string{},
		Warnings:          []string{},
		StatsSummary:      map[string]ColumnStats{},
		QuarantineIndices: []int{},
		ExecutionLog:      []ExecutionLogEntry{},
	}
}

// LogStep appends a state-machine transition to the execution log.
func (r *Report) LogStep(tool, result string) {
	r.ExecutionLog = append(r.ExecutionLog, ExecutionLogEntry{
		Tool:      tool,
		Timestamp: time.Now().UTC(),
		Result:    result,
	})
}

// AddViolation records a typed finding and mirrors its message into the
// wire-visible critical or warning list.
func (r *Report) AddViolation(v Violation) {
	r.Violations = append(r.Violations, v)
	if v.IsCritical() {
		r.CriticalErrors = append(r.CriticalErrors, v.Message)
	} else {
		r.Warnings = append(r.Warnings, v.Message)
	}
}

// AddViolations records multiple findings in order.
func (r *Report) AddViolations(vs []Violation) {
	for _, v := range vs {
		r.AddViolation(v)
	}
}

// HasCritical reports whether any blocking violation was recorded.
func (r *Report) HasCritical() bool {
	return len(r.CriticalErrors) > 0
}

// SetExecutionTime renders the run duration into the document format.
func (r *Report) SetExecutionTime(d time.Duration) {
	r.ExecutionTime = fmt.Sprintf("%.2fs", d.Seconds())
}

// ErrorSummary categorizes the blocking violations for the quarantine
// sidecar. Load, anomaly, consistency, and quality blocks all count as
// profiling issues.
func (r *Report) ErrorSummary() ErrorSummary {
	summary := ErrorSummary{TotalErrors: len(r.CriticalErrors)}
	for _, v := range r.Violations {
		if !v.IsCritical() {
			continue
		}
		switch v.Kind {
		case KindTimeliness:
			summary.TimelinessIssues++
		case KindSchemaCritical, KindSchemaWarning:
			summary.SchemaIssues++
		default:
			summary.ProfilingIssues++
		}
	}

	return summary
}

// ReportFileName names the JSON document for a run started at ts.
func ReportFileName(ts time.Time) string {
	return fmt.Sprintf("monitor_report_%s.json", ts.Format("20060102_150405"))
}
