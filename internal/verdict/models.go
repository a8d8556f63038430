// Package verdict provides the closed domain model for gatekeeping runs:
// statuses, severities, error kinds, criticality ordering, and the
// structured violations that every pipeline stage reports through.
package verdict

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// Status is the terminal outcome of a single gatekeeping run.
	//
	// PASS and PASS_WITH_WARNINGS promote the file to staging; FAIL
	// quarantines it; CONTRACT_MISSING emits an inferred draft contract and
	// takes no action on the file. UNCHANGED and SKIPPED only occur during
	// batch evaluation: UNCHANGED means the smart scan short-circuited on an
	// unmodified file, SKIPPED means no data file was found for a contract.
	Status string

	// Severity classifies a violation. Critical violations terminate the run
	// with FAIL; warnings accumulate into PASS_WITH_WARNINGS.
	Severity string

	// Kind is the machine-readable tag of the error taxonomy. Every
	// violation carries exactly one kind so downstream consumers can route
	// on it without parsing human-readable reasons.
	Kind string

	// Criticality is the ordinal blast-radius tag of a downstream consumer,
	// or of a table derived from the maximum of its consumers.
	Criticality string

	// BaselineKind describes how a statistical baseline was derived.
	BaselineKind string

	// Decision is a stage's instruction to the state machine.
	Decision string

	// Violation is a single typed finding from any pipeline stage.
	Violation struct {
		// Kind tags the violation with its taxonomy entry.
		Kind Kind `json:"kind"`

		// Severity decides whether this violation blocks the run.
		Severity Severity `json:"severity"`

		// Column names the offending column, empty for table-level findings.
		Column string `json:"column,omitempty"`

		// Message is the human-readable reason, stable across runs for
		// identical inputs.
		Message string `json:"message"`
	}
)

const (
	// StatusPass indicates a clean run; the file is safe to promote.
	StatusPass Status = "PASS"

	// StatusPassWithWarnings indicates a promotable run with non-blocking findings.
	StatusPassWithWarnings Status = "PASS_WITH_WARNINGS"

	// StatusFail indicates a blocked run; the file is quarantined.
	StatusFail Status = "FAIL"

	// StatusContractMissing indicates no contract could be located; an
	// inferred draft is emitted instead of a verdict on the data.
	StatusContractMissing Status = "CONTRACT_MISSING"

	// StatusUnchanged indicates the smart scan skipped an unmodified file.
	StatusUnchanged Status = "UNCHANGED"

	// StatusSkipped indicates batch evaluation found no data file for a table.
	StatusSkipped Status = "SKIPPED"
)

const (
	// SeverityWarning marks findings that never block a run on their own.
	SeverityWarning Severity = "WARNING"

	// SeverityCritical marks findings that force the run to FAIL.
	SeverityCritical Severity = "CRITICAL"
)

const (
	// KindTimeliness covers missing, stale, and duplicate files.
	KindTimeliness Kind = "timeliness"

	// KindLoadError covers unreadable or malformed input files.
	KindLoadError Kind = "load_error"

	// KindSchemaCritical covers missing required columns, type mismatches,
	// and strict-mode escalations.
	KindSchemaCritical Kind = "schema_critical"

	// KindSchemaWarning covers non-strict unexpected columns and
	// warning-severity rule violations.
	KindSchemaWarning Kind = "schema_warning"

	// KindConsistencyBreak covers orphaned foreign-key references.
	KindConsistencyBreak Kind = "consistency_break"

	// KindAnomalyCritical covers baseline deviations beyond z_crit.
	KindAnomalyCritical Kind = "anomaly_critical"

	// KindAnomalyWarning covers baseline deviations between z_warn and z_crit.
	KindAnomalyWarning Kind = "anomaly_warning"

	// KindQualityBlock covers overall quality scores below the block threshold.
	KindQualityBlock Kind = "quality_block"

	// KindInfraTransient covers unreachable downstream load infrastructure.
	// It downgrades the run instead of failing it.
	KindInfraTransient Kind = "infra_transient"

	// KindCancelled covers runs aborted by caller cancellation.
	KindCancelled Kind = "cancelled"

	// KindTimeout covers runs aborted by a per-stage deadline.
	KindTimeout Kind = "timeout"

	// KindInternal covers unhandled failures; never re-raised to the caller.
	KindInternal Kind = "internal_error"
)

const (
	// CriticalityLow is the default for unknown or unconsumed tables.
	CriticalityLow Criticality = "LOW"

	// CriticalityMedium marks tables with routine downstream use.
	CriticalityMedium Criticality = "MEDIUM"

	// CriticalityHigh marks tables feeding important consumers.
	CriticalityHigh Criticality = "HIGH"

	// CriticalityCritical marks tables feeding business-critical consumers.
	CriticalityCritical Criticality = "CRITICAL"
)

const (
	// BaselineSeasonal means the baseline was computed from samples sharing
	// the current weekday (requires at least three).
	BaselineSeasonal BaselineKind = "seasonal"

	// BaselineGlobal means the baseline fell back to the most recent thirty
	// samples regardless of weekday (requires at least three).
	BaselineGlobal BaselineKind = "global"

	// BaselineInitializing means too little history exists to judge; the
	// engine never flags anomalies against an initializing baseline.
	BaselineInitializing BaselineKind = "initializing"
)

const (
	// DecisionContinue lets the state machine advance to the next stage.
	DecisionContinue Decision = "CONTINUE"

	// DecisionStop ends the run with a non-critical terminal state.
	DecisionStop Decision = "STOP"

	// DecisionCriticalStop ends the run with FAIL immediately.
	DecisionCriticalStop Decision = "CRITICAL_STOP"
)

// Violation construction errors (static sentinel errors for errors.Is() checks).
var (
	// ErrUnknownSeverity indicates a severity string outside the closed set.
	ErrUnknownSeverity = errors.New("unknown severity")

	// ErrUnknownCriticality indicates a criticality string outside the closed set.
	ErrUnknownCriticality = errors.New("unknown criticality")
)

// criticalityRank orders criticalities for max-aggregation.
var criticalityRank = map[Criticality]int{
	CriticalityLow:      0,
	CriticalityMedium:   1,
	CriticalityHigh:     2,
	CriticalityCritical: 3,
}

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the Status is one of the closed set.
func (s Status) IsValid() bool {
	switch s {
	case StatusPass, StatusPassWithWarnings, StatusFail, StatusContractMissing, StatusUnchanged, StatusSkipped:
		return true
	default:
		return false
	}
}

// Passed reports whether the run outcome permits promotion downstream.
func (s Status) Passed() bool {
	return s == StatusPass || s == StatusPassWithWarnings
}

// IsTerminalVerdict reports whether the status was produced by a full run
// (as opposed to the batch-only UNCHANGED/SKIPPED short circuits).
func (s Status) IsTerminalVerdict() bool {
	switch s {
	case StatusPass, StatusPassWithWarnings, StatusFail, StatusContractMissing:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Severity.
func (sv Severity) String() string {
	return string(sv)
}

// IsValid checks if the Severity is one of the closed set.
func (sv Severity) IsValid() bool {
	return sv == SeverityWarning || sv == SeverityCritical
}

// ParseSeverity normalizes contract rule severities. Contracts written by
// hand use "error" and "critical" interchangeably for blocking rules.
func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "error":
		return SeverityCritical, nil
	case "warning", "warn":
		return SeverityWarning, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, raw)
	}
}

// String returns the string representation of the Criticality.
func (c Criticality) String() string {
	return string(c)
}

// IsValid checks if the Criticality is one of the closed set.
func (c Criticality) IsValid() bool {
	_, ok := criticalityRank[c]
	return ok
}

// AtLeast reports whether c ranks at or above other.
func (c Criticality) AtLeast(other Criticality) bool {
	return criticalityRank[c] >= criticalityRank[other]
}

// MaxCriticality returns the highest-ranked criticality of the given values,
// defaulting to LOW when none are provided.
func MaxCriticality(values ...Criticality) Criticality {
	maxC := CriticalityLow
	for _, v := range values {
		if v.IsValid() && criticalityRank[v] > criticalityRank[maxC] {
			maxC = v
		}
	}

	return maxC
}

// ParseCriticality normalizes a criticality string from external documents.
func ParseCriticality(raw string) (Criticality, error) {
	c := Criticality(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCriticality, raw)
	}

	return c, nil
}

// String returns the string representation of the BaselineKind.
func (bk BaselineKind) String() string {
	return string(bk)
}

// IsValid checks if the BaselineKind is one of the closed set.
func (bk BaselineKind) IsValid() bool {
	switch bk {
	case BaselineSeasonal, BaselineGlobal, BaselineInitializing:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Decision.
func (d Decision) String() string {
	return string(d)
}

// Blocks reports whether the decision terminates the run with FAIL.
func (d Decision) Blocks() bool {
	return d == DecisionCriticalStop
}

// IsCritical reports whether the violation blocks the run.
func (v Violation) IsCritical() bool {
	return v.Severity == SeverityCritical
}

// String renders the violation the way it appears in the verdict document.
func (v Violation) String() string {
	return v.Message
}

// Critical builds a blocking violation.
func Critical(kind Kind, column, message string) Violation {
	return Violation{Kind: kind, Severity: SeverityCritical, Column: column, Message: message}
}

// Warning builds a non-blocking violation.
func Warning(kind Kind, column, message string) Violation {
	return Violation{Kind: kind, Severity: SeverityWarning, Column: column, Message: message}
}

// Partition splits violations into critical and warning message lists, in
// input order. The verdict document carries rendered messages, not the
// structured violations themselves.
func Partition(violations []Violation) (criticals, warnings []string) {
	for _, v := range violations {
		if v.IsCritical() {
			criticals = append(criticals, v.Message)
		} else {
			warnings = append(warnings, v.Message)
		}
	}

	return criticals, warnings
}
