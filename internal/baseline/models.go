// Package baseline provides the embedded statistical memory of the
// gatekeeper: metric history, run audit trail, learned thresholds, and the
// dataset registry, all persisted in a single SQLite file.
package baseline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

type (
	// RunRecord is the audit entry written after every gatekeeping run.
	RunRecord struct {
		// RunID uniquely identifies the run.
		RunID string

		// Timestamp is when the run started.
		Timestamp time.Time

		// TableName is the logical dataset the run evaluated.
		TableName string

		// FileHash is the MD5 digest of the evaluated file, used for
		// duplicate-ingestion detection.
		FileHash string

		// RowCount is the number of rows loaded, zero when loading failed.
		RowCount int64

		// Status is the terminal outcome of the run.
		Status verdict.Status

		// QualityScore is the overall quality score, nil when not computed.
		QualityScore *float64

		// AnomalyCount is the number of baseline deviations found.
		AnomalyCount int

		// ZScoreMax is the largest absolute z-score observed, nil when no
		// baseline existed.
		ZScoreMax *float64

		// DurationMS is the run's wall-clock duration in milliseconds.
		DurationMS int64

		// Reason is the one-line explanation of a non-PASS outcome.
		Reason string

		// Violations holds the typed findings, persisted as a JSON array.
		Violations []verdict.Violation
	}

	// Stats is a statistical baseline answer for one metric.
	Stats struct {
		// Mean is the baseline mean, zero when initializing.
		Mean float64

		// Std is the sample standard deviation, zero when initializing.
		Std float64

		// Count is how many historical samples produced the baseline.
		Count int

		// Kind records how the baseline was derived.
		Kind verdict.BaselineKind
	}

	// Sample is one historical metric observation.
	Sample struct {
		Value     float64
		Timestamp time.Time
	}

	// Threshold is a learned statistical bound for one metric.
	Threshold struct {
		MetricName  string
		Mean        float64
		Std         float64
		LowerBound  float64
		UpperBound  float64
		SampleCount int
	}

	// DatasetEntry is one row of the dataset registry.
	DatasetEntry struct {
		TableName     string
		ContractPath  string
		Lifecycle     string
		Criticality   verdict.Criticality
		LastScanned   *time.Time
		LastStatus    verdict.Status
		LastFileMtime *time.Time
		ScanCount     int
	}
)

// Validation errors for baseline records (static sentinel errors for errors.Is() checks).
var (
	// ErrRunIDEmpty is returned when a run record has no run ID.
	ErrRunIDEmpty = errors.New("run_id cannot be empty")

	// ErrTableNameEmpty is returned when a record has no table name.
	ErrTableNameEmpty = errors.New("table_name cannot be empty")

	// ErrTimestampZero is returned when a record has no timestamp.
	ErrTimestampZero = errors.New("timestamp cannot be zero")

	// ErrStatusInvalid is returned when a run record carries an unknown status.
	ErrStatusInvalid = errors.New("invalid run status")

	// ErrRowCountNegative is returned when a run record has a negative row count.
	ErrRowCountNegative = errors.New("row_count cannot be negative")
)

// Validate checks domain rules before a run record is persisted.
func (r *RunRecord) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return ErrRunIDEmpty
	}

	if strings.TrimSpace(r.TableName) == "" {
		return ErrTableNameEmpty
	}

	if r.Timestamp.IsZero() {
		return ErrTimestampZero
	}

	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrStatusInvalid, r.Status)
	}

	if r.RowCount < 0 {
		return fmt.Errorf("%w: %d", ErrRowCountNegative, r.RowCount)
	}

	return nil
}

// Initializing reports whether the baseline has too little history to
// judge deviations.
func (s Stats) Initializing() bool {
	return s.Kind == verdict.BaselineInitializing
}

// Contains reports whether a value falls inside the learned bounds.
func (t Threshold) Contains(value float64) bool {
	return value >= t.LowerBound && value <= t.UpperBound
}
