// Package contract defines the data contract document and the file-backed
// store that locates, loads, archives, and replaces contracts.
//
// A contract is a single-table YAML document. Column constraints are typed
// fields rather than free-form rule maps; severities beyond the defaults
// live in one per-column severity field.
package contract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

// SpecVersion is the contract specification revision this package writes.
const SpecVersion = "3.1.0"

// Global anomaly and quality-score cutoffs, used where a contract does
// not override them through quality.anomaly_thresholds.
const (
	DefaultZWarn             = 2.5
	DefaultZCrit             = 3.0
	DefaultQualityScoreWarn  = 80.0
	DefaultQualityScoreBlock = 50.0
)

// DefaultLimits packages the global cutoffs into a Limits value.
func DefaultLimits() Limits {
	return Limits{
		ZWarn:             DefaultZWarn,
		ZCrit:             DefaultZCrit,
		QualityScoreWarn:  DefaultQualityScoreWarn,
		QualityScoreBlock: DefaultQualityScoreBlock,
	}
}

// Sentinel errors for document validation.
var (
	// ErrTableNameMissing indicates a document without a table_name.
	ErrTableNameMissing = errors.New("contract has no table_name")

	// ErrNoColumns indicates a document with an empty columns list.
	ErrNoColumns = errors.New("contract has no columns")

	// ErrDuplicateColumnName indicates two columns sharing a name.
	ErrDuplicateColumnName = errors.New("duplicate column name")

	// ErrPrimaryKeyNullable indicates a primary-key column marked nullable.
	ErrPrimaryKeyNullable = errors.New("primary key column must not be nullable")

	// ErrBadFreshnessThreshold indicates a freshness threshold not of the form "<int>h".
	ErrBadFreshnessThreshold = errors.New("freshness threshold must be of the form \"<int>h\"")
)

type (
	// Document is a data contract for one table.
	Document struct {
		SpecVersion string       `yaml:"dataContractSpecification,omitempty" json:"dataContractSpecification,omitempty"`
		ID          string       `yaml:"id,omitempty"                        json:"id,omitempty"`
		TableName   string       `yaml:"table_name"                          json:"table_name"`
		Info        Info         `yaml:"info,omitempty"                      json:"info,omitempty"`
		StrictMode  bool         `yaml:"strict_mode,omitempty"               json:"strict_mode,omitempty"`
		Columns     []Column     `yaml:"columns"                             json:"columns"`
		Quality     Quality      `yaml:"quality,omitempty"                   json:"quality,omitempty"`
		ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"              json:"foreign_keys,omitempty"`
	}

	// Info carries contract ownership and lifecycle metadata.
	Info struct {
		Title     string `yaml:"title,omitempty"     json:"title,omitempty"`
		Version   string `yaml:"version,omitempty"   json:"version,omitempty"`
		Owner     string `yaml:"owner,omitempty"     json:"owner,omitempty"`
		Domain    string `yaml:"domain,omitempty"    json:"domain,omitempty"`
		Status    string `yaml:"status,omitempty"    json:"status,omitempty"`
		Lifecycle string `yaml:"lifecycle,omitempty" json:"lifecycle,omitempty"`
	}

	// Column declares one column and its constraints. Severity applies to
	// the value rules (unique, min/max, pattern, allowed_values) and
	// defaults to warning; nullability and type violations are always
	// critical.
	Column struct {
		Name          string   `yaml:"name"                     json:"name"`
		PhysicalType  string   `yaml:"physical_type"            json:"physical_type"`
		Nullable      bool     `yaml:"nullable"                 json:"nullable"`
		IsPrimaryKey  bool     `yaml:"is_primary_key,omitempty" json:"is_primary_key,omitempty"`
		Unique        bool     `yaml:"unique,omitempty"         json:"unique,omitempty"`
		Severity      string   `yaml:"severity,omitempty"       json:"severity,omitempty"`
		MinValue      *float64 `yaml:"min_value,omitempty"      json:"min_value,omitempty"`
		MaxValue      *float64 `yaml:"max_value,omitempty"      json:"max_value,omitempty"`
		AllowedValues []string `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
		Pattern       string   `yaml:"pattern,omitempty"        json:"pattern,omitempty"`
		Description   string   `yaml:"description,omitempty"    json:"description,omitempty"`
	}

	// Quality holds table-level expectations.
	Quality struct {
		MinRows           *int64             `yaml:"min_rows,omitempty"           json:"min_rows,omitempty"`
		MaxRows           *int64             `yaml:"max_rows,omitempty"           json:"max_rows,omitempty"`
		Freshness         *Freshness         `yaml:"freshness,omitempty"          json:"freshness,omitempty"`
		AnomalyThresholds *AnomalyThresholds `yaml:"anomaly_thresholds,omitempty" json:"anomaly_thresholds,omitempty"`
		CustomChecks      []CustomCheck      `yaml:"custom_checks,omitempty"      json:"custom_checks,omitempty"`
	}

	// Freshness bounds the age of incoming files.
	Freshness struct {
		Threshold string `yaml:"threshold" json:"threshold"`
	}

	// AnomalyThresholds overrides the global z-score and quality-score
	// cutoffs for one table.
	AnomalyThresholds struct {
		ZWarn             *float64 `yaml:"z_warn,omitempty"              json:"z_warn,omitempty"`
		ZCrit             *float64 `yaml:"z_crit,omitempty"              json:"z_crit,omitempty"`
		QualityScoreWarn  *float64 `yaml:"quality_score_warn,omitempty"  json:"quality_score_warn,omitempty"`
		QualityScoreBlock *float64 `yaml:"quality_score_block,omitempty" json:"quality_score_block,omitempty"`
	}

	// Limits are the effective anomaly and quality-score cutoffs for one
	// table after contract overrides are applied.
	Limits struct {
		ZWarn             float64
		ZCrit             float64
		QualityScoreWarn  float64
		QualityScoreBlock float64
	}

	// CustomCheck is a business rule over the loaded rows, expressed in
	// the SQL-subset grammar.
	CustomCheck struct {
		Name         string `yaml:"name"               json:"name"`
		SQLCondition string `yaml:"sql_condition"      json:"sql_condition"`
		Severity     string `yaml:"severity,omitempty" json:"severity,omitempty"`
	}

	// ForeignKey declares a referential-integrity relationship.
	ForeignKey struct {
		Columns          []string `yaml:"columns"           json:"columns"`
		ReferenceTable   string   `yaml:"reference_table"   json:"reference_table"`
		ReferenceColumns []string `yaml:"reference_columns" json:"reference_columns"`
	}
)

// Validate checks the structural invariants of a contract document.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.TableName) == "" {
		return ErrTableNameMissing
	}

	if len(d.Columns) == 0 {
		return fmt.Errorf("%w: %s", ErrNoColumns, d.TableName)
	}

	seen := make(map[string]struct{}, len(d.Columns))

	for _, col := range d.Columns {
		if _, dup := seen[col.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateColumnName, col.Name)
		}

		seen[col.Name] = struct{}{}

		if col.IsPrimaryKey && col.Nullable {
			return fmt.Errorf("%w: %s", ErrPrimaryKeyNullable, col.Name)
		}
	}

	return nil
}

// ColumnNames returns the declared column names in order.
func (d *Document) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		names[i] = col.Name
	}

	return names
}

// Column looks up a column declaration by name.
func (d *Document) Column(name string) (*Column, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}

	return nil, false
}

// FreshnessLimit returns the contract's freshness threshold, or the given
// default when the contract does not set one.
func (d *Document) FreshnessLimit(fallback time.Duration) (time.Duration, error) {
	if d.Quality.Freshness == nil {
		return fallback, nil
	}

	return d.Quality.Freshness.Duration()
}

// Limits resolves the table's anomaly and quality-score cutoffs,
// falling back to the global defaults for any the contract leaves
// unset.
func (d *Document) Limits() Limits {
	return d.LimitsFrom(DefaultLimits())
}

// LimitsFrom applies the contract's quality.anomaly_thresholds overrides
// to the given global cutoffs, for deployments that shift the defaults
// through configuration.
func (d *Document) LimitsFrom(base Limits) Limits {
	limits := base

	overrides := d.Quality.AnomalyThresholds
	if overrides == nil {
		return limits
	}

	if overrides.ZWarn != nil {
		limits.ZWarn = *overrides.ZWarn
	}

	if overrides.ZCrit != nil {
		limits.ZCrit = *overrides.ZCrit
	}

	if overrides.QualityScoreWarn != nil {
		limits.QualityScoreWarn = *overrides.QualityScoreWarn
	}

	if overrides.QualityScoreBlock != nil {
		limits.QualityScoreBlock = *overrides.QualityScoreBlock
	}

	return limits
}

// Duration parses the "<int>h" threshold.
func (f *Freshness) Duration() (time.Duration, error) {
	raw := strings.TrimSpace(f.Threshold)
	if !strings.HasSuffix(raw, "h") {
		return 0, fmt.Errorf("%w: %q", ErrBadFreshnessThreshold, f.Threshold)
	}

	hours, err := strconv.Atoi(strings.TrimSuffix(raw, "h"))
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadFreshnessThreshold, f.Threshold)
	}

	return time.Duration(hours) * time.Hour, nil
}

// RuleSeverity returns the severity for the column's value rules,
// defaulting to WARNING.
func (c *Column) RuleSeverity() verdict.Severity {
	sev, err := verdict.ParseSeverity(c.Severity)
	if err != nil {
		return verdict.SeverityWarning
	}

	return sev
}

// ParsedSeverity returns the check's severity, defaulting to CRITICAL.
func (c *CustomCheck) ParsedSeverity() verdict.Severity {
	sev, err := verdict.ParseSeverity(c.Severity)
	if err != nil {
		return verdict.SeverityCritical
	}

	return sev
}

// Decode parses a YAML contract document without validating it.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse contract: %w", err)
	}

	return &doc, nil
}

// Encode renders a document as YAML.
func Encode(doc *Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode contract: %w", err)
	}

	return data, nil
}
