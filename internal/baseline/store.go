package baseline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Sentinel errors for baseline store operations.
var (
	// ErrMetricStoreFailed is returned when metric history storage fails.
	ErrMetricStoreFailed = errors.New("metric history storage failed")

	// ErrRunStoreFailed is returned when run history storage fails.
	ErrRunStoreFailed = errors.New("run history storage failed")

	// ErrBaselineQueryFailed is returned when a baseline lookup fails.
	ErrBaselineQueryFailed = errors.New("baseline query failed")

	// ErrThresholdRefreshFailed is returned when the delete-then-insert
	// threshold refresh fails.
	ErrThresholdRefreshFailed = errors.New("threshold refresh failed")

	// ErrRegistryUpsertFailed is returned when a dataset registry upsert fails.
	ErrRegistryUpsertFailed = errors.New("dataset registry upsert failed")

	// ErrDatasetNotFound is returned when a table has no registry entry.
	ErrDatasetNotFound = errors.New("dataset not found in registry")
)

const (
	// timeFormat is the stored layout for history timestamps. Fixed-width
	// UTC RFC3339 keeps lexicographic ordering consistent with
	// chronological ordering, which the window queries rely on.
	timeFormat = time.RFC3339

	// registryTimeFormat is the stored layout for dataset registry
	// timestamps. The registry mtime must survive a round trip at full
	// precision so it compares equal to the filesystem's sub-second stat
	// mtime; registry timestamps are only ever compared, never ordered,
	// so the variable fraction width is harmless.
	registryTimeFormat = time.RFC3339Nano

	// baselineWindow caps how many recent samples feed a baseline.
	baselineWindow = 30

	// seasonalMinSamples is the minimum same-weekday history for a
	// seasonal baseline.
	seasonalMinSamples = 3

	// monthlyMinSamples is the minimum same-month history for a monthly
	// baseline.
	monthlyMinSamples = 2

	// thresholdSigma is the band width of learned thresholds.
	thresholdSigma = 3.0
)

// Store persists and serves the gatekeeper's statistical memory.
//
// Learning is serialized per table with an in-process mutex map so batch
// runs never interleave the read-recompute-write threshold refresh for the
// same table. Distinct tables learn concurrently.
type Store struct {
	conn   *Connection
	logger *slog.Logger

	mu         sync.Mutex
	tableLocks map[string]*sync.Mutex
}

// NewStore creates a baseline store over an established connection.
// Returns error if connection is nil (ErrNoDatabaseConnection).
func NewStore(conn *Connection) (*Store, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &Store{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
		tableLocks: make(map[string]*sync.Mutex),
	}, nil
}

// HealthCheck verifies the underlying database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// RecordMetrics appends one row per metric to the metric history inside a
// single transaction. Metrics are written in sorted name order so repeated
// runs produce deterministic row ordering.
func (s *Store) RecordMetrics(
	ctx context.Context,
	runID, tableName string,
	ts time.Time,
	metrics map[string]float64,
) error {
	if runID == "" {
		return fmt.Errorf("%w: %w", ErrMetricStoreFailed, ErrRunIDEmpty)
	}

	if tableName == "" {
		return fmt.Errorf("%w: %w", ErrMetricStoreFailed, ErrTableNameEmpty)
	}

	if len(metrics) == 0 {
		return nil
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}

	sort.Strings(names)

	tx, err := s.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetricStoreFailed, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO metric_history (
			run_id, timestamp, table_name, metric_name, metric_value, day_of_week
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	stored := formatTime(ts)
	dow := mondayWeekday(ts)

	for _, name := range names {
		_, err = tx.ExecContext(ctx, query, runID, stored, tableName, name, metrics[name], dow)
		if err != nil {
			s.logger.Error("Metric history insert failed",
				"error", err,
				"table_name", tableName,
				"metric_name", name,
			)

			return fmt.Errorf("%w: %w", ErrMetricStoreFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrMetricStoreFailed, err)
	}

	return nil
}

// RecordRun appends the audit entry for a completed run.
func (s *Store) RecordRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", ErrRunStoreFailed)
	}

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrRunStoreFailed, err)
	}

	violations, err := marshalViolations(rec.Violations)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal violations: %w", ErrRunStoreFailed, err)
	}

	query := `
		INSERT INTO run_history (
			run_id, timestamp, table_name, file_hash, row_count, status,
			quality_score, anomaly_count, z_score_max, duration_ms, reason, violations
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.conn.DB.ExecContext(ctx, query,
		rec.RunID,
		formatTime(rec.Timestamp),
		rec.TableName,
		rec.FileHash,
		rec.RowCount,
		string(rec.Status),
		nullableFloat(rec.QualityScore),
		rec.AnomalyCount,
		nullableFloat(rec.ZScoreMax),
		rec.DurationMS,
		nullableString(rec.Reason),
		violations,
	)
	if err != nil {
		s.logger.Error("Run history insert failed",
			"error", err,
			"run_id", rec.RunID,
			"table_name", rec.TableName,
		)

		return fmt.Errorf("%w: %w", ErrRunStoreFailed, err)
	}

	s.logger.Info("Run recorded",
		"run_id", rec.RunID,
		"table_name", rec.TableName,
		"status", rec.Status,
		"row_count", rec.RowCount,
		"duration_ms", rec.DurationMS,
	)

	return nil
}

// LookupFileHash returns the most recent run that ingested the given file
// hash for a table, or found=false when the hash is unseen.
func (s *Store) LookupFileHash(ctx context.Context, tableName, hash string) (string, bool, error) {
	query := `
		SELECT run_id FROM run_history
		WHERE table_name = ? AND file_hash = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var runID string

	err := s.conn.DB.QueryRowContext(ctx, query, tableName, hash).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	return runID, true, nil
}

// SeasonalBaseline answers the baseline question for one metric.
//
// Resolution order:
//  1. Same-weekday samples (at least three) -> seasonal baseline.
//  2. Most recent thirty samples regardless of weekday (at least three)
//     -> global baseline.
//  3. Otherwise -> initializing; callers must not flag anomalies.
func (s *Store) SeasonalBaseline(
	ctx context.Context,
	tableName, metricName string,
	asOf time.Time,
) (Stats, error) {
	seasonal := `
		SELECT metric_value FROM metric_history
		WHERE table_name = ? AND metric_name = ? AND day_of_week = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	values, err := s.queryValues(ctx, seasonal, tableName, metricName, mondayWeekday(asOf), baselineWindow)
	if err != nil {
		return Stats{}, err
	}

	if len(values) >= seasonalMinSamples {
		return newStats(values, verdict.BaselineSeasonal), nil
	}

	global := `
		SELECT metric_value FROM metric_history
		WHERE table_name = ? AND metric_name = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	values, err = s.queryValues(ctx, global, tableName, metricName, baselineWindow)
	if err != nil {
		return Stats{}, err
	}

	if len(values) >= seasonalMinSamples {
		return newStats(values, verdict.BaselineGlobal), nil
	}

	return Stats{Count: len(values), Kind: verdict.BaselineInitializing}, nil
}

// MonthlyBaseline answers the month-of-year baseline for one metric, using
// samples from the same calendar month. Two samples suffice because a month
// recurs only once a year in short histories.
func (s *Store) MonthlyBaseline(
	ctx context.Context,
	tableName, metricName string,
	asOf time.Time,
) (Stats, error) {
	query := `
		SELECT metric_value FROM metric_history
		WHERE table_name = ? AND metric_name = ? AND strftime('%m', timestamp) = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	month := asOf.UTC().Format("01")

	values, err := s.queryValues(ctx, query, tableName, metricName, month, baselineWindow)
	if err != nil {
		return Stats{}, err
	}

	if len(values) >= monthlyMinSamples {
		return newStats(values, verdict.BaselineSeasonal), nil
	}

	return Stats{Count: len(values), Kind: verdict.BaselineInitializing}, nil
}

// RecentMetricValues returns the samples recorded for a metric since the
// given time, oldest first.
func (s *Store) RecentMetricValues(
	ctx context.Context,
	tableName, metricName string,
	since time.Time,
) ([]Sample, error) {
	query := `
		SELECT metric_value, timestamp FROM metric_history
		WHERE table_name = ? AND metric_name = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.DB.QueryContext(ctx, query, tableName, metricName, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var samples []Sample

	for rows.Next() {
		var (
			value  float64
			rawTS  string
			sample Sample
		)

		if err := rows.Scan(&value, &rawTS); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
		}

		sample.Value = value

		sample.Timestamp, err = time.Parse(timeFormat, rawTS)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q: %w", ErrBaselineQueryFailed, rawTS, err)
		}

		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	return samples, nil
}

// RecentRuns returns the latest run records for a table, newest first.
func (s *Store) RecentRuns(ctx context.Context, tableName string, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, timestamp, table_name, file_hash, row_count, status,
		       quality_score, anomaly_count, z_score_max, duration_ms, reason, violations
		FROM run_history
		WHERE table_name = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.conn.DB.QueryContext(ctx, query, tableName, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []RunRecord

	for rows.Next() {
		rec, err := scanRunRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	return records, nil
}

// Learn records the run's metrics and refreshes the learned thresholds for
// the table. The whole sequence holds the table's lock so concurrent batch
// workers never interleave a refresh.
func (s *Store) Learn(
	ctx context.Context,
	runID, tableName string,
	ts time.Time,
	metrics map[string]float64,
) error {
	lock := s.tableLock(tableName)
	lock.Lock()
	defer lock.Unlock()

	if err := s.RecordMetrics(ctx, runID, tableName, ts, metrics); err != nil {
		return err
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}

	sort.Strings(names)

	recent := `
		SELECT metric_value FROM metric_history
		WHERE table_name = ? AND metric_name = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	thresholds := make([]Threshold, 0, len(names))

	for _, name := range names {
		values, err := s.queryValues(ctx, recent, tableName, name, baselineWindow)
		if err != nil {
			return err
		}

		// A single observation has no spread to learn from.
		if len(values) < 2 {
			continue
		}

		mean, std := stat.MeanStdDev(values, nil)

		thresholds = append(thresholds, Threshold{
			MetricName:  name,
			Mean:        mean,
			Std:         std,
			LowerBound:  mean - thresholdSigma*std,
			UpperBound:  mean + thresholdSigma*std,
			SampleCount: len(values),
		})
	}

	if len(thresholds) == 0 {
		return nil
	}

	if err := s.RefreshThresholds(ctx, tableName, thresholds); err != nil {
		return err
	}

	s.logger.Info("Baseline learned",
		"run_id", runID,
		"table_name", tableName,
		"metrics", len(metrics),
		"thresholds", len(thresholds),
	)

	return nil
}

// RefreshThresholds replaces the learned thresholds for a table using
// delete-then-insert inside one transaction.
func (s *Store) RefreshThresholds(ctx context.Context, tableName string, thresholds []Threshold) error {
	tx, err := s.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrThresholdRefreshFailed, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM learned_thresholds WHERE table_name = ?`, tableName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrThresholdRefreshFailed, err)
	}

	insert := `
		INSERT INTO learned_thresholds (
			table_name, metric_name, mean, std, lower_bound, upper_bound, sample_count, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := formatTime(time.Now())

	for _, th := range thresholds {
		_, err = tx.ExecContext(ctx, insert,
			tableName, th.MetricName, th.Mean, th.Std,
			th.LowerBound, th.UpperBound, th.SampleCount, now,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrThresholdRefreshFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrThresholdRefreshFailed, err)
	}

	return nil
}

// LearnedThresholds returns the current thresholds for a table keyed by
// metric name.
func (s *Store) LearnedThresholds(ctx context.Context, tableName string) (map[string]Threshold, error) {
	query := `
		SELECT metric_name, mean, std, lower_bound, upper_bound, sample_count
		FROM learned_thresholds
		WHERE table_name = ?
	`

	rows, err := s.conn.DB.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	thresholds := make(map[string]Threshold)

	for rows.Next() {
		var th Threshold

		err := rows.Scan(&th.MetricName, &th.Mean, &th.Std, &th.LowerBound, &th.UpperBound, &th.SampleCount)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
		}

		thresholds[th.MetricName] = th
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	return thresholds, nil
}

// UpsertDataset inserts or updates a registry entry. Empty or nil fields in
// the entry never overwrite existing registry state, and scan_count
// increments on every upsert.
func (s *Store) UpsertDataset(ctx context.Context, entry *DatasetEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrRegistryUpsertFailed)
	}

	if entry.TableName == "" {
		return fmt.Errorf("%w: %w", ErrRegistryUpsertFailed, ErrTableNameEmpty)
	}

	query := `
		INSERT INTO dataset_registry (
			table_name, contract_path, lifecycle, criticality,
			last_scanned, last_status, last_file_mtime, scan_count
		) VALUES (
			?, ?,
			COALESCE(NULLIF(?, ''), 'active'),
			COALESCE(NULLIF(?, ''), 'LOW'),
			?, NULLIF(?, ''), ?, 1
		)
		ON CONFLICT (table_name) DO UPDATE SET
			contract_path   = COALESCE(NULLIF(excluded.contract_path, ''), dataset_registry.contract_path),
			lifecycle       = COALESCE(NULLIF(excluded.lifecycle, ''), dataset_registry.lifecycle),
			criticality     = COALESCE(NULLIF(excluded.criticality, ''), dataset_registry.criticality),
			last_scanned    = COALESCE(excluded.last_scanned, dataset_registry.last_scanned),
			last_status     = COALESCE(NULLIF(excluded.last_status, ''), dataset_registry.last_status),
			last_file_mtime = COALESCE(excluded.last_file_mtime, dataset_registry.last_file_mtime),
			scan_count      = dataset_registry.scan_count + 1
	`

	_, err := s.conn.DB.ExecContext(ctx, query,
		entry.TableName,
		entry.ContractPath,
		entry.Lifecycle,
		string(entry.Criticality),
		nullableTime(entry.LastScanned),
		string(entry.LastStatus),
		nullableTime(entry.LastFileMtime),
	)
	if err != nil {
		s.logger.Error("Dataset registry upsert failed",
			"error", err,
			"table_name", entry.TableName,
		)

		return fmt.Errorf("%w: %w", ErrRegistryUpsertFailed, err)
	}

	return nil
}

// Dataset returns the registry entry for a table.
func (s *Store) Dataset(ctx context.Context, tableName string) (*DatasetEntry, error) {
	query := `
		SELECT table_name, contract_path, lifecycle, criticality,
		       last_scanned, last_status, last_file_mtime, scan_count
		FROM dataset_registry
		WHERE table_name = ?
	`

	entry, err := scanDatasetEntry(s.conn.DB.QueryRowContext(ctx, query, tableName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, tableName)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	return entry, nil
}

// ListDatasets returns all registry entries ordered by table name.
func (s *Store) ListDatasets(ctx context.Context) ([]DatasetEntry, error) {
	query := `
		SELECT table_name, contract_path, lifecycle, criticality,
		       last_scanned, last_status, last_file_mtime, scan_count
		FROM dataset_registry
		ORDER BY table_name
	`

	rows, err := s.conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []DatasetEntry

	for rows.Next() {
		entry, err := scanDatasetEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
		}

		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	return entries, nil
}

// tableLock returns the mutex serializing learning for one table,
// creating it on first use.
func (s *Store) tableLock(tableName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.tableLocks[tableName]
	if !ok {
		lock = &sync.Mutex{}
		s.tableLocks[tableName] = lock
	}

	return lock
}

// queryValues runs a single-column float query and returns the values.
func (s *Store) queryValues(ctx context.Context, query string, args ...any) ([]float64, error) {
	rows, err := s.conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var values []float64

	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
		}

		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	return values, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// scanRunRecord reads one run_history row.
func scanRunRecord(row scanner) (*RunRecord, error) {
	var (
		rec        RunRecord
		rawTS      string
		status     string
		quality    sql.NullFloat64
		zScoreMax  sql.NullFloat64
		reason     sql.NullString
		violations sql.NullString
	)

	err := row.Scan(
		&rec.RunID, &rawTS, &rec.TableName, &rec.FileHash, &rec.RowCount, &status,
		&quality, &rec.AnomalyCount, &zScoreMax, &rec.DurationMS, &reason, &violations,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaselineQueryFailed, err)
	}

	rec.Timestamp, err = time.Parse(timeFormat, rawTS)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q: %w", ErrBaselineQueryFailed, rawTS, err)
	}

	rec.Status = verdict.Status(status)
	rec.Reason = reason.String

	if quality.Valid {
		rec.QualityScore = &quality.Float64
	}

	if zScoreMax.Valid {
		rec.ZScoreMax = &zScoreMax.Float64
	}

	if violations.Valid && violations.String != "" {
		if err := json.Unmarshal([]byte(violations.String), &rec.Violations); err != nil {
			return nil, fmt.Errorf("%w: bad violations payload: %w", ErrBaselineQueryFailed, err)
		}
	}

	return &rec, nil
}

// scanDatasetEntry reads one dataset_registry row.
func scanDatasetEntry(row scanner) (*DatasetEntry, error) {
	var (
		entry       DatasetEntry
		criticality string
		lastScanned sql.NullString
		lastStatus  sql.NullString
		lastMtime   sql.NullString
	)

	err := row.Scan(
		&entry.TableName, &entry.ContractPath, &entry.Lifecycle, &criticality,
		&lastScanned, &lastStatus, &lastMtime, &entry.ScanCount,
	)
	if err != nil {
		return nil, err
	}

	entry.Criticality = verdict.Criticality(criticality)
	entry.LastStatus = verdict.Status(lastStatus.String)

	entry.LastScanned, err = parseNullableTime(lastScanned)
	if err != nil {
		return nil, err
	}

	entry.LastFileMtime, err = parseNullableTime(lastMtime)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// newStats computes a baseline from historical values.
func newStats(values []float64, kind verdict.BaselineKind) Stats {
	mean, std := stat.MeanStdDev(values, nil)

	return Stats{
		Mean:  mean,
		Std:   std,
		Count: len(values),
		Kind:  kind,
	}
}

// mondayWeekday converts Go's Sunday-indexed weekday to the stored
// convention (0=Monday .. 6=Sunday).
func mondayWeekday(t time.Time) int {
	return (int(t.UTC().Weekday()) + 6) % 7
}

// formatTime renders a timestamp in the stored layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseNullableTime converts a nullable stored registry timestamp. The
// nanosecond layout also parses whole-second values from older rows.
func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil //nolint:nilnil
	}

	t, err := time.Parse(registryTimeFormat, v.String)
	if err != nil {
		return nil, fmt.Errorf("bad timestamp %q: %w", v.String, err)
	}

	return &t, nil
}

// nullableTime returns a SQL NULL for nil timestamps.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: t.UTC().Format(registryTimeFormat), Valid: true}
}

// nullableFloat returns a SQL NULL for nil floats.
func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *v, Valid: true}
}

// nullableString returns a SQL NULL for empty strings.
func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: v, Valid: true}
}

// marshalViolations serializes violations, returning SQL NULL when empty.
func marshalViolations(violations []verdict.Violation) (sql.NullString, error) {
	if len(violations) == 0 {
		return sql.NullString{}, nil
	}

	payload, err := json.Marshal(violations)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(payload), Valid: true}, nil
}
