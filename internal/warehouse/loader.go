// Package warehouse hands validated data off to the analytical store.
// The handoff runs only after a passing verdict, so a loader never sees
// data that failed the gate. Infrastructure faults are distinguished
// from load faults: an unreachable warehouse must not flip a clean
// quality verdict to FAIL.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/tabular"
)

// Sentinel errors for warehouse load operations.
var (
	// ErrLoadFailed is returned when the bulk load itself fails.
	ErrLoadFailed = errors.New("warehouse load failed")

	// ErrInfraTransient is returned when the warehouse cannot be reached.
	// Callers downgrade the run instead of failing it on this class.
	ErrInfraTransient = errors.New("warehouse infrastructure unreachable")
)

// Compile-time interface assertions.
var (
	_ Loader = (*PostgresLoader)(nil)
	_ Loader = (*NopLoader)(nil)
)

type (
	// Loader moves an approved table into the warehouse.
	Loader interface {
		Load(ctx context.Context, table *tabular.Table, tableName string) (LoadResult, error)
	}

	// LoadResult describes one completed handoff.
	LoadResult struct {
		// Label tags the load for traceability, "load_<uuid>".
		Label string `json:"label"`

		// TableName is the warehouse table written to.
		TableName string `json:"table_name"`

		// RowsLoaded is the number of rows copied.
		RowsLoaded int `json:"rows_loaded"`
	}

	// PostgresLoader bulk-loads tables over a single COPY per run,
	// wrapped in a transaction so partial loads never become visible.
	PostgresLoader struct {
		db     *sql.DB
		logger *slog.Logger
	}

	// NopLoader reports success without touching any warehouse. It is
	// the default: promotion to staging already is the handoff boundary.
	NopLoader struct {
		logger *slog.Logger
	}

	// Option configures a loader.
	Option func(*PostgresLoader)
)

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *PostgresLoader) {
		l.logger = logger
	}
}

// NewLoader builds the loader the config calls for: a PostgresLoader
// when the handoff is enabled, a NopLoader otherwise.
func NewLoader(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil || !cfg.Enabled {
		return NewNopLoader(), nil
	}

	return NewPostgresLoader(cfg, opts...)
}

// NewPostgresLoader opens a pooled connection to the warehouse. Opening
// never dials; an unreachable warehouse surfaces on the first Load.
func NewPostgresLoader(cfg *Config, opts ...Option) (*PostgresLoader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.warehouseURL)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	loader := &PostgresLoader{
		db: db,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(loader)
	}

	loader.logger.Info("Warehouse loader ready",
		slog.String("url", cfg.MaskURL()))

	return loader, nil
}

// Load copies every row of the table into the warehouse table of the
// same name inside one transaction.
func (l *PostgresLoader) Load(ctx context.Context, table *tabular.Table, tableName string) (LoadResult, error) {
	if table == nil || table.NumCols() == 0 {
		return LoadResult{}, fmt.Errorf("%w: nothing to load", ErrLoadFailed)
	}

	label := newLoadLabel()

	// Separate reachability from load errors: a dead warehouse is an
	// infrastructure fault, not a data fault.
	if err := l.db.PingContext(ctx); err != nil {
		return LoadResult{}, fmt.Errorf("%w: %w", ErrInfraTransient, err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: failed to begin transaction: %w", ErrLoadFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(tableName, table.Names()...))
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: preparing bulk copy: %w", ErrLoadFailed, err)
	}

	columns := table.Columns()

	for i := 0; i < table.NumRows(); i++ {
		row := make([]any, len(columns))
		for j, column := range columns {
			row[j] = column.Value(i)
		}

		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()

			return LoadResult{}, fmt.Errorf("%w: copying row %d: %w", ErrLoadFailed, i, err)
		}
	}

	// A final Exec with no arguments flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()

		return LoadResult{}, fmt.Errorf("%w: flushing bulk copy: %w", ErrLoadFailed, err)
	}

	if err := stmt.Close(); err != nil {
		return LoadResult{}, fmt.Errorf("%w: closing bulk copy: %w", ErrLoadFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return LoadResult{}, fmt.Errorf("%w: committing load: %w", ErrLoadFailed, err)
	}

	result := LoadResult{
		Label:      label,
		TableName:  tableName,
		RowsLoaded: table.NumRows(),
	}

	l.logger.Info("Warehouse load committed",
		slog.String("label", result.Label),
		slog.String("table_name", result.TableName),
		slog.Int("rows_loaded", result.RowsLoaded))

	return result, nil
}

// Close releases the connection pool.
func (l *PostgresLoader) Close() error {
	return l.db.Close()
}

// NewNopLoader creates a loader that acknowledges without loading.
func NewNopLoader() *NopLoader {
	return &NopLoader{
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Load reports success without I/O.
func (l *NopLoader) Load(_ context.Context, table *tabular.Table, tableName string) (LoadResult, error) {
	rows := 0
	if table != nil {
		rows = table.NumRows()
	}

	result := LoadResult{
		Label:      newLoadLabel(),
		TableName:  tableName,
		RowsLoaded: rows,
	}

	l.logger.Info("Warehouse load skipped, loader disabled",
		slog.String("label", result.Label),
		slog.String("table_name", result.TableName),
		slog.Int("rows_loaded", result.RowsLoaded))

	return result, nil
}

func newLoadLabel() string {
	return "load_" + uuid.New().String()
}
