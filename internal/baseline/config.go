package baseline

import (
	"errors"
	"strings"

	"github.com/datawarden-io/datawarden/internal/config"
)

const (
	// defaultDatabasePath keeps zero-config runs working out of the box.
	defaultDatabasePath = "baseline.db"

	// busyTimeoutMS is how long SQLite waits on a locked database before
	// failing. Batch runs share the file across goroutines.
	busyTimeoutMS = 5000

	// maxOpenConns serializes writers. SQLite allows one writer at a time;
	// a single pooled connection avoids SQLITE_BUSY churn under WAL.
	maxOpenConns = 1
)

// ErrDatabasePathEmpty is returned when the baseline database path is an empty string.
var ErrDatabasePathEmpty = errors.New("baseline database path cannot be empty")

// Config holds SQLite connection configuration for the baseline store.
type Config struct {
	// Path is the filesystem location of the baseline database file.
	Path string

	// MigrationTable is the name of the migration tracking table.
	MigrationTable string
}

// LoadConfig loads baseline store configuration from environment variables
// with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Path:           config.GetEnvStr("DATAWARDEN_BASELINE_DB", defaultDatabasePath),
		MigrationTable: config.GetEnvStr("DATAWARDEN_MIGRATION_TABLE", "schema_migrations"),
	}
}

// Validate checks if the baseline store configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return ErrDatabasePathEmpty
	}

	return nil
}
