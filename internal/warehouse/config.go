package warehouse

import (
	"errors"
	"strings"
	"time"

	"github.com/datawarden-io/datawarden/internal/config"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// ErrWarehouseURLEmpty is returned when the loader is enabled without a
// connection URL.
var ErrWarehouseURLEmpty = errors.New("warehouse URL cannot be empty")

// Config holds warehouse connection configuration. The loader is off by
// default: promotion to staging is the handoff boundary, and the bulk
// load is opt-in for deployments that want the gatekeeper to finish the
// job.
type Config struct {
	warehouseURL    string
	Enabled         bool
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of connections
	ConnMaxIdleTime time.Duration // Maximum idle time for connections
}

// LoadConfig loads warehouse configuration from environment variables
// with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		warehouseURL:    config.GetEnvStr("DATAWARDEN_WAREHOUSE_URL", ""), // URL is private, it may carry credentials.
		Enabled:         config.GetEnvBool("DATAWARDEN_WAREHOUSE_ENABLED", false),
		MaxOpenConns:    config.GetEnvInt("DATAWARDEN_WAREHOUSE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATAWARDEN_WAREHOUSE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATAWARDEN_WAREHOUSE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATAWARDEN_WAREHOUSE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// NewConfig builds a config for a fixed URL, bypassing the environment.
func NewConfig(warehouseURL string) *Config {
	return &Config{
		warehouseURL:    warehouseURL,
		Enabled:         true,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

// Validate checks if the warehouse configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.warehouseURL) == "" {
		return ErrWarehouseURLEmpty
	}

	return nil
}

// MaskURL returns a masked warehouse URL safe for logging.
func (c *Config) MaskURL() string {
	if c.warehouseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(c.warehouseURL, "://")
	if schemeEnd == -1 {
		return c.warehouseURL
	}

	afterScheme := c.warehouseURL[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		// No @ found, no userinfo
		return c.warehouseURL
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		// No password
		return c.warehouseURL
	}

	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		// Empty password, don't mask
		return c.warehouseURL
	}

	scheme := c.warehouseURL[:schemeEnd]
	hostAndRest := afterScheme[lastAtIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}
