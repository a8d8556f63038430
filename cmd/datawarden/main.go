// Package main provides the datawarden data-reliability gatekeeper CLI.
//
// Datawarden sits between file-based data deliveries and the warehouse: it
// evaluates each delivery against its contract, statistical baseline, and
// referential neighbors, then promotes, quarantines, or flags the file and
// emits a machine-readable verdict report.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/pipeline"
)

// Build-time version information.
// These variables are set at build time using -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Global flags shared by every subcommand. Environment variables provide
// the defaults; an explicit flag always wins.
var (
	contractsDir  string
	dataDir       string
	stagingDir    string
	quarantineDir string
	reportsDir    string
	baselineDB    string
	lineagePath   string
	alertsPath    string
	catalogPath   string
)

var rootCmd = &cobra.Command{
	Use:   "datawarden",
	Short: "Contract-driven quality gate for file-based data deliveries",
	Long: `datawarden evaluates data files against YAML contracts before anything
downstream can read them.

Each run probes freshness and duplicate delivery, validates the schema,
verifies referential integrity against neighboring datasets, profiles every
column, and compares volume and distribution metrics to a learned baseline.
Approved files are promoted to staging (and optionally bulk-loaded into the
warehouse); blocked files are quarantined with an error sidecar. Every run
emits a JSON verdict report and, when routing is configured, an alert.

Tables without a contract are not rejected: the gatekeeper profiles the
file and drafts a contract for review instead.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("datawarden v%s\n", Version)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Build Time: %s\n", BuildTime)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&contractsDir, "contracts",
		config.GetEnvStr("DATAWARDEN_CONTRACTS_DIR", "contracts"),
		"directory holding contract YAML files")
	flags.StringVar(&dataDir, "data",
		config.GetEnvStr("DATAWARDEN_DATA_DIR", pipeline.DefaultDataDir),
		"landing directory scanned for deliveries")
	flags.StringVar(&stagingDir, "staging",
		config.GetEnvStr("DATAWARDEN_STAGING_DIR", "data/staging"),
		"directory approved files are promoted to")
	flags.StringVar(&quarantineDir, "quarantine",
		config.GetEnvStr("DATAWARDEN_QUARANTINE_DIR", "data/quarantine"),
		"directory blocked files are moved to")
	flags.StringVar(&reportsDir, "reports",
		config.GetEnvStr("DATAWARDEN_REPORTS_DIR", pipeline.DefaultReportsDir),
		"directory verdict reports are written to")
	flags.StringVar(&baselineDB, "baseline-db",
		config.GetEnvStr("DATAWARDEN_BASELINE_DB", "baseline.db"),
		"path of the SQLite baseline database")
	flags.StringVar(&lineagePath, "lineage",
		config.GetEnvStr("DATAWARDEN_LINEAGE_PATH", "lineage.yaml"),
		"lineage graph YAML; optional, absence means no downstream consumers")
	flags.StringVar(&alertsPath, "alerts",
		config.GetEnvStr("DATAWARDEN_ALERTS_PATH", "alerts.yaml"),
		"alert routing YAML; optional, absence disables alerting")
	flags.StringVar(&catalogPath, "catalog",
		config.GetEnvStr("DATAWARDEN_CATALOG_PATH", "catalog.yaml"),
		"table catalog YAML; optional, absence ranks tables UNKNOWN")

	rootCmd.AddCommand(runCmd, runAllCmd, inspectCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
