package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/lineage"
	"github.com/datawarden-io/datawarden/internal/quality"
)

var inspectLimit int

var inspectCmd = &cobra.Command{
	Use:   "inspect <table>",
	Short: "Show registry entry, learned baselines, and recent runs for a table",
	Args:  cobra.ExactArgs(1),
	RunE:  inspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 10, "number of recent runs to show")
}

func inspect(cmd *cobra.Command, args []string) error {
	table := args[0]
	ctx := cmd.Context()

	baselineCfg := baseline.LoadConfig()
	baselineCfg.Path = baselineDB

	conn, err := baseline.NewConnection(baselineCfg)
	if err != nil {
		return fmt.Errorf("open baseline database: %w", err)
	}

	defer func() {
		_ = conn.Close()
	}()

	store, err := baseline.NewStore(conn)
	if err != nil {
		return err
	}

	entry, err := store.Dataset(ctx, table)

	switch {
	case errors.Is(err, baseline.ErrDatasetNotFound):
		fmt.Printf("Table %q has never been scanned.\n", table)

		return nil
	case err != nil:
		return err
	}

	fmt.Printf("Table:        %s\n", entry.TableName)
	fmt.Printf("Lifecycle:    %s\n", entry.Lifecycle)
	fmt.Printf("Criticality:  %s\n", entry.Criticality)
	fmt.Printf("Last status:  %s\n", entry.LastStatus)

	if entry.LastScanned != nil {
		fmt.Printf("Last scanned: %s\n", entry.LastScanned.Format(time.RFC3339))
	}

	fmt.Printf("Scan count:   %d\n", entry.ScanCount)

	if entry.ContractPath != "" {
		fmt.Printf("Contract:     %s\n", entry.ContractPath)
	}

	resolver, err := lineage.Load(lineagePath)
	if err != nil {
		return fmt.Errorf("load lineage graph: %w", err)
	}

	catalog, err := quality.LoadCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("load table catalog: %w", err)
	}

	priority := catalog.Prioritize(table, resolver.TransitiveConsumerCount(table))
	fmt.Printf("\nPriority:     %s (score %.1f), suggested cadence: %s\n",
		priority.Tier, priority.Score, quality.ScanCadence(priority.Tier))

	thresholds, err := store.LearnedThresholds(ctx, table)
	if err != nil {
		return err
	}

	if len(thresholds) > 0 {
		names := make([]string, 0, len(thresholds))
		for name := range thresholds {
			names = append(names, name)
		}

		sort.Strings(names)

		fmt.Printf("\nLearned baselines:\n")

		for _, name := range names {
			t := thresholds[name]
			fmt.Printf("  %-24s mean %.2f  std %.2f  bounds [%.2f, %.2f]  (%d samples)\n",
				t.MetricName, t.Mean, t.Std, t.LowerBound, t.UpperBound, t.SampleCount)
		}
	}

	runs, err := store.RecentRuns(ctx, table, inspectLimit)
	if err != nil {
		return err
	}

	if len(runs) > 0 {
		fmt.Printf("\nRecent runs:\n")

		for _, run := range runs {
			line := fmt.Sprintf("  %s  %-20s %7d rows  %6dms",
				run.Timestamp.Format(time.RFC3339), run.Status, run.RowCount, run.DurationMS)

			if run.QualityScore != nil {
				line += fmt.Sprintf("  score %.1f", *run.QualityScore)
			}

			if run.Reason != "" {
				line += "  " + run.Reason
			}

			fmt.Println(line)
		}
	}

	return nil
}
