package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/pipeline"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

var adoptDraft bool

var runCmd = &cobra.Command{
	Use:   "run <file> [table]",
	Short: "Evaluate one data file against its contract",
	Long: `Evaluates a single delivery through the full gatekeeping pipeline and
moves the file according to the verdict: PASS and PASS_WITH_WARNINGS promote
to staging, FAIL quarantines, CONTRACT_MISSING leaves the file in place and
drafts a contract for review.

The table name defaults to the file stem, so "run data/landing/users.csv"
evaluates the "users" table.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runOne,
}

var (
	skipUnchanged bool
	parallel      int
)

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Evaluate every contracted table against the landing directory",
	Long: `Discovers every contract, pairs each table with its data file in the
landing directory, and evaluates all pairs concurrently. Tables with no
delivery are reported as SKIPPED; with --skip-unchanged, files whose
modification time matches the last recorded scan are not re-evaluated.`,
	Args: cobra.NoArgs,
	RunE: runAll,
}

func init() {
	runCmd.Flags().BoolVar(&adoptDraft, "yes", false,
		"adopt the inferred draft when no contract exists and re-evaluate the delivery")
	runAllCmd.Flags().BoolVar(&skipUnchanged, "skip-unchanged", false,
		"skip files unmodified since the last recorded scan")
	runAllCmd.Flags().IntVar(&parallel, "parallel", 0,
		"concurrent table evaluations (default from environment)")
}

// errBlocked signals a non-promotable verdict through cobra's error path,
// turning it into a non-zero exit for schedulers and CI.
var errBlocked = errors.New("delivery was not promoted")

// tableFromPath derives the logical table name from the file stem, so
// "data/landing/users.csv" maps to "users".
func tableFromPath(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runOne(cmd *cobra.Command, args []string) error {
	path := args[0]

	table := tableFromPath(path)
	if len(args) == 2 {
		table = args[1]
	}

	orch, cleanup, err := buildOrchestrator(0)
	if err != nil {
		return err
	}
	defer cleanup()

	report := orch.Run(cmd.Context(), path, table)
	printVerdict(report)

	// Adopting the draft does not evaluate the delivery; re-run against
	// the new contract so the exit code reflects a real verdict.
	if report.Status == verdict.StatusContractMissing && adoptDraft {
		if err := adoptInferredContract(report); err != nil {
			return err
		}

		report = orch.Run(cmd.Context(), path, table)
		printVerdict(report)
	}

	switch report.Status {
	case verdict.StatusPass, verdict.StatusPassWithWarnings:
		return nil
	default:
		return errBlocked
	}
}

func runAll(cmd *cobra.Command, _ []string) error {
	orch, cleanup, err := buildOrchestrator(parallel)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := orch.RunAll(cmd.Context(), skipUnchanged)
	if err != nil {
		return err
	}

	printSummary(summary)

	if !summary.AllPassed() {
		return errors.New("one or more tables failed")
	}

	return nil
}

// adoptInferredContract promotes the run's draft into the contracts
// directory, making the table governed from the next delivery on.
func adoptInferredContract(report *verdict.Report) error {
	draft, ok := report.InferredContract.(*contract.Document)
	if !ok || draft == nil {
		return errors.New("no draft contract was generated")
	}

	store, err := contract.NewStore(contractsDir)
	if err != nil {
		return err
	}

	saved, err := store.SaveDraft(report.TableName, draft)
	if err != nil {
		return fmt.Errorf("adopt draft contract: %w", err)
	}

	fmt.Printf("\nAdopted draft contract: %s\n", saved)
	fmt.Println("Re-evaluating the delivery against the new contract...")

	return nil
}

func printVerdict(report *verdict.Report) {
	fmt.Printf("\nTable:    %s\n", report.TableName)

	if report.File != "" {
		fmt.Printf("File:     %s\n", report.File)
	}

	fmt.Printf("Status:   %s (%s)\n", report.Status, report.ExecutionTime)

	if m := report.QualityMetrics; m != nil {
		fmt.Printf("Quality:  %.1f (completeness %.1f, validity %.1f, uniqueness %.1f, freshness %.1f)\n",
			m.OverallScore, m.Completeness, m.Validity, m.Uniqueness, m.Freshness)
	}

	if h := report.HealthIndicator; h != nil {
		fmt.Printf("Health:   %s (safe to use: %t)\n", h.Badge, h.SafeToUse)
	}

	if p := report.TablePriority; p != nil {
		fmt.Printf("Priority: %s (score %.1f)\n", p.Tier, p.Score)
	}

	for _, msg := range report.CriticalErrors {
		fmt.Printf("  CRITICAL  %s\n", msg)
	}

	for _, msg := range report.Warnings {
		fmt.Printf("  WARNING   %s\n", msg)
	}

	if report.Status == verdict.StatusContractMissing {
		fmt.Printf("\nDraft contract written to %s\n",
			filepath.Join(reportsDir, report.TableName+"_contract_draft.yaml"))
		fmt.Println("Review it, then re-run with --yes to adopt it.")
	}
}

func printSummary(summary *pipeline.BatchSummary) {
	fmt.Printf("\n%-28s %-22s %s\n", "TABLE", "STATUS", "DETAIL")

	for _, report := range summary.Reports {
		detail := ""
		if len(report.CriticalErrors) > 0 {
			detail = report.CriticalErrors[0]
		} else if len(report.Warnings) > 0 {
			detail = report.Warnings[0]
		}

		fmt.Printf("%-28s %-22s %s\n", report.TableName, report.Status, detail)
	}

	fmt.Printf("\n%d evaluated: %d passed, %d with warnings, %d failed, %d skipped, %d unchanged\n",
		summary.Total(), summary.Passed, summary.Warnings,
		summary.Failed, summary.Skipped, summary.Unchanged)

	for _, diag := range summary.Diagnostics {
		fmt.Printf("PARSE ERROR  %s: %v\n", diag.Path, diag.Err)
	}
}
