package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// mtimeEpsilon is the slack allowed when comparing a file's mtime to the
// timestamp recorded at the last scan. Copies across filesystems can
// truncate mtimes slightly without the content having changed.
const mtimeEpsilon = 10 * time.Millisecond

// BatchSummary aggregates one directory sweep. Reports are ordered by
// table name regardless of completion order.
type BatchSummary struct {
	Passed    int
	Warnings  int
	Failed    int
	Skipped   int
	Unchanged int

	Reports []*verdict.Report

	// Diagnostics lists contract files that failed to parse. They never
	// abort the sweep; the sibling contracts still run.
	Diagnostics []contract.Diagnostic
}

// Total is the number of evaluated targets.
func (s *BatchSummary) Total() int {
	return s.Passed + s.Warnings + s.Failed + s.Skipped + s.Unchanged
}

// AllPassed reports whether no run failed. Skipped and unchanged targets
// do not count against the batch.
func (s *BatchSummary) AllPassed() bool { return s.Failed == 0 }

func (s *BatchSummary) tally(status verdict.Status) {
	switch status {
	case verdict.StatusPass:
		s.Passed++
	case verdict.StatusPassWithWarnings, verdict.StatusContractMissing:
		s.Warnings++
	case verdict.StatusSkipped:
		s.Skipped++
	case verdict.StatusUnchanged:
		s.Unchanged++
	default:
		s.Failed++
	}
}

// RunAll evaluates every contracted table against the landing zone.
// Discovery is contract-driven: a table with no data file yields a
// SKIPPED report rather than an error, and with skipUnchanged set,
// files whose mtime matches the registry are not reopened.
//
// The only error RunAll returns is a failed contract directory read;
// every per-table failure is folded into that table's report.
func (o *Orchestrator) RunAll(ctx context.Context, skipUnchanged bool) (*BatchSummary, error) {
	located, diagnostics, err := o.contracts.List()
	if err != nil {
		return nil, fmt.Errorf("discover contracts: %w", err)
	}

	for _, d := range diagnostics {
		o.logger.Warn("Contract skipped, parse failure",
			slog.String("path", d.Path),
			slog.String("error", d.Err.Error()))
	}

	type target struct {
		table string
		path  string
	}

	seen := make(map[string]bool, len(located))
	targets := make([]target, 0, len(located))

	for i := range located {
		table := located[i].Document.TableName
		if seen[table] {
			o.logger.Warn("Duplicate contract for table, first one wins",
				slog.String("table", table),
				slog.String("path", located[i].Path))

			continue
		}

		seen[table] = true
		targets = append(targets, target{table: table, path: o.findDataFile(table)})
	}

	o.logger.Info("Batch started",
		slog.Int("tables", len(targets)),
		slog.Int("parallelism", o.cfg.Parallelism),
		slog.Bool("skip_unchanged", skipUnchanged))

	var (
		mu      sync.Mutex
		reports = make([]*verdict.Report, 0, len(targets))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	for _, tgt := range targets {
		g.Go(func() error {
			var report *verdict.Report

			switch {
			case tgt.path == "":
				report = o.skippedReport(tgt.table)
			case skipUnchanged && o.unchanged(gctx, tgt.table, tgt.path):
				report = o.unchangedReport(tgt.table, tgt.path)
			default:
				report = o.Run(gctx, tgt.path, tgt.table)
			}

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()

			return nil
		})
	}

	// Workers fold failures into their reports and never return errors.
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].TableName < reports[j].TableName
	})

	summary := &BatchSummary{Reports: reports, Diagnostics: diagnostics}
	for _, rep := range reports {
		summary.tally(rep.Status)
	}

	o.logger.Info("Batch complete",
		slog.Int("total", summary.Total()),
		slog.Int("passed", summary.Passed),
		slog.Int("warnings", summary.Warnings),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("unchanged", summary.Unchanged))

	return summary, nil
}

// findDataFile resolves the landing-zone file for a table, trying the
// supported formats in preference order.
func (o *Orchestrator) findDataFile(table string) string {
	for _, ext := range dataExtensions {
		path := filepath.Join(o.cfg.DataDir, table+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// unchanged reports whether the file's mtime matches the registry entry
// from the last scan, meaning the file need not be reopened. Any doubt
// (no entry, stat failure, registry unavailable) counts as changed.
func (o *Orchestrator) unchanged(ctx context.Context, table, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Store)
	defer cancel()

	entry, err := o.baselines.Dataset(sctx, table)
	if err != nil || entry.LastFileMtime == nil {
		return false
	}

	delta := info.ModTime().Sub(*entry.LastFileMtime)
	if delta < 0 {
		delta = -delta
	}

	return delta <= mtimeEpsilon
}

// skippedReport stands in for a contracted table with no landing file.
func (o *Orchestrator) skippedReport(table string) *verdict.Report {
	report := verdict.NewReport("", table, o.now().UTC())
	report.Status = verdict.StatusSkipped
	report.AddViolation(verdict.Warning(verdict.KindTimeliness, "",
		fmt.Sprintf("No data file for table '%s' in %s", table, o.cfg.DataDir)))
	report.SetExecutionTime(0)

	o.logger.Info("No data file for contracted table",
		slog.String("table", table))

	return report
}

// unchangedReport stands in for a file already judged at this mtime.
func (o *Orchestrator) unchangedReport(table, path string) *verdict.Report {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	report := verdict.NewReport(path, table, o.now().UTC())
	report.Status = verdict.StatusUnchanged
	report.SetExecutionTime(0)

	o.logger.Info("File unchanged since last scan",
		slog.String("table", table),
		slog.String("file", path))

	return report
}
