package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/quality"
	"github.com/datawarden-io/datawarden/internal/verdict"
	"github.com/datawarden-io/datawarden/internal/warehouse"
)

// emit is the single terminal stage. It fixes the status, feeds the
// learning store, moves the file, hands promoted data to the warehouse,
// and persists the run before routing alerts.
//
// Cancelled runs short-circuit: a run that was told to stop must not
// learn, move files, or write history.
func (o *Orchestrator) emit(ctx context.Context, r *run) stateFn {
	report := r.report

	if r.cancelled {
		report.Status = verdict.StatusFail
		report.HealthIndicator = quality.FailureHealth(report.CriticalErrors)
		report.SetExecutionTime(o.now().UTC().Sub(r.started))
		o.logger.Warn("Run cancelled",
			slog.String("run_id", r.runID),
			slog.String("table", r.table))

		return nil
	}

	report.Status = composeStatus(report)
	if r.draft != nil {
		report.Status = verdict.StatusContractMissing
	}

	if r.composed && r.metrics != nil {
		o.learn(ctx, r)
	}

	if o.actuate(r) {
		o.handoff(ctx, r)
	}

	o.finalize(r)
	o.persist(ctx, r)
	o.writeReport(r)
	o.alerts.Route(ctx, report, r.impact.OverallCriticality, o.ownerOf(r))

	o.logger.Info("Run complete",
		slog.String("run_id", r.runID),
		slog.String("table", r.table),
		slog.String("status", string(report.Status)),
		slog.String("duration", report.ExecutionTime))

	return nil
}

// learn appends this run's metrics to the table's baseline. Runs that
// never composed a verdict carry no trustworthy metrics and are excluded
// by the caller, so a schema-rejected batch cannot poison the baseline.
func (o *Orchestrator) learn(ctx context.Context, r *run) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Store)
	defer cancel()

	if err := o.baselines.Learn(sctx, r.runID, r.table, r.started, r.metrics); err != nil {
		o.logger.Warn("Baseline learning failed, run proceeds",
			slog.String("table", r.table),
			slog.String("error", err.Error()))
	}
}

// actuate moves the evaluated file to where its verdict says it belongs
// and reports whether it was promoted. A failed move is fatal for the
// run: the verdict flips to FAIL so nobody mistakes an unmoved file for
// a promoted one.
func (o *Orchestrator) actuate(r *run) bool {
	report := r.report

	switch report.Status {
	case verdict.StatusPass, verdict.StatusPassWithWarnings:
		dest, err := o.actuator.Promote(r.path, report)
		if err != nil {
			report.AddViolation(verdict.Critical(verdict.KindInternal, "",
				fmt.Sprintf("File promotion failed: %v", err)))
			report.Status = verdict.StatusFail
			o.logger.Error("File promotion failed",
				slog.String("file", r.path),
				slog.String("error", err.Error()))

			return false
		}

		o.logger.Info("File promoted",
			slog.String("from", r.path),
			slog.String("to", dest))

		return true
	case verdict.StatusFail:
		if _, err := os.Stat(r.path); err != nil {
			return false
		}

		dest, err := o.actuator.Quarantine(r.path, report)
		if err != nil {
			report.AddViolation(verdict.Critical(verdict.KindInternal, "",
				fmt.Sprintf("File quarantine failed: %v", err)))
			o.logger.Error("File quarantine failed",
				slog.String("file", r.path),
				slog.String("error", err.Error()))

			return false
		}

		o.logger.Info("File quarantined",
			slog.String("from", r.path),
			slog.String("to", dest))

		return false
	default:
		// CONTRACT_MISSING leaves the file in place for the operator.
		return false
	}
}

// handoff forwards a promoted table to the analytical warehouse. An
// unreachable warehouse never fails a clean run; it downgrades it so
// the gap is visible without blocking the data.
func (o *Orchestrator) handoff(ctx context.Context, r *run) {
	if o.warehouse == nil || r.data == nil {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Load)
	result, err := o.warehouse.Load(wctx, r.data, r.table)
	cancel()

	switch {
	case err == nil:
		o.logger.Info("Warehouse handoff complete",
			slog.String("table", r.table),
			slog.String("label", result.Label),
			slog.Int("rows_loaded", result.RowsLoaded))
	case errors.Is(err, warehouse.ErrInfraTransient):
		r.report.AddViolation(verdict.Warning(verdict.KindInfraTransient, "",
			"Warehouse infrastructure unreachable, load skipped"))
		r.report.Status = verdict.StatusPassWithWarnings
		o.logger.Warn("Warehouse unreachable, verdict downgraded",
			slog.String("table", r.table),
			slog.String("error", err.Error()))
	default:
		r.report.AddViolation(verdict.Warning(verdict.KindInternal, "",
			fmt.Sprintf("Warehouse load failed: %v", err)))
		r.report.Status = verdict.StatusPassWithWarnings
		o.logger.Warn("Warehouse load failed, verdict downgraded",
			slog.String("table", r.table),
			slog.String("error", err.Error()))
	}
}

// finalize fills the consumer-facing summary blocks and the wall-clock
// duration once the status can no longer change.
func (o *Orchestrator) finalize(r *run) {
	report := r.report

	switch {
	case r.draft != nil:
		// Ungoverned data gets a draft, not a health verdict.
	case report.Status == verdict.StatusFail && r.prof == nil:
		report.HealthIndicator = quality.FailureHealth(report.CriticalErrors)
	default:
		report.HealthIndicator = quality.Indicate(
			report.QualityMetrics, report.Status, report.Warnings, report.CriticalErrors)
	}

	downstream := o.lineage.TransitiveConsumerCount(r.table)
	report.TablePriority = o.catalog.Prioritize(r.table, downstream)
	report.SetExecutionTime(o.now().UTC().Sub(r.started))
}

// persist writes the run record and registry entry. Store failures are
// logged and absorbed: history is an aid, not a gate.
func (o *Orchestrator) persist(ctx context.Context, r *run) {
	report := r.report

	rec := &baseline.RunRecord{
		RunID:      r.runID,
		Timestamp:  r.started,
		TableName:  r.table,
		RowCount:   int64(r.rows),
		Status:     report.Status,
		Reason:     runReason(report),
		Violations: report.Violations,
		DurationMS: o.now().UTC().Sub(r.started).Milliseconds(),
	}

	if r.meta != nil {
		rec.FileHash = r.meta.Hash
	}

	if report.QualityMetrics != nil {
		score := report.QualityMetrics.OverallScore
		rec.QualityScore = &score
	}

	if r.assessment != nil {
		rec.AnomalyCount = r.assessment.AnomalyCount()
		rec.ZScoreMax = r.assessment.MaxAbsZ()
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Store)
	if err := o.baselines.RecordRun(sctx, rec); err != nil {
		o.logger.Warn("Run history write failed, run proceeds",
			slog.String("run_id", r.runID),
			slog.String("error", err.Error()))
	}
	cancel()

	started := r.started
	entry := &baseline.DatasetEntry{
		TableName:     r.table,
		Criticality:   r.impact.OverallCriticality,
		LastScanned:   &started,
		LastStatus:    report.Status,
		LastFileMtime: r.mtime,
	}

	if r.located != nil {
		entry.ContractPath = r.located.Path
	}

	if r.doc != nil {
		entry.Lifecycle = r.doc.Info.Lifecycle
	}

	rctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Store)
	if err := o.baselines.UpsertDataset(rctx, entry); err != nil {
		o.logger.Warn("Dataset registry update failed, run proceeds",
			slog.String("table", r.table),
			slog.String("error", err.Error()))
	}
	cancel()
}

// writeReport serializes the verdict document into the reports directory.
func (o *Orchestrator) writeReport(r *run) {
	payload, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		o.logger.Error("Report serialization failed",
			slog.String("run_id", r.runID),
			slog.String("error", err.Error()))

		return
	}

	path := filepath.Join(o.cfg.ReportsDir, verdict.ReportFileName(r.started))
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		o.logger.Warn("Report write failed",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return
	}

	o.logger.Debug("Report written", slog.String("path", path))
}

// ownerOf resolves who gets paged: the catalog wins over the contract
// because operational ownership moves faster than contract revisions.
func (o *Orchestrator) ownerOf(r *run) string {
	if entry, ok := o.catalog.Entry(r.table); ok && entry.Owner != "" {
		return entry.Owner
	}

	if r.doc != nil {
		return r.doc.Info.Owner
	}

	if r.draft != nil {
		return r.draft.Info.Owner
	}

	return ""
}

// runReason picks the one-line explanation stored with the run record.
func runReason(report *verdict.Report) string {
	switch {
	case len(report.CriticalErrors) > 0:
		return report.CriticalErrors[0]
	case len(report.Warnings) > 0:
		return report.Warnings[0]
	default:
		return ""
	}
}
