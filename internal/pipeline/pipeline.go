// Package pipeline drives the gatekeeping run: an explicit state machine
// that takes one (file, table) pair from contract resolution through
// probing, loading, validation, profiling, and anomaly detection to a
// composed verdict, then actuates the file and routes alerts.
//
// Stage failures never unwind as errors. Every failure folds into the
// verdict document, so Run always returns a report and the caller decides
// what a FAIL means for its exit code.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datawarden-io/datawarden/internal/actuate"
	"github.com/datawarden-io/datawarden/internal/alert"
	"github.com/datawarden-io/datawarden/internal/anomaly"
	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/consistency"
	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/lineage"
	"github.com/datawarden-io/datawarden/internal/probe"
	"github.com/datawarden-io/datawarden/internal/profile"
	"github.com/datawarden-io/datawarden/internal/quality"
	"github.com/datawarden-io/datawarden/internal/remediate"
	"github.com/datawarden-io/datawarden/internal/schema"
	"github.com/datawarden-io/datawarden/internal/tabular"
	"github.com/datawarden-io/datawarden/internal/verdict"
	"github.com/datawarden-io/datawarden/internal/warehouse"
)

// Stage names recorded in the execution log. They are part of the verdict
// document's wire shape, so renames break downstream consumers.
const (
	StageLocateContract   = "LOCATE_CONTRACT"
	StageProbeMetadata    = "PROBE_METADATA"
	StageLoadData         = "LOAD_DATA"
	StageValidateSchema   = "VALIDATE_SCHEMA"
	StageCheckConsistency = "CHECK_CONSISTENCY"
	StageProfile          = "PROFILE"
	StageDetectAnomalies  = "DETECT_ANOMALIES"
	StageDetectSeasonal   = "DETECT_SEASONAL"
	StageComposeVerdict   = "COMPOSE_VERDICT"
	StageLoadForInference = "LOAD_FOR_INFERENCE"
	StageInferDraft       = "INFER_DRAFT"
)

const (
	// DefaultDataDir is the landing zone scanned for incoming files.
	DefaultDataDir = "data/landing"

	// DefaultReportsDir receives one verdict document per run.
	DefaultReportsDir = "reports"

	// DefaultParallelism bounds concurrent evaluations in batch runs.
	DefaultParallelism = 4

	// DefaultLoadTimeout bounds file parsing, the slowest stage.
	DefaultLoadTimeout = 60 * time.Second

	// DefaultValidatorTimeout bounds each analytical stage.
	DefaultValidatorTimeout = 10 * time.Second

	// DefaultStoreTimeout bounds baseline reads and writes.
	DefaultStoreTimeout = 5 * time.Second

	// maxQuarantineRows caps the outlier row hints carried in a verdict.
	maxQuarantineRows = 100
)

var (
	// ErrNilContractStore is returned when New is given no contract store.
	ErrNilContractStore = errors.New("contract store is required")

	// ErrNilBaselineStore is returned when New is given no baseline store.
	ErrNilBaselineStore = errors.New("baseline store is required")

	// ErrNilActuator is returned when New is given no actuator.
	ErrNilActuator = errors.New("actuator is required")
)

type (
	// Config holds orchestrator tuning. Zero values fall back to defaults,
	// so a partially specified Config stays usable.
	Config struct {
		// DataDir is the landing zone scanned for incoming files.
		DataDir string

		// ReportsDir receives verdict documents and inferred contract drafts.
		ReportsDir string

		// FreshnessMaxAge applies when a contract sets no freshness rule.
		FreshnessMaxAge time.Duration

		// SamplingThresholdMB is the file size above which loads sample rows.
		SamplingThresholdMB int64

		// SampleRate is the fraction of rows kept when sampling.
		SampleRate float64

		// Parallelism bounds concurrent evaluations in batch runs.
		Parallelism int

		// Limits are the global anomaly and quality-score cutoffs applied
		// where a contract does not override them.
		Limits contract.Limits

		// Timeouts bound each pipeline stage.
		Timeouts Timeouts
	}

	// Timeouts are the per-stage deadlines. No stage runs unbounded.
	Timeouts struct {
		// Load bounds file parsing and warehouse handoff.
		Load time.Duration

		// Validator bounds each analytical stage.
		Validator time.Duration

		// Store bounds baseline reads and writes.
		Store time.Duration
	}
)

// LoadConfig loads orchestrator configuration from environment variables
// with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		DataDir:             config.GetEnvStr("DATAWARDEN_DATA_DIR", DefaultDataDir),
		ReportsDir:          config.GetEnvStr("DATAWARDEN_REPORTS_DIR", DefaultReportsDir),
		FreshnessMaxAge:     config.GetEnvDuration("DATAWARDEN_FRESHNESS_MAX_AGE", probe.DefaultFreshnessLimit),
		SamplingThresholdMB: config.GetEnvInt64("DATAWARDEN_SAMPLING_THRESHOLD_MB", tabular.DefaultSamplingThresholdMB),
		SampleRate:          config.GetEnvFloat("DATAWARDEN_SAMPLE_RATE", tabular.DefaultSampleRate),
		Parallelism:         config.GetEnvInt("DATAWARDEN_PARALLELISM", DefaultParallelism),
		Limits: contract.Limits{
			ZWarn:             config.GetEnvFloat("DATAWARDEN_Z_WARN", contract.DefaultZWarn),
			ZCrit:             config.GetEnvFloat("DATAWARDEN_Z_CRIT", contract.DefaultZCrit),
			QualityScoreWarn:  config.GetEnvFloat("DATAWARDEN_QUALITY_SCORE_WARN", contract.DefaultQualityScoreWarn),
			QualityScoreBlock: config.GetEnvFloat("DATAWARDEN_QUALITY_SCORE_BLOCK", contract.DefaultQualityScoreBlock),
		},
		Timeouts: Timeouts{
			Load:      config.GetEnvDuration("DATAWARDEN_LOAD_TIMEOUT", DefaultLoadTimeout),
			Validator: config.GetEnvDuration("DATAWARDEN_VALIDATOR_TIMEOUT", DefaultValidatorTimeout),
			Store:     config.GetEnvDuration("DATAWARDEN_STORE_TIMEOUT", DefaultStoreTimeout),
		},
	}
}

func (c *Config) withDefaults() *Config {
	out := *c

	if strings.TrimSpace(out.DataDir) == "" {
		out.DataDir = DefaultDataDir
	}

	if strings.TrimSpace(out.ReportsDir) == "" {
		out.ReportsDir = DefaultReportsDir
	}

	if out.FreshnessMaxAge <= 0 {
		out.FreshnessMaxAge = probe.DefaultFreshnessLimit
	}

	if out.SamplingThresholdMB <= 0 {
		out.SamplingThresholdMB = tabular.DefaultSamplingThresholdMB
	}

	if out.SampleRate <= 0 || out.SampleRate > 1 {
		out.SampleRate = tabular.DefaultSampleRate
	}

	if out.Parallelism <= 0 {
		out.Parallelism = DefaultParallelism
	}

	if out.Limits == (contract.Limits{}) {
		out.Limits = contract.DefaultLimits()
	}

	if out.Timeouts.Load <= 0 {
		out.Timeouts.Load = DefaultLoadTimeout
	}

	if out.Timeouts.Validator <= 0 {
		out.Timeouts.Validator = DefaultValidatorTimeout
	}

	if out.Timeouts.Store <= 0 {
		out.Timeouts.Store = DefaultStoreTimeout
	}

	return &out
}

type (
	// Orchestrator owns the components a run flows through and the stores
	// it reads and writes. One Orchestrator serves any number of runs,
	// concurrently in batch mode.
	Orchestrator struct {
		cfg       *Config
		contracts *contract.Store
		baselines *baseline.Store
		actuator  *actuate.Actuator

		prober      *probe.Prober
		loader      *tabular.Loader
		validator   *schema.Validator
		consistency *consistency.Checker
		profiler    *profile.Profiler
		anomalies   *anomaly.Engine
		seasonal    *anomaly.SeasonalDetector
		drift       *anomaly.DriftChecker
		scorer      *quality.Scorer
		remediator  *remediate.Remediator

		lineage   *lineage.Resolver
		catalog   *quality.Prioritizer
		alerts    *alert.Router
		warehouse warehouse.Loader

		now    func() time.Time
		logger *slog.Logger
	}

	// Option configures optional Orchestrator behavior.
	Option func(*Orchestrator)

	// stateFn runs one stage and names the next; nil ends the run. A
	// failing stage routes to emit instead of returning an error, so the
	// machine always terminates with a complete verdict.
	stateFn func(ctx context.Context, r *run) stateFn

	// run carries one evaluation's accumulating state through the stages.
	run struct {
		runID   string
		path    string
		table   string
		started time.Time
		report  *verdict.Report
		impact  lineage.Impact

		located    *contract.Located
		doc        *contract.Document
		meta       *probe.Metadata
		data       *tabular.Table
		rows       int
		mtime      *time.Time
		prof       *profile.TableProfile
		metrics    map[string]float64
		assessment *anomaly.Assessment
		draft      *contract.Document

		// inferring marks the missing-contract branch.
		inferring bool

		// composed is set once the full path reaches verdict composition;
		// only composed runs feed the learning store.
		composed bool

		// cancelled marks caller cancellation. Cancelled runs skip every
		// side effect: no learning, no file moves, no records, no alerts.
		cancelled bool
	}
)

// WithLineage sets the dependency graph used for criticality and
// downstream impact. Without it every table is treated as unregistered.
func WithLineage(resolver *lineage.Resolver) Option {
	return func(o *Orchestrator) {
		o.lineage = resolver
	}
}

// WithCatalog sets the operational catalog behind table priority scoring.
func WithCatalog(catalog *quality.Prioritizer) Option {
	return func(o *Orchestrator) {
		o.catalog = catalog
	}
}

// WithAlerts sets the alert router. Without it verdicts are not routed.
func WithAlerts(router *alert.Router) Option {
	return func(o *Orchestrator) {
		o.alerts = router
	}
}

// WithWarehouse sets the analytical warehouse that promoted tables are
// handed off to. Without it promotion ends at the staging zone.
func WithWarehouse(loader warehouse.Loader) Option {
	return func(o *Orchestrator) {
		o.warehouse = loader
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New assembles an orchestrator around the given stores and actuator.
// The analytical components are built here so they share the
// orchestrator's clock and logger.
func New(cfg *Config, contracts *contract.Store, baselines *baseline.Store, actuator *actuate.Actuator, opts ...Option) (*Orchestrator, error) {
	if contracts == nil {
		return nil, ErrNilContractStore
	}

	if baselines == nil {
		return nil, ErrNilBaselineStore
	}

	if actuator == nil {
		return nil, ErrNilActuator
	}

	if cfg == nil {
		cfg = LoadConfig()
	}

	cfg = cfg.withDefaults()

	o := &Orchestrator{
		cfg:       cfg,
		contracts: contracts,
		baselines: baselines,
		actuator:  actuator,
		now:       time.Now,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(o)
	}

	if err := os.MkdirAll(cfg.ReportsDir, 0o750); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}

	threshold := cfg.SamplingThresholdMB * tabular.BytesPerMB

	o.prober = probe.NewProber(threshold,
		probe.WithHashLookup(baselines),
		probe.WithClock(o.now),
		probe.WithLogger(o.logger))
	o.loader = tabular.NewLoader(threshold, cfg.SampleRate, tabular.WithLogger(o.logger))
	o.validator = schema.NewValidator(schema.WithClock(o.now), schema.WithLogger(o.logger))

	// Reference tables are never sampled: a sampled parent would report
	// orphans that exist only in the sample.
	refs := &referenceLoader{
		landingDir: cfg.DataDir,
		stagingDir: actuator.StagingDir(),
		loader:     tabular.NewLoader(math.MaxInt64, 1, tabular.WithLogger(o.logger)),
	}
	o.consistency = consistency.NewChecker(refs, consistency.WithLogger(o.logger))

	o.profiler = profile.NewProfiler(profile.WithLogger(o.logger))
	o.anomalies = anomaly.NewEngine(baselines, anomaly.WithLogger(o.logger))
	o.seasonal = anomaly.NewSeasonalDetector(baselines, anomaly.WithSeasonalLogger(o.logger))
	o.drift = anomaly.NewDriftChecker(baselines, anomaly.WithDriftClock(o.now))
	o.scorer = quality.NewScorer(
		quality.WithMaxAge(cfg.FreshnessMaxAge),
		quality.WithClock(o.now),
		quality.WithLogger(o.logger))
	o.remediator = remediate.NewRemediator(contracts, remediate.WithLogger(o.logger))

	return o, nil
}

// Run evaluates one file against one table's contract and returns the
// verdict document. It never returns an error: load failures, timeouts,
// and internal faults all surface as FAIL verdicts with the cause in
// critical_errors.
func (o *Orchestrator) Run(ctx context.Context, path, tableName string) *verdict.Report {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	started := o.now().UTC()

	r := &run{
		runID:   "run_" + uuid.New().String(),
		path:    path,
		table:   tableName,
		started: started,
		report:  verdict.NewReport(path, tableName, started),
		impact:  o.lineage.ImpactOf(tableName),
	}

	o.logger.Info("Run started",
		slog.String("run_id", r.runID),
		slog.String("table", tableName),
		slog.String("file", path))

	for state := o.locateContract; state != nil; {
		state = state(ctx, r)
	}

	return r.report
}

// locateContract resolves the governing contract. A missing contract is
// not a failure; it reroutes the run onto the inference branch.
func (o *Orchestrator) locateContract(ctx context.Context, r *run) stateFn {
	located, err := o.contracts.Locate(r.table)

	switch {
	case errors.Is(err, contract.ErrContractNotFound):
		r.report.LogStep(StageLocateContract, "No contract found")
		r.inferring = true

		return o.loadForInference
	case err != nil:
		return o.failure(ctx, r, StageLocateContract, err)
	}

	r.located = located
	r.doc = located.Document
	r.report.ActiveContract = located.Document
	r.report.LogStep(StageLocateContract, fmt.Sprintf("Active contract: %s", located.Path))

	return o.probeMetadata
}

// probeMetadata checks existence, freshness, and duplicate delivery
// before any bytes are parsed. A STOP decision fails the run cheaply.
func (o *Orchestrator) probeMetadata(ctx context.Context, r *run) stateFn {
	limit, err := r.doc.FreshnessLimit(o.cfg.FreshnessMaxAge)
	if err != nil {
		limit = o.cfg.FreshnessMaxAge
		r.report.AddViolation(verdict.Warning(verdict.KindSchemaWarning, "",
			fmt.Sprintf("Invalid freshness rule in contract, using %.0fh default: %v", limit.Hours(), err)))
	}

	pctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Validator)
	meta, err := o.prober.Probe(pctx, r.table, r.path, limit)
	cancel()

	if err != nil {
		return o.failure(ctx, r, StageProbeMetadata, err)
	}

	r.meta = meta
	if !meta.ModifiedAt.IsZero() {
		mtime := meta.ModifiedAt
		r.mtime = &mtime
	}

	if meta.Decision == probe.DecisionStop {
		return o.failWith(r, StageProbeMetadata,
			verdict.Critical(verdict.KindTimeliness, "", meta.Reason))
	}

	line := fmt.Sprintf("File is fresh (%.1fh old, %d bytes)", meta.Age.Hours(), meta.SizeBytes)
	if meta.ShouldSample {
		line += ", sampling recommended"
	}

	r.report.LogStep(StageProbeMetadata, line)

	return o.loadData
}

// loadData parses the file into a column-oriented table, sampling when
// the probe marked the file oversized.
func (o *Orchestrator) loadData(ctx context.Context, r *run) stateFn {
	lctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Load)
	res, err := o.loader.Load(lctx, r.path, r.meta.SizeBytes)
	cancel()

	if err != nil {
		if next, ok := o.interrupted(ctx, r, StageLoadData, err); ok {
			return next
		}

		return o.failWith(r, StageLoadData,
			verdict.Critical(verdict.KindLoadError, "", fmt.Sprintf("Failed to load data: %v", err)))
	}

	r.data = res.Table
	r.rows = res.RowsLoaded
	r.report.LogStep(StageLoadData, loadResultLine(res))

	return o.validateSchema
}

// validateSchema checks the table against the contract's structural and
// quality rules. Critical findings stop the run; columns unknown to the
// contract additionally produce a remediation proposal either way.
func (o *Orchestrator) validateSchema(ctx context.Context, r *run) stateFn {
	vctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Validator)
	res, err := o.validator.Validate(vctx, r.doc, r.data)
	cancel()

	if err != nil {
		return o.failure(ctx, r, StageValidateSchema, err)
	}

	r.report.LogStep(StageValidateSchema, res.Summary())
	r.report.AddViolations(res.Violations())

	if len(res.SuggestedColumns) > 0 {
		o.proposeEvolution(ctx, r, res)
	}

	if res.Decision.Blocks() {
		return o.emit
	}

	return o.checkConsistency
}

// proposeEvolution drafts a contract update for observed-but-undeclared
// columns. Proposals are advisory; nothing is applied without an
// operator's explicit confirmation.
func (o *Orchestrator) proposeEvolution(ctx context.Context, r *run, res *schema.Result) {
	proposal, err := o.remediator.Propose(ctx, r.doc, res.SuggestedColumns, res.Summary())
	if err != nil {
		o.logger.Warn("Contract proposal failed",
			slog.String("table", r.table),
			slog.String("error", err.Error()))

		return
	}

	updates := make([]verdict.SuggestedColumn, 0, len(res.SuggestedColumns))
	for _, col := range res.SuggestedColumns {
		updates = append(updates, verdict.SuggestedColumn{
			Name:         col.Name,
			PhysicalType: col.PhysicalType,
			Quality:      []any{},
			Description:  col.Description,
		})
	}

	r.report.SchemaEvolution = &verdict.SchemaEvolution{
		SuggestedUpdates: updates,
		Advice:           proposal.Advice,
	}
}

// checkConsistency verifies the contract's declared relationships
// against their reference tables. Orphans block the run.
func (o *Orchestrator) checkConsistency(ctx context.Context, r *run) stateFn {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Validator)
	res, err := o.consistency.Check(cctx, r.doc, r.data)
	cancel()

	if err != nil {
		return o.failure(ctx, r, StageCheckConsistency, err)
	}

	r.report.ConsistencyResult = res.Document()
	r.report.LogStep(StageCheckConsistency, res.Summary)

	if res.Decision().Blocks() {
		r.report.AddViolations(res.Violations())

		return o.emit
	}

	return o.profileData
}

// profileData computes per-column statistics. Both branches pass through
// here: the full path feeds the anomaly detectors, the inference branch
// feeds contract drafting.
func (o *Orchestrator) profileData(ctx context.Context, r *run) stateFn {
	pctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Validator)
	prof, err := o.profiler.Profile(pctx, r.data)
	cancel()

	if err != nil {
		return o.failure(ctx, r, StageProfile, err)
	}

	r.prof = prof
	r.metrics = prof.Metrics()

	for i := range prof.Columns {
		cp := &prof.Columns[i]
		r.report.StatsSummary[cp.Name] = cp.Stats()
	}

	outliers := prof.OutlierRows()
	if len(outliers) > maxQuarantineRows {
		outliers = outliers[:maxQuarantineRows]
	}

	r.report.QuarantineIndices = outliers
	r.report.LogStep(StageProfile,
		fmt.Sprintf("Profiled %d columns over %d rows", len(prof.Columns), prof.RowCount))

	if r.inferring {
		return o.inferDraft
	}

	return o.detectAnomalies
}

// detectAnomalies compares this run's metrics against the learned
// baseline. Whether a deviation blocks depends on the table's
// criticality in the dependency graph. Drift is computed alongside but
// only ever warns.
func (o *Orchestrator) detectAnomalies(ctx context.Context, r *run) stateFn {
	actx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Validator)
	assessment, err := o.anomalies.Detect(actx, r.table, r.metrics, r.doc.LimitsFrom(o.cfg.Limits), r.started)
	cancel()

	if err != nil {
		return o.failure(ctx, r, StageDetectAnomalies, err)
	}

	r.assessment = assessment
	r.report.AddViolations(assessment.Violations(r.impact.OverallCriticality))

	line := "No anomalies detected"
	if n := assessment.AnomalyCount(); n > 0 {
		line = fmt.Sprintf("%d metric(s) deviated from baseline", n)
	}

	if assessment.Note != "" {
		line += " (" + assessment.Note + ")"
	}

	dctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Validator)
	driftRes, derr := o.drift.Check(dctx, r.table, r.metrics)
	cancel()

	if derr != nil {
		if next, ok := o.interrupted(ctx, r, StageDetectAnomalies, derr); ok {
			return next
		}

		// Drift informs, never blocks; a failed history read degrades to
		// a warning rather than failing an otherwise clean run.
		o.logger.Warn("Drift check failed",
			slog.String("table", r.table),
			slog.String("error", derr.Error()))
		r.report.AddViolation(verdict.Warning(verdict.KindInternal, "",
			fmt.Sprintf("Drift check skipped: %v", derr)))
	} else {
		r.report.AddViolations(driftRes.Violations())

		if driftRes.Status == anomaly.DriftDetected {
			line += "; " + driftRes.Summary
		}
	}

	r.report.LogStep(StageDetectAnomalies, line)

	return o.detectSeasonal
}

// detectSeasonal judges metrics against weekday and monthly norms.
// Seasonal findings only ever warn, so an unavailable analysis degrades
// instead of failing the run.
func (o *Orchestrator) detectSeasonal(ctx context.Context, r *run) stateFn {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Validator)
	analysis, err := o.seasonal.Analyze(sctx, r.table, r.metrics, r.started)
	cancel()

	if err != nil {
		if next, ok := o.interrupted(ctx, r, StageDetectSeasonal, err); ok {
			return next
		}

		o.logger.Warn("Seasonal analysis failed",
			slog.String("table", r.table),
			slog.String("error", err.Error()))
		r.report.AddViolation(verdict.Warning(verdict.KindInternal, "",
			fmt.Sprintf("Seasonal analysis skipped: %v", err)))
		r.report.LogStep(StageDetectSeasonal, "Seasonal analysis unavailable")

		return o.composeVerdict
	}

	r.report.SeasonalAnalysis = analysis
	r.report.AddViolations(anomaly.SeasonalViolations(analysis))

	line := analysis.Status
	switch {
	case analysis.Note != "":
		line = analysis.Note
	case len(analysis.Anomalies) > 0:
		line = fmt.Sprintf("%s: %d seasonal deviation(s)", analysis.Status, len(analysis.Anomalies))
	}

	r.report.LogStep(StageDetectSeasonal, line)

	return o.composeVerdict
}

// composeVerdict scores quality, applies the score thresholds, and fixes
// the run's status from everything accumulated so far.
func (o *Orchestrator) composeVerdict(_ context.Context, r *run) stateFn {
	r.composed = true

	metrics := o.scorer.Score(r.data, r.prof)
	r.report.QualityMetrics = metrics

	limits := r.doc.LimitsFrom(o.cfg.Limits)
	switch {
	case metrics.OverallScore <= limits.QualityScoreBlock:
		r.report.AddViolation(verdict.Critical(verdict.KindQualityBlock, "",
			fmt.Sprintf("Quality score %.2f breaches block threshold %.0f",
				metrics.OverallScore, limits.QualityScoreBlock)))
	case metrics.OverallScore < limits.QualityScoreWarn:
		r.report.AddViolation(verdict.Warning(verdict.KindQualityBlock, "",
			fmt.Sprintf("Quality score %.2f below warning threshold %.0f",
				metrics.OverallScore, limits.QualityScoreWarn)))
	}

	r.report.Status = composeStatus(r.report)
	r.report.LogStep(StageComposeVerdict, string(r.report.Status))

	return o.emit
}

// loadForInference loads an ungoverned file so a draft contract can be
// inferred from its shape.
func (o *Orchestrator) loadForInference(ctx context.Context, r *run) stateFn {
	info, err := os.Stat(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return o.failWith(r, StageLoadForInference,
				verdict.Critical(verdict.KindTimeliness, "", fmt.Sprintf("File not found: %s", r.path)))
		}

		return o.failure(ctx, r, StageLoadForInference, err)
	}

	mtime := info.ModTime().UTC()
	r.mtime = &mtime

	lctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Load)
	res, err := o.loader.Load(lctx, r.path, info.Size())
	cancel()

	if err != nil {
		if next, ok := o.interrupted(ctx, r, StageLoadForInference, err); ok {
			return next
		}

		return o.failWith(r, StageLoadForInference,
			verdict.Critical(verdict.KindLoadError, "", fmt.Sprintf("Failed to load data: %v", err)))
	}

	r.data = res.Table
	r.rows = res.RowsLoaded
	r.report.LogStep(StageLoadForInference, loadResultLine(res))

	return o.profileData
}

// inferDraft builds a draft contract from the observed shape and saves it
// beside the run reports for operator review. The draft is never adopted
// automatically.
func (o *Orchestrator) inferDraft(_ context.Context, r *run) stateFn {
	observations := make(map[string]contract.ColumnObservation, len(r.prof.Columns))
	for i := range r.prof.Columns {
		cp := &r.prof.Columns[i]
		observations[cp.Name] = contract.ColumnObservation{
			NullPct:   cp.NullPct,
			UniquePct: cp.UniquePct,
		}
	}

	draft := contract.Infer(r.table, r.data, observations)
	r.draft = draft
	r.report.InferredContract = draft
	r.report.AddViolation(verdict.Warning(verdict.KindSchemaWarning, "",
		"No contract found. Draft generated."))
	r.report.LogStep(StageInferDraft,
		fmt.Sprintf("Inferred draft contract with %d columns", len(draft.Columns)))

	if path, err := o.saveDraftDocument(r.table, draft); err != nil {
		o.logger.Warn("Draft contract not saved",
			slog.String("table", r.table),
			slog.String("error", err.Error()))
	} else {
		o.logger.Info("Draft contract saved for review", slog.String("path", path))
	}

	return o.emit
}

func (o *Orchestrator) saveDraftDocument(table string, draft *contract.Document) (string, error) {
	data, err := contract.Encode(draft)
	if err != nil {
		return "", err
	}

	path := filepath.Join(o.cfg.ReportsDir, fmt.Sprintf("%s_contract_draft.yaml", table))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

// interrupted classifies a stage error that came from the clock rather
// than the data: caller cancellation and stage deadlines take precedence
// over the stage's own failure mode.
func (o *Orchestrator) interrupted(ctx context.Context, r *run, stage string, err error) (stateFn, bool) {
	if ctx.Err() != nil {
		r.cancelled = true

		return o.failWith(r, stage, verdict.Critical(verdict.KindCancelled, "", "cancelled")), true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return o.failWith(r, stage,
			verdict.Critical(verdict.KindTimeout, "", fmt.Sprintf("timeout in stage %s", stage))), true
	}

	return nil, false
}

// failure handles stage errors with no domain-specific failure mode.
func (o *Orchestrator) failure(ctx context.Context, r *run, stage string, err error) stateFn {
	if next, ok := o.interrupted(ctx, r, stage, err); ok {
		return next
	}

	return o.failWith(r, stage,
		verdict.Critical(verdict.KindInternal, "", fmt.Sprintf("internal error in stage %s: %v", stage, err)))
}

// failWith records the terminal violation for a stage and routes to emit.
func (o *Orchestrator) failWith(r *run, stage string, v verdict.Violation) stateFn {
	r.report.LogStep(stage, v.Message)
	r.report.AddViolation(v)

	return o.emit
}

// composeStatus derives the verdict from accumulated violations.
func composeStatus(report *verdict.Report) verdict.Status {
	switch {
	case report.HasCritical():
		return verdict.StatusFail
	case len(report.Warnings) > 0:
		return verdict.StatusPassWithWarnings
	default:
		return verdict.StatusPass
	}
}

func loadResultLine(res *tabular.LoadResult) string {
	if res.Sampled {
		return fmt.Sprintf("Loaded %d rows (%.0f%% sample)", res.RowsLoaded, res.SampleRate*100)
	}

	return fmt.Sprintf("Loaded %d rows", res.RowsLoaded)
}

// referenceLoader resolves parent tables for orphan checks. A parent may
// still be in the landing zone (same batch) or already promoted to the
// staging zone; landing wins so same-batch parents are compared at the
// same freshness.
type referenceLoader struct {
	landingDir string
	stagingDir string
	loader     *tabular.Loader
}

var _ consistency.ReferenceLoader = (*referenceLoader)(nil)

// dataExtensions are the recognized data file formats in preference order.
var dataExtensions = []string{".csv", ".parquet", ".json"}

// LoadReference loads the named table from the landing or staging zone.
func (rl *referenceLoader) LoadReference(ctx context.Context, tableName string) (*tabular.Table, error) {
	var lastErr error

	dirs := []string{rl.landingDir, rl.stagingDir}
	for _, dir := range dirs {
		for _, ext := range dataExtensions {
			path := filepath.Join(dir, tableName+ext)

			info, err := os.Stat(path)
			if err != nil {
				continue
			}

			res, err := rl.loader.Load(ctx, path, info.Size())
			if err != nil {
				// The file can be promoted out from under us between the
				// stat and the read; try the remaining candidates.
				lastErr = fmt.Errorf("load reference %s: %w", tableName, err)

				continue
			}

			return res.Table, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return nil, fmt.Errorf("reference table %s: %w", tableName, os.ErrNotExist)
}
