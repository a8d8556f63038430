// Package actuate physically moves evaluated files. A promoted file
// lands in the staging namespace with an approval sidecar; a blocked
// file lands in quarantine under a timestamp-uniquified name with an
// error sidecar. Either way the original path is gone afterwards, so
// the same file is never scanned twice.
package actuate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Sidecar statuses and suffixes.
const (
	statusApproved    = "APPROVED"
	statusQuarantined = "QUARANTINED"

	metaSuffix  = ".meta.json"
	errorSuffix = ".error.json"

	quarantineTimeFormat = "20060102_150405"
)

type (
	// PromotionRecord is the sidecar written next to a promoted file.
	PromotionRecord struct {
		OriginalFile      string          `json:"original_file"`
		MovedTo           string          `json:"moved_to"`
		Timestamp         time.Time       `json:"timestamp"`
		Status            string          `json:"status"`
		ValidationResults *verdict.Report `json:"validation_results"`
	}

	// QuarantineRecord is the sidecar written next to a quarantined file.
	QuarantineRecord struct {
		OriginalFile      string               `json:"original_file"`
		QuarantinedTo     string               `json:"quarantined_to"`
		Timestamp         time.Time            `json:"timestamp"`
		Status            string               `json:"status"`
		ValidationResults *verdict.Report      `json:"validation_results"`
		ErrorSummary      verdict.ErrorSummary `json:"error_summary"`
	}

	// Actuator moves files between the landing, staging, and quarantine
	// namespaces based on run verdicts.
	Actuator struct {
		stagingDir    string
		quarantineDir string
		now           func() time.Time
		logger        *slog.Logger
	}

	// Option configures optional Actuator behavior.
	Option func(*Actuator)
)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Actuator) {
		a.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Actuator) {
		a.logger = logger
	}
}

// NewActuator creates an actuator, ensuring both namespaces exist.
func NewActuator(stagingDir, quarantineDir string, opts ...Option) (*Actuator, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return nil, fmt.Errorf("create quarantine directory: %w", err)
	}

	actuator := &Actuator{
		stagingDir:    stagingDir,
		quarantineDir: quarantineDir,
		now:           time.Now,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(actuator)
	}

	return actuator, nil
}

// StagingDir returns the staging namespace path.
func (a *Actuator) StagingDir() string { return a.stagingDir }

// QuarantineDir returns the quarantine namespace path.
func (a *Actuator) QuarantineDir() string { return a.quarantineDir }

// Promote moves a passed file into staging under its original name and
// writes the approval sidecar. Returns the file's new path.
func (a *Actuator) Promote(path string, report *verdict.Report) (string, error) {
	destination := filepath.Join(a.stagingDir, filepath.Base(path))

	if err := moveFile(path, destination); err != nil {
		return "", fmt.Errorf("promote %s: %w", path, err)
	}

	record := PromotionRecord{
		OriginalFile:      path,
		MovedTo:           destination,
		Timestamp:         a.now().UTC(),
		Status:            statusApproved,
		ValidationResults: report,
	}

	if err := writeSidecar(destination+metaSuffix, record); err != nil {
		return "", err
	}

	a.logger.Info("Promoted file to staging",
		slog.String("from", path),
		slog.String("to", destination),
	)

	return destination, nil
}

// Quarantine moves a blocked file into quarantine under a
// timestamp-uniquified name and writes the error sidecar. Returns the
// file's new path.
func (a *Actuator) Quarantine(path string, report *verdict.Report) (string, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := a.now().UTC().Format(quarantineTimeFormat)

	destination := filepath.Join(a.quarantineDir, fmt.Sprintf("%s_%s%s", stem, stamp, ext))

	if err := moveFile(path, destination); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}

	record := QuarantineRecord{
		OriginalFile:      path,
		QuarantinedTo:     destination,
		Timestamp:         a.now().UTC(),
		Status:            statusQuarantined,
		ValidationResults: report,
	}
	if report != nil {
		record.ErrorSummary = report.ErrorSummary()
	}

	if err := writeSidecar(destination+errorSuffix, record); err != nil {
		return "", err
	}

	a.logger.Warn("Quarantined file",
		slog.String("from", path),
		slog.String("to", destination),
		slog.Int("critical_errors", record.ErrorSummary.TotalErrors),
	)

	return destination, nil
}

// ListStaging enumerates the data files currently in staging.
func (a *Actuator) ListStaging() ([]string, error) {
	return listDataFiles(a.stagingDir)
}

// ListQuarantine enumerates the data files currently in quarantine.
func (a *Actuator) ListQuarantine() ([]string, error) {
	return listDataFiles(a.quarantineDir)
}

// QuarantineReport reads the error sidecar for a quarantined file.
func (a *Actuator) QuarantineReport(quarantinedPath string) (*QuarantineRecord, error) {
	data, err := os.ReadFile(quarantinedPath + errorSuffix)
	if err != nil {
		return nil, fmt.Errorf("read quarantine report: %w", err)
	}

	var record QuarantineRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode quarantine report: %w", err)
	}

	return &record, nil
}

// listDataFiles returns data files (not sidecars) in a namespace, sorted
// by name.
func listDataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv", ".parquet", ".json":
			if strings.HasSuffix(entry.Name(), metaSuffix) || strings.HasSuffix(entry.Name(), errorSuffix) {
				continue
			}

			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	return files, nil
}

// moveFile renames src to dst, falling back to copy-and-remove when the
// two paths live on different filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	in, err := os.Open(src) //nolint:gosec // path comes from the scanned landing dir
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()

		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}

func writeSidecar(path string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // audit sidecar
		return fmt.Errorf("write sidecar %s: %w", path, err)
	}

	return nil
}
