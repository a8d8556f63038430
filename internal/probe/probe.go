// Package probe inspects file metadata before any rows are read. It
// answers three questions: is the file fresh enough to trust, has its
// exact content been processed before, and is it large enough that the
// loader should sample.
package probe

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not crypto
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/config"
)

// hashChunkBytes is the read size used while fingerprinting a file.
const hashChunkBytes = 4096

// DefaultFreshnessLimit applies when a contract sets no freshness
// threshold.
const DefaultFreshnessLimit = 24 * time.Hour

type (
	// Status classifies the probed file.
	Status string

	// Decision tells the orchestrator whether to keep going.
	Decision string
)

// File statuses.
const (
	StatusFresh     Status = "fresh"
	StatusStale     Status = "stale"
	StatusDuplicate Status = "duplicate"
	StatusMissing   Status = "missing"
)

// Probe decisions.
const (
	DecisionContinue Decision = "CONTINUE"
	DecisionStop     Decision = "STOP"
)

type (
	// HashLookup resolves a content hash to the prior run that processed
	// it, if any.
	HashLookup interface {
		LookupFileHash(ctx context.Context, tableName, hash string) (string, bool, error)
	}

	// Metadata is the result of probing one file.
	Metadata struct {
		Path       string
		Status     Status
		Decision   Decision
		Reason     string
		SizeBytes  int64
		Hash       string
		ModifiedAt time.Time
		Age        time.Duration

		// ShouldSample recommends sampled loading for oversized files.
		ShouldSample bool

		// PriorRunID identifies the run that already processed this
		// content. Set only for duplicates.
		PriorRunID string
	}

	// Prober checks file freshness, size, and duplication.
	Prober struct {
		thresholdBytes int64
		hashes         HashLookup
		now            func() time.Time
		logger         *slog.Logger
	}

	// Option configures optional Prober behavior.
	Option func(*Prober)
)

var _ HashLookup = (*baseline.Store)(nil)

// WithHashLookup enables duplicate detection against prior runs.
func WithHashLookup(hashes HashLookup) Option {
	return func(p *Prober) {
		p.hashes = hashes
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) {
		p.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// NewProber creates a file prober. Files larger than thresholdBytes get
// a sampling recommendation.
func NewProber(thresholdBytes int64, opts ...Option) *Prober {
	prober := &Prober{
		thresholdBytes: thresholdBytes,
		now:            time.Now,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(prober)
	}

	return prober
}

// Probe checks the file at path for the given table. A missing, stale,
// or duplicate file carries a STOP decision; only infrastructure
// failures surface as errors.
func (p *Prober) Probe(ctx context.Context, tableName, path string, freshnessLimit time.Duration) (*Metadata, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &Metadata{
			Path:     path,
			Status:   StatusMissing,
			Decision: DecisionStop,
			Reason:   fmt.Sprintf("File not found: %s", path),
		}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}

	meta := &Metadata{
		Path:         path,
		SizeBytes:    info.Size(),
		Hash:         hash,
		ModifiedAt:   info.ModTime().UTC(),
		ShouldSample: info.Size() > p.thresholdBytes,
	}

	if p.hashes != nil {
		runID, seen, err := p.hashes.LookupFileHash(ctx, tableName, hash)
		if err != nil {
			return nil, fmt.Errorf("look up file hash: %w", err)
		}

		if seen {
			meta.Status = StatusDuplicate
			meta.Decision = DecisionStop
			meta.Reason = "File hash already processed"
			meta.PriorRunID = runID

			return meta, nil
		}
	}

	meta.Age = p.now().UTC().Sub(meta.ModifiedAt)
	if meta.Age >= freshnessLimit {
		meta.Status = StatusStale
		meta.Decision = DecisionStop
		meta.Reason = fmt.Sprintf(
			"File is %.1f hours old, exceeds maximum age of %.1f hours",
			meta.Age.Hours(), freshnessLimit.Hours(),
		)

		return meta, nil
	}

	meta.Status = StatusFresh
	meta.Decision = DecisionContinue

	p.logger.Debug("Probed file",
		slog.String("table", tableName),
		slog.String("path", path),
		slog.Int64("size_bytes", meta.SizeBytes),
		slog.Bool("should_sample", meta.ShouldSample),
	)

	return meta, nil
}

// hashFile fingerprints a file's content in fixed-size chunks.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest := md5.New() //nolint:gosec // content fingerprint, not crypto

	buf := make([]byte, hashChunkBytes)
	if _, err := io.CopyBuffer(digest, f, buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
