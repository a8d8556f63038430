// Package remediate proposes and applies contract revisions under two
// safety gates: the proposal must be a well-formed contract (G1) and its
// column set must be a superset of the current one (G2). A contract can
// grow through remediation but never shrink, so an over-eager proposal
// cannot silently drop a column somebody depends on.
package remediate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/contract"
)

// Sentinel errors for gate failures.
var (
	// ErrProposalInvalid indicates the proposal failed the syntactic gate:
	// it is missing, malformed, or has no columns.
	ErrProposalInvalid = errors.New("proposal failed syntactic gate")

	// ErrColumnRemoved indicates the proposal failed the non-shrink gate
	// by dropping a column the current contract declares.
	ErrColumnRemoved = errors.New("proposal removes contract column")
)

type (
	// Adviser produces free-form remediation guidance for a schema diff.
	// The advice is opaque: it is carried into the verdict for humans and
	// never parsed, gated, or applied by the pipeline.
	Adviser interface {
		ProposeSchemaUpdate(ctx context.Context, current *contract.Document, diff string) (string, error)
	}

	// Proposal is a contract revision that has been assembled but not yet
	// applied. Apply re-checks both gates before touching the store.
	Proposal struct {
		// Current is the contract the proposal was derived from.
		Current *contract.Document

		// Proposed is the revised contract.
		Proposed *contract.Document

		// Added lists the column names the proposal introduces.
		Added []string

		// Advice is the adviser's guidance, empty when no adviser is
		// configured or the adviser failed.
		Advice string
	}

	// Remediator assembles and applies contract revisions.
	Remediator struct {
		store   *contract.Store
		adviser Adviser
		logger  *slog.Logger
	}

	// Option configures optional Remediator behavior.
	Option func(*Remediator)
)

// WithAdviser plugs in an advice source consulted during Propose.
func WithAdviser(adviser Adviser) Option {
	return func(r *Remediator) {
		r.adviser = adviser
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Remediator) {
		r.logger = logger
	}
}

// NewRemediator creates a remediator over the given contract store.
func NewRemediator(store *contract.Store, opts ...Option) *Remediator {
	remediator := &Remediator{
		store: store,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(remediator)
	}

	return remediator
}

// Propose merges the suggested columns into a copy of the current
// contract and consults the adviser, when one is configured. Columns the
// contract already declares are skipped. An adviser failure degrades to
// empty advice; the proposal itself is deterministic.
func (r *Remediator) Propose(
	ctx context.Context,
	current *contract.Document,
	suggested []contract.Column,
	diff string,
) (*Proposal, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: no current contract", ErrProposalInvalid)
	}

	proposed := cloneDocument(current)
	proposal := &Proposal{Current: current, Proposed: proposed, Added: []string{}}

	declared := make(map[string]struct{}, len(current.Columns))
	for i := 0; i < len(current.Columns); i++ {
		declared[current.Columns[i].Name] = struct{}{}
	}

	for i := 0; i < len(suggested); i++ {
		if _, ok := declared[suggested[i].Name]; ok {
			continue
		}

		proposed.Columns = append(proposed.Columns, suggested[i])
		proposal.Added = append(proposal.Added, suggested[i].Name)
		declared[suggested[i].Name] = struct{}{}
	}

	if r.adviser != nil {
		advice, err := r.adviser.ProposeSchemaUpdate(ctx, current, diff)
		if err != nil {
			r.logger.Warn("Schema adviser failed, continuing without advice",
				slog.String("table", current.TableName),
				slog.String("error", err.Error()),
			)
		} else {
			proposal.Advice = advice
		}
	}

	r.logger.Info("Assembled contract proposal",
		slog.String("table", current.TableName),
		slog.Int("columns_added", len(proposal.Added)),
	)

	return proposal, nil
}

// Validate runs both safety gates over a proposed revision.
func Validate(current, proposed *contract.Document) error {
	if proposed == nil {
		return fmt.Errorf("%w: proposal is empty", ErrProposalInvalid)
	}

	if err := proposed.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrProposalInvalid, err)
	}

	if current == nil {
		return nil
	}

	names := make(map[string]struct{}, len(proposed.Columns))
	for i := 0; i < len(proposed.Columns); i++ {
		names[proposed.Columns[i].Name] = struct{}{}
	}

	for i := 0; i < len(current.Columns); i++ {
		if _, ok := names[current.Columns[i].Name]; !ok {
			return fmt.Errorf("%w: %s", ErrColumnRemoved, current.Columns[i].Name)
		}
	}

	return nil
}

// ValidateYAML decodes a proposal from raw YAML and runs both gates,
// returning the decoded document on success. This is the entry point for
// revisions that arrive as text rather than through Propose.
func ValidateYAML(current *contract.Document, proposedYAML []byte) (*contract.Document, error) {
	proposed, err := contract.Decode(proposedYAML)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProposalInvalid, err)
	}

	if err := Validate(current, proposed); err != nil {
		return nil, err
	}

	return proposed, nil
}

// Apply re-checks the gates and replaces the contract at path with the
// proposal. The store archives the current contents before the swap, so
// every apply leaves exactly one timestamped copy behind. On gate
// failure nothing is written and the active contract is untouched.
func (r *Remediator) Apply(path string, proposal *Proposal) error {
	if proposal == nil {
		return fmt.Errorf("%w: proposal is empty", ErrProposalInvalid)
	}

	if err := Validate(proposal.Current, proposal.Proposed); err != nil {
		r.logger.Warn("Refusing to apply contract proposal",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return err
	}

	if err := r.store.Replace(path, proposal.Proposed); err != nil {
		return fmt.Errorf("apply proposal: %w", err)
	}

	r.logger.Info("Applied contract proposal",
		slog.String("path", path),
		slog.Any("columns_added", proposal.Added),
	)

	return nil
}

// cloneDocument copies a contract deeply enough that appending columns
// to the clone never touches the original.
func cloneDocument(doc *contract.Document) *contract.Document {
	clone := *doc

	clone.Columns = make([]contract.Column, len(doc.Columns))
	copy(clone.Columns, doc.Columns)

	clone.ForeignKeys = make([]contract.ForeignKey, len(doc.ForeignKeys))
	copy(clone.ForeignKeys, doc.ForeignKeys)

	return &clone
}
