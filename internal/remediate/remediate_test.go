package remediate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawarden-io/datawarden/internal/contract"
)

// stubAdviser returns canned advice or a canned error.
type stubAdviser struct {
	advice string
	err    error

	gotDiff string
}

func (a *stubAdviser) ProposeSchemaUpdate(_ context.Context, _ *contract.Document, diff string) (string, error) {
	a.gotDiff = diff

	return a.advice, a.err
}

func baseContract() *contract.Document {
	return &contract.Document{
		TableName: "transactions",
		Info:      contract.Info{Version: "1.0.0", Owner: "data-team"},
		Columns: []contract.Column{
			{Name: "transaction_id", PhysicalType: "int64", IsPrimaryKey: true},
			{Name: "amount", PhysicalType: "float64"},
		},
	}
}

func suggestedColumn(name string) contract.Column {
	return contract.Column{
		Name:         name,
		PhysicalType: "varchar",
		Nullable:     true,
		Description:  "Automatically detected column",
	}
}

func newStore(t *testing.T) (*contract.Store, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := contract.NewStore(dir)
	require.NoError(t, err)

	return store, dir
}

func writeContract(t *testing.T, dir string, doc *contract.Document) string {
	t.Helper()

	data, err := contract.Encode(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, doc.TableName+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func TestRemediator_Propose(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, _ := newStore(t)

	t.Run("merges new columns", func(t *testing.T) {
		remediator := NewRemediator(store)
		current := baseContract()

		proposal, err := remediator.Propose(context.Background(), current,
			[]contract.Column{suggestedColumn("channel"), suggestedColumn("region")}, "")
		require.NoError(t, err)

		assert.Equal(t, []string{"channel", "region"}, proposal.Added)
		assert.Len(t, proposal.Proposed.Columns, 4)

		// The current contract is never mutated.
		assert.Len(t, current.Columns, 2)
	})

	t.Run("skips columns the contract already declares", func(t *testing.T) {
		remediator := NewRemediator(store)

		proposal, err := remediator.Propose(context.Background(), baseContract(),
			[]contract.Column{suggestedColumn("amount"), suggestedColumn("channel")}, "")
		require.NoError(t, err)

		assert.Equal(t, []string{"channel"}, proposal.Added)
		assert.Len(t, proposal.Proposed.Columns, 3)
	})

	t.Run("consults the adviser", func(t *testing.T) {
		adviser := &stubAdviser{advice: "Add the channel column as nullable varchar."}
		remediator := NewRemediator(store, WithAdviser(adviser))

		proposal, err := remediator.Propose(context.Background(), baseContract(),
			[]contract.Column{suggestedColumn("channel")}, "unexpected_columns: [channel]")
		require.NoError(t, err)

		assert.Equal(t, "Add the channel column as nullable varchar.", proposal.Advice)
		assert.Equal(t, "unexpected_columns: [channel]", adviser.gotDiff)
	})

	t.Run("adviser failure degrades to empty advice", func(t *testing.T) {
		adviser := &stubAdviser{err: errors.New("upstream unavailable")}
		remediator := NewRemediator(store, WithAdviser(adviser))

		proposal, err := remediator.Propose(context.Background(), baseContract(),
			[]contract.Column{suggestedColumn("channel")}, "")
		require.NoError(t, err)

		assert.Empty(t, proposal.Advice)
		assert.Equal(t, []string{"channel"}, proposal.Added)
	})

	t.Run("nil current contract is rejected", func(t *testing.T) {
		remediator := NewRemediator(store)

		_, err := remediator.Propose(context.Background(), nil, nil, "")
		assert.ErrorIs(t, err, ErrProposalInvalid)
	})
}

func TestValidate_Gates(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("well-formed superset passes", func(t *testing.T) {
		current := baseContract()
		proposed := baseContract()
		proposed.Columns = append(proposed.Columns, suggestedColumn("channel"))

		assert.NoError(t, Validate(current, proposed))
	})

	t.Run("empty columns fail the syntactic gate", func(t *testing.T) {
		proposed := baseContract()
		proposed.Columns = nil

		err := Validate(baseContract(), proposed)
		assert.ErrorIs(t, err, ErrProposalInvalid)
	})

	t.Run("nil proposal fails the syntactic gate", func(t *testing.T) {
		assert.ErrorIs(t, Validate(baseContract(), nil), ErrProposalInvalid)
	})

	t.Run("column removal fails the non-shrink gate", func(t *testing.T) {
		proposed := baseContract()
		proposed.Columns = proposed.Columns[:1] // drops amount

		err := Validate(baseContract(), proposed)
		require.ErrorIs(t, err, ErrColumnRemoved)
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("renaming is removal plus addition and fails", func(t *testing.T) {
		proposed := baseContract()
		proposed.Columns[1].Name = "amount_usd"

		assert.ErrorIs(t, Validate(baseContract(), proposed), ErrColumnRemoved)
	})
}

func TestValidateYAML(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	current := baseContract()

	t.Run("valid yaml superset", func(t *testing.T) {
		proposedYAML := []byte(`table_name: transactions
columns:
  - name: transaction_id
    physical_type: int64
  - name: amount
    physical_type: float64
  - name: channel
    physical_type: varchar
    nullable: true
`)

		proposed, err := ValidateYAML(current, proposedYAML)
		require.NoError(t, err)
		assert.Len(t, proposed.Columns, 3)
	})

	t.Run("unparseable yaml", func(t *testing.T) {
		_, err := ValidateYAML(current, []byte("columns: [{broken"))
		assert.ErrorIs(t, err, ErrProposalInvalid)
	})

	t.Run("shrinking yaml", func(t *testing.T) {
		proposedYAML := []byte(`table_name: transactions
columns:
  - name: transaction_id
    physical_type: int64
`)

		_, err := ValidateYAML(current, proposedYAML)
		assert.ErrorIs(t, err, ErrColumnRemoved)
	})
}

func TestRemediator_Apply(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("archives then replaces", func(t *testing.T) {
		store, dir := newStore(t)
		remediator := NewRemediator(store)

		current := baseContract()
		path := writeContract(t, dir, current)

		proposal, err := remediator.Propose(context.Background(), current,
			[]contract.Column{suggestedColumn("channel")}, "")
		require.NoError(t, err)

		require.NoError(t, remediator.Apply(path, proposal))

		// Active file now carries the new column.
		updated, err := store.Load(path)
		require.NoError(t, err)
		assert.Len(t, updated.Columns, 3)

		// Exactly one archived copy of the pre-apply contents exists.
		entries, err := os.ReadDir(filepath.Join(dir, "archive"))
		require.NoError(t, err)
		require.Len(t, entries, 1)

		archived, err := store.Load(filepath.Join(dir, "archive", entries[0].Name()))
		require.NoError(t, err)
		assert.Len(t, archived.Columns, 2)
	})

	t.Run("gate failure leaves the contract untouched", func(t *testing.T) {
		store, dir := newStore(t)
		remediator := NewRemediator(store)

		current := baseContract()
		path := writeContract(t, dir, current)

		shrunk := baseContract()
		shrunk.Columns = shrunk.Columns[:1]
		proposal := &Proposal{Current: current, Proposed: shrunk}

		err := remediator.Apply(path, proposal)
		require.ErrorIs(t, err, ErrColumnRemoved)

		onDisk, err := store.Load(path)
		require.NoError(t, err)
		assert.Len(t, onDisk.Columns, 2)

		_, err = os.ReadDir(filepath.Join(dir, "archive"))
		assert.True(t, os.IsNotExist(err))
	})
}
