package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

const inventoryContract = `
table_name: inventory
info:
  owner: warehouse-team
columns:
  - name: sku
    physical_type: string
    nullable: false
`

func TestRunAll_Sweep(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newTestEnv(t)

	// Three governed tables: one clean, one with orphans, one with no
	// data file delivered yet.
	env.writeContract("users.yaml", usersContract)
	env.writeLanding("users.csv", usersCSV)

	env.writeContract("orders.yaml", `
table_name: orders
info:
  owner: commerce-team
columns:
  - name: order_id
    physical_type: integer
    nullable: false
  - name: user_id
    physical_type: integer
    nullable: false
foreign_keys:
  - columns: [user_id]
    reference_table: users
    reference_columns: [user_id]
`)
	env.writeLanding("orders.csv", "order_id,user_id\n1,1\n2,777\n")

	env.writeContract("inventory.yaml", inventoryContract)

	summary, err := env.orch.RunAll(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total())
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 0, summary.Warnings)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Unchanged)
	assert.False(t, summary.AllPassed())
	assert.Empty(t, summary.Diagnostics)

	// Reports come back in table order regardless of worker scheduling.
	require.Len(t, summary.Reports, 3)
	tables := []string{summary.Reports[0].TableName, summary.Reports[1].TableName, summary.Reports[2].TableName}
	assert.True(t, sort.StringsAreSorted(tables))

	byTable := make(map[string]verdict.Status, len(summary.Reports))
	for _, r := range summary.Reports {
		byTable[r.TableName] = r.Status
	}

	assert.Equal(t, verdict.StatusPass, byTable["users"])
	assert.Equal(t, verdict.StatusFail, byTable["orders"])
	assert.Equal(t, verdict.StatusSkipped, byTable["inventory"])
}

func TestRunAll_SkipUnchanged(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newTestEnv(t)
	env.writeContract("users.yaml", usersContract)
	source := env.writeLanding("users.csv", usersCSV)

	// Pin the file mtime, fractional second included, and register it as
	// already scanned, the way a previous sweep would have. Most
	// filesystems report sub-second mtimes, so the registry round trip
	// must not lose the fraction.
	mtime := time.Now().UTC().Truncate(time.Second).Add(-time.Hour).Add(537 * time.Millisecond)
	require.NoError(t, os.Chtimes(source, mtime, mtime))

	err := env.baselines.UpsertDataset(context.Background(), &baseline.DatasetEntry{
		TableName:     "users",
		LastStatus:    verdict.StatusPass,
		LastFileMtime: &mtime,
	})
	require.NoError(t, err)

	summary, err := env.orch.RunAll(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, 0, summary.Passed)
	assert.True(t, summary.AllPassed())

	require.Len(t, summary.Reports, 1)
	assert.Equal(t, verdict.StatusUnchanged, summary.Reports[0].Status)

	// The untouched file was neither promoted nor quarantined, and no
	// run record was written.
	assert.FileExists(t, source)

	runs, err := env.baselines.RecentRuns(context.Background(), "users", 5)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// Without the flag the same file is evaluated normally.
	summary, err = env.orch.RunAll(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Unchanged)
	assert.Equal(t, 1, summary.Passed)
	assert.NoFileExists(t, source)
}

func TestRunAll_ReportsParseDiagnostics(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newTestEnv(t)
	env.writeContract("users.yaml", usersContract)
	env.writeLanding("users.csv", usersCSV)
	env.writeContract("broken.yaml", "table_name: [this is\n  not: valid yaml\n")

	summary, err := env.orch.RunAll(context.Background(), false)
	require.NoError(t, err)

	// The malformed contract is surfaced, not fatal; the healthy table
	// still runs.
	require.Len(t, summary.Diagnostics, 1)
	assert.Contains(t, summary.Diagnostics[0].Path, "broken.yaml")
	assert.Error(t, summary.Diagnostics[0].Err)

	assert.Equal(t, 1, summary.Passed)
}

func TestRunAll_DiscoveryFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newTestEnv(t)
	require.NoError(t, os.RemoveAll(env.contractsDir))

	_, err := env.orch.RunAll(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover contracts")
}

func TestRunAll_DuplicateTableNames(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newTestEnv(t)
	env.writeContract("users.yaml", usersContract)
	env.writeContract("users_copy.yaml", usersContract)
	env.writeLanding("users.csv", usersCSV)

	summary, err := env.orch.RunAll(context.Background(), false)
	require.NoError(t, err)

	// The duplicate definition is ignored; the table runs once.
	assert.Equal(t, 1, summary.Total())
	assert.Equal(t, 1, summary.Passed)
}

func TestBatchSummary_Tally(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	s := &BatchSummary{}
	s.tally(verdict.StatusPass)
	s.tally(verdict.StatusPassWithWarnings)
	s.tally(verdict.StatusContractMissing)
	s.tally(verdict.StatusFail)
	s.tally(verdict.StatusSkipped)
	s.tally(verdict.StatusUnchanged)

	assert.Equal(t, 6, s.Total())
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 2, s.Warnings)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Unchanged)
	assert.False(t, s.AllPassed())
}

func TestFindDataFile_PrefersCSV(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	env := newTestEnv(t)
	env.writeLanding("users.json", `[{"user_id": 1}]`)
	env.writeLanding("users.csv", usersCSV)

	path := env.orch.findDataFile("users")
	assert.Equal(t, filepath.Join(env.landingDir, "users.csv"), path)

	assert.Empty(t, env.orch.findDataFile("absent"))
}
