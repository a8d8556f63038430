package actuate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

var actuatorClock = time.Date(2025, 6, 2, 14, 30, 45, 0, time.UTC)

func newTestActuator(t *testing.T) (*Actuator, string) {
	t.Helper()

	root := t.TempDir()
	actuator, err := NewActuator(
		filepath.Join(root, "staging"),
		filepath.Join(root, "quarantine"),
		WithClock(func() time.Time { return actuatorClock }),
	)
	require.NoError(t, err)

	return actuator, root
}

func writeLandingFile(t *testing.T, root, name string) string {
	t.Helper()

	landing := filepath.Join(root, "landing")
	require.NoError(t, os.MkdirAll(landing, 0o755))

	path := filepath.Join(landing, name)
	require.NoError(t, os.WriteFile(path, []byte("id,amount\n1,10.5\n"), 0o644))

	return path
}

func passingReport(path string) *verdict.Report {
	report := verdict.NewReport(path, "transactions", actuatorClock)
	report.Status = verdict.StatusPass

	return report
}

func failingReport(path string) *verdict.Report {
	report := verdict.NewReport(path, "transactions", actuatorClock)
	report.AddViolation(verdict.Critical(verdict.KindSchemaCritical, "amount", "Missing columns: [amount]"))
	report.AddViolation(verdict.Critical(verdict.KindTimeliness, "", "Data file is stale"))

	return report
}

func TestActuator_Promote(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	actuator, root := newTestActuator(t)
	source := writeLandingFile(t, root, "transactions.csv")

	destination, err := actuator.Promote(source, passingReport(source))
	require.NoError(t, err)

	// The file kept its name and left the landing directory.
	assert.Equal(t, filepath.Join(root, "staging", "transactions.csv"), destination)
	assert.NoFileExists(t, source)
	assert.FileExists(t, destination)

	// Sidecar records the approval.
	data, err := os.ReadFile(destination + ".meta.json")
	require.NoError(t, err)

	var record PromotionRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, source, record.OriginalFile)
	assert.Equal(t, destination, record.MovedTo)
	assert.Equal(t, "APPROVED", record.Status)
	require.NotNil(t, record.ValidationResults)
	assert.Equal(t, verdict.StatusPass, record.ValidationResults.Status)
}

func TestActuator_Quarantine(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	actuator, root := newTestActuator(t)
	source := writeLandingFile(t, root, "transactions.csv")

	destination, err := actuator.Quarantine(source, failingReport(source))
	require.NoError(t, err)

	// The quarantined name carries the timestamp so repeats never collide.
	assert.Equal(t,
		filepath.Join(root, "quarantine", "transactions_20250602_143045.csv"),
		destination)
	assert.NoFileExists(t, source)
	assert.FileExists(t, destination)

	record, err := actuator.QuarantineReport(destination)
	require.NoError(t, err)
	assert.Equal(t, source, record.OriginalFile)
	assert.Equal(t, "QUARANTINED", record.Status)
	assert.Equal(t, 2, record.ErrorSummary.TotalErrors)
	assert.Equal(t, 1, record.ErrorSummary.SchemaIssues)
	assert.Equal(t, 1, record.ErrorSummary.TimelinessIssues)
	assert.Zero(t, record.ErrorSummary.ProfilingIssues)
}

func TestActuator_MissingSourceFails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	actuator, root := newTestActuator(t)
	ghost := filepath.Join(root, "landing", "ghost.csv")

	_, err := actuator.Promote(ghost, passingReport(ghost))
	assert.Error(t, err)

	_, err = actuator.Quarantine(ghost, failingReport(ghost))
	assert.Error(t, err)
}

func TestActuator_Listing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	actuator, root := newTestActuator(t)

	promoted := writeLandingFile(t, root, "transactions.csv")
	_, err := actuator.Promote(promoted, passingReport(promoted))
	require.NoError(t, err)

	quarantined := writeLandingFile(t, root, "orders.csv")
	_, err = actuator.Quarantine(quarantined, failingReport(quarantined))
	require.NoError(t, err)

	staging, err := actuator.ListStaging()
	require.NoError(t, err)
	require.Len(t, staging, 1)
	assert.Equal(t, filepath.Join(root, "staging", "transactions.csv"), staging[0])

	quarantine, err := actuator.ListQuarantine()
	require.NoError(t, err)
	require.Len(t, quarantine, 1)
	assert.Equal(t,
		filepath.Join(root, "quarantine", "orders_20250602_143045.csv"),
		quarantine[0])
}

func TestNewActuator_CreatesNamespaces(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	root := t.TempDir()
	staging := filepath.Join(root, "nested", "staging")
	quarantine := filepath.Join(root, "nested", "quarantine")

	_, err := NewActuator(staging, quarantine)
	require.NoError(t, err)

	assert.DirExists(t, staging)
	assert.DirExists(t, quarantine)
}
