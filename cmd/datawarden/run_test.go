package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableFromPath(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"csv in landing dir", "data/landing/users.csv", "users"},
		{"absolute parquet path", "/srv/deliveries/orders_eu.parquet", "orders_eu"},
		{"json file", "events.json", "events"},
		{"no extension", "snapshots/daily", "daily"},
		{"dotted stem keeps inner dots", "exports/fact.sales.csv", "fact.sales"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tableFromPath(tt.path); got != tt.want {
				t.Errorf("tableFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRunOne_AdoptDraftEvaluatesDelivery(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	root := t.TempDir()
	dataDir = filepath.Join(root, "landing")
	contractsDir = filepath.Join(root, "contracts")
	stagingDir = filepath.Join(root, "staging")
	quarantineDir = filepath.Join(root, "quarantine")
	reportsDir = filepath.Join(root, "reports")
	baselineDB = filepath.Join(root, "baselines.db")
	lineagePath = filepath.Join(root, "lineage.yaml")
	catalogPath = filepath.Join(root, "catalog.yaml")
	alertsPath = filepath.Join(root, "alerts.yaml")
	adoptDraft = true

	t.Cleanup(func() { adoptDraft = false })

	require.NoError(t, os.MkdirAll(dataDir, 0o750))

	source := filepath.Join(dataDir, "signups.csv")
	require.NoError(t, os.WriteFile(source, []byte(
		"signup_id,amount,name\n1,10.5,alpha\n2,11.0,beta\n3,9.75,gamma\n"), 0o600))

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	// With --yes the uncontracted delivery must not exit green on the
	// adoption alone: the draft becomes the active contract and the file
	// is evaluated against it in the same invocation.
	require.NoError(t, runOne(cmd, []string{source}))

	assert.FileExists(t, filepath.Join(contractsDir, "signups.yaml"))
	assert.NoFileExists(t, source, "delivery should have been promoted, not left in landing")
	assert.FileExists(t, filepath.Join(stagingDir, "signups.csv"))
}
