package main

import (
	"fmt"

	"github.com/datawarden-io/datawarden/internal/actuate"
	"github.com/datawarden-io/datawarden/internal/alert"
	"github.com/datawarden-io/datawarden/internal/baseline"
	"github.com/datawarden-io/datawarden/internal/contract"
	"github.com/datawarden-io/datawarden/internal/lineage"
	"github.com/datawarden-io/datawarden/internal/pipeline"
	"github.com/datawarden-io/datawarden/internal/quality"
	"github.com/datawarden-io/datawarden/internal/warehouse"
)

// buildOrchestrator wires the full gatekeeper from global flags and the
// environment. The returned cleanup closes every owned resource and must
// run after the last report is emitted. A parallelism of zero keeps the
// environment-configured worker count.
func buildOrchestrator(parallelism int) (*pipeline.Orchestrator, func(), error) {
	baselineCfg := baseline.LoadConfig()
	baselineCfg.Path = baselineDB

	conn, err := baseline.NewConnection(baselineCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open baseline database: %w", err)
	}

	closers := []func(){func() { _ = conn.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	baselines, err := baseline.NewStore(conn)
	if err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("open baseline store: %w", err)
	}

	contracts, err := contract.NewStore(contractsDir)
	if err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("open contract store: %w", err)
	}

	actuator, err := actuate.NewActuator(stagingDir, quarantineDir)
	if err != nil {
		cleanup()

		return nil, nil, err
	}

	resolver, err := lineage.Load(lineagePath)
	if err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("load lineage graph: %w", err)
	}

	catalog, err := quality.LoadCatalog(catalogPath)
	if err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("load table catalog: %w", err)
	}

	router, err := alert.Load(alertsPath)
	if err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("load alert routing: %w", err)
	}

	closers = append(closers, func() { _ = router.Close() })

	sink, err := warehouse.NewLoader(warehouse.LoadConfig())
	if err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("open warehouse loader: %w", err)
	}

	if closer, ok := sink.(interface{ Close() error }); ok {
		closers = append(closers, func() { _ = closer.Close() })
	}

	cfg := pipeline.LoadConfig()
	cfg.DataDir = dataDir
	cfg.ReportsDir = reportsDir

	if parallelism > 0 {
		cfg.Parallelism = parallelism
	}

	orch, err := pipeline.New(cfg, contracts, baselines, actuator,
		pipeline.WithLineage(resolver),
		pipeline.WithCatalog(catalog),
		pipeline.WithAlerts(router),
		pipeline.WithWarehouse(sink),
	)
	if err != nil {
		cleanup()

		return nil, nil, err
	}

	return orch, cleanup, nil
}
