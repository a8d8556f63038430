// Package lineage answers the blast-radius question: who consumes a
// dataset downstream, and how bad is it if the dataset goes bad. The
// answer drives alert escalation and table prioritization, so a failure
// on an unconsumed table never pages anyone.
package lineage

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

type (
	// Consumer is one downstream system that reads a dataset.
	Consumer struct {
		// Name identifies the consumer, e.g. "Executive_Dashboard".
		Name string `yaml:"name" json:"name"`

		// Type classifies the consumer: dashboard, ml_model, app, dataset.
		Type string `yaml:"type" json:"type"`

		// Owner is the team or person accountable for the consumer.
		Owner string `yaml:"owner" json:"owner"`

		// Criticality is the consumer's blast-radius tag. Unknown values
		// degrade to LOW rather than failing the load.
		Criticality string `yaml:"criticality" json:"criticality"`
	}

	// Impact is the resolved blast radius of one dataset.
	Impact struct {
		// Dataset is the table the impact was resolved for.
		Dataset string `json:"dataset"`

		// OverallCriticality is the maximum criticality across consumers,
		// LOW when the dataset has none or is not in the graph.
		OverallCriticality verdict.Criticality `json:"overall_criticality"`

		// ImpactedConsumers lists the direct downstream consumers.
		ImpactedConsumers []Consumer `json:"impacted_consumers"`
	}

	// dataset is the wire shape of one graph node.
	dataset struct {
		Consumers []Consumer `yaml:"consumers"`
	}

	// document is the wire shape of the lineage file.
	document struct {
		Datasets map[string]dataset `yaml:"datasets"`
	}

	// Resolver resolves datasets to their downstream consumers.
	// Thread-safe for concurrent use (immutable after construction).
	Resolver struct {
		datasets map[string][]Consumer
	}
)

// Load reads the lineage graph from a YAML file.
//
// Behavior:
//   - Returns an empty resolver (not error) if the file doesn't exist -
//     lineage is optional and absence means no downstream dependencies
//   - Returns an empty resolver + logs warning if the YAML is invalid
//     (graceful degradation)
//   - Returns a populated resolver on success
func Load(path string) (*Resolver, error) {
	resolver := &Resolver{datasets: make(map[string][]Consumer)}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Lineage file not found, assuming no downstream dependencies",
				slog.String("path", path))

			return resolver, nil
		}

		slog.Warn("Failed to read lineage file, assuming no downstream dependencies",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return resolver, nil
	}

	if len(data) == 0 {
		return resolver, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("Failed to parse lineage file, assuming no downstream dependencies",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return resolver, nil
	}

	for name, ds := range doc.Datasets {
		resolver.datasets[name] = ds.Consumers
	}

	return resolver, nil
}

// DatasetCount returns the number of datasets in the graph.
func (r *Resolver) DatasetCount() int {
	if r == nil {
		return 0
	}

	return len(r.datasets)
}

// Downstream returns the direct consumers of a dataset. The slice is a
// copy; callers may mutate it freely.
func (r *Resolver) Downstream(datasetName string) []Consumer {
	if r == nil {
		return nil
	}

	consumers := r.datasets[datasetName]
	out := make([]Consumer, len(consumers))
	copy(out, consumers)

	return out
}

// ImpactOf resolves the blast radius for a dataset. A dataset absent
// from the graph resolves to LOW criticality with no consumers.
func (r *Resolver) ImpactOf(datasetName string) Impact {
	impact := Impact{
		Dataset:            datasetName,
		OverallCriticality: verdict.CriticalityLow,
		ImpactedConsumers:  []Consumer{},
	}

	if r == nil {
		return impact
	}

	consumers, ok := r.datasets[datasetName]
	if !ok {
		return impact
	}

	impact.ImpactedConsumers = append(impact.ImpactedConsumers, consumers...)

	for _, consumer := range consumers {
		c, err := verdict.ParseCriticality(consumer.Criticality)
		if err != nil {
			// Unknown tags degrade to LOW instead of failing the run.
			c = verdict.CriticalityLow
		}

		impact.OverallCriticality = verdict.MaxCriticality(impact.OverallCriticality, c)
	}

	return impact
}

// TransitiveConsumerCount counts consumers up to two hops away: direct
// consumers plus, for any consumer that is itself a dataset in the
// graph, that dataset's own consumers. Deeper chains are out of scope
// for prioritization.
func (r *Resolver) TransitiveConsumerCount(datasetName string) int {
	if r == nil {
		return 0
	}

	direct := r.datasets[datasetName]
	count := len(direct)

	for _, consumer := range direct {
		count += len(r.datasets[consumer.Name])
	}

	return count
}
