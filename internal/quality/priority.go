package quality

import (
	"errors"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Priority tiers over the composite score.
const (
	TierCritical = "CRITICAL"
	TierHigh     = "HIGH"
	TierMedium   = "MEDIUM"
	TierLow      = "LOW"
	TierUnknown  = "UNKNOWN"

	tierCriticalScore = 100.0
	tierHighScore     = 50.0
	tierMediumScore   = 25.0
)

// defaultSLAHours applies when a catalog entry omits its freshness SLA.
const defaultSLAHours = 24.0

type (
	// CatalogEntry is one table's operational metadata.
	CatalogEntry struct {
		// Certification grades trust in the dataset: gold, silver,
		// bronze, or none.
		Certification string `yaml:"certification"`

		// AvgDailyQueries is the observed query volume.
		AvgDailyQueries int `yaml:"avg_daily_queries"`

		// SLAHours is the freshness promise; tighter SLAs raise priority.
		SLAHours float64 `yaml:"sla_hours"`

		// Owner is the accountable team, informational only.
		Owner string `yaml:"owner"`
	}

	// catalogDocument is the wire shape of the catalog file.
	catalogDocument struct {
		Tables map[string]CatalogEntry `yaml:"tables"`
	}

	// Prioritizer ranks tables by operational importance so issues on
	// high-impact tables surface first. Immutable after construction.
	Prioritizer struct {
		tables map[string]CatalogEntry
	}
)

// LoadCatalog reads the table catalog from a YAML file. Like the
// lineage graph, the catalog is optional: a missing or unparseable file
// yields an empty prioritizer that ranks everything UNKNOWN.
func LoadCatalog(path string) (*Prioritizer, error) {
	prioritizer := &Prioritizer{tables: make(map[string]CatalogEntry)}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Catalog file not found, tables will rank UNKNOWN",
				slog.String("path", path))

			return prioritizer, nil
		}

		slog.Warn("Failed to read catalog file, tables will rank UNKNOWN",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return prioritizer, nil
	}

	if len(data) == 0 {
		return prioritizer, nil
	}

	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("Failed to parse catalog file, tables will rank UNKNOWN",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return prioritizer, nil
	}

	for name, entry := range doc.Tables {
		prioritizer.tables[name] = entry
	}

	return prioritizer, nil
}

// TableCount returns the number of registered tables.
func (p *Prioritizer) TableCount() int {
	if p == nil {
		return 0
	}

	return len(p.tables)
}

// Entry returns the catalog entry for a table.
func (p *Prioritizer) Entry(tableName string) (CatalogEntry, bool) {
	if p == nil {
		return CatalogEntry{}, false
	}

	entry, ok := p.tables[tableName]

	return entry, ok
}

// Prioritize scores a table from its catalog entry and downstream
// consumer count. Unregistered tables rank UNKNOWN with score zero
// rather than a misleading LOW.
func (p *Prioritizer) Prioritize(tableName string, downstreamConsumers int) *verdict.TablePriority {
	entry, ok := p.Entry(tableName)
	if !ok {
		return &verdict.TablePriority{
			Score: 0,
			Tier:  TierUnknown,
			Factors: verdict.PriorityFactors{
				Certification:       "none",
				DownstreamConsumers: downstreamConsumers,
			},
			Reason: "Table not registered in metadata",
		}
	}

	sla := entry.SLAHours
	if sla == 0 {
		sla = defaultSLAHours
	}

	score := certificationScore(entry.Certification) +
		float64(downstreamConsumers)*10 +
		logScore(entry.AvgDailyQueries) +
		slaScore(sla)

	priority := &verdict.TablePriority{
		Score: round1(score),
		Factors: verdict.PriorityFactors{
			Certification:       certificationLabel(entry.Certification),
			DownstreamConsumers: downstreamConsumers,
			AvgDailyQueries:     entry.AvgDailyQueries,
			SLAHours:            sla,
		},
	}

	switch {
	case score >= tierCriticalScore:
		priority.Tier = TierCritical
	case score >= tierHighScore:
		priority.Tier = TierHigh
	case score >= tierMediumScore:
		priority.Tier = TierMedium
	default:
		priority.Tier = TierLow
	}

	return priority
}

// ScanCadence suggests how often a tier should be scanned. Informational;
// the batch runner scans whatever it is pointed at.
func ScanCadence(tier string) string {
	switch tier {
	case TierCritical:
		return "Every run"
	case TierHigh:
		return "Hourly"
	case TierMedium:
		return "Daily"
	case TierLow:
		return "Weekly"
	default:
		return "On demand"
	}
}

func certificationScore(certification string) float64 {
	switch certification {
	case "gold":
		return 100
	case "silver":
		return 50
	case "bronze":
		return 25
	default:
		return 0
	}
}

func certificationLabel(certification string) string {
	switch certification {
	case "gold", "silver", "bronze":
		return certification
	default:
		return "none"
	}
}

func logScore(queries int) float64 {
	return math.Log(float64(queries)+1) * 5
}

func slaScore(slaHours float64) float64 {
	return math.Max(0, (24-slaHours)*2)
}
