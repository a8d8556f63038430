package contract

import (
	"github.com/datawarden-io/datawarden/internal/tabular"
)

// Uniqueness thresholds for inferred constraints, in percent.
const (
	uniqueWarnPct = 99.9
	uniqueHardPct = 100.0
)

// ColumnObservation carries the per-column statistics the inferencer
// needs. Percentages run 0 to 100.
type ColumnObservation struct {
	NullPct   float64
	UniquePct float64
}

// Infer drafts a contract from observed data. The draft is marked with
// status "draft" so a reviewer promotes it explicitly before it gates
// anything.
func Infer(tableName string, table *tabular.Table, observations map[string]ColumnObservation) *Document {
	doc := &Document{
		SpecVersion: SpecVersion,
		ID:          "urn:datacontract:" + tableName,
		TableName:   tableName,
		Info: Info{
			Title:   "Draft Contract for " + tableName,
			Version: "1.0.0",
			Owner:   "data-team",
			Status:  "draft",
		},
		StrictMode: false,
		Quality: Quality{
			Freshness: &Freshness{Threshold: "24h"},
		},
	}

	for _, col := range table.Columns() {
		obs := observations[col.Name()]

		inferred := Column{
			Name:         col.Name(),
			PhysicalType: PhysicalTypeFor(col.DType()),
			Nullable:     obs.NullPct > 0,
			Description:  "Automatically detected column",
		}

		if obs.UniquePct >= uniqueWarnPct {
			inferred.Unique = true

			inferred.Severity = "warning"
			if obs.UniquePct >= uniqueHardPct {
				inferred.Severity = "critical"
			}
		}

		if obs.UniquePct >= uniqueHardPct && obs.NullPct == 0 {
			inferred.IsPrimaryKey = true
			inferred.Nullable = false
		}

		doc.Columns = append(doc.Columns, inferred)
	}

	return doc
}

// PhysicalTypeFor maps an observed column type onto the contract
// vocabulary.
func PhysicalTypeFor(dtype tabular.DType) string {
	switch dtype {
	case tabular.DTypeInt:
		return "int64"
	case tabular.DTypeFloat:
		return "float64"
	case tabular.DTypeBool:
		return "bool"
	case tabular.DTypeTimestamp:
		return "timestamp"
	default:
		return "string"
	}
}
