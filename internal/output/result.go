// Package output shapes analysis results for JSON and terminal consumers.
// Presets trade completeness for size; the SQL text itself is never
// truncated or reformatted regardless of preset.
package output

import (
	"github.com/aviciot/queryscope/internal/analyzer"
	"github.com/aviciot/queryscope/internal/comparator"
	"github.com/aviciot/queryscope/internal/history"
	"github.com/aviciot/queryscope/internal/metadata"
	"github.com/aviciot/queryscope/internal/plan"
)

// AnalysisResult is the full envelope for one analyze run.
type AnalysisResult struct {
	Fingerprint string `json:"fingerprint"`
	DBName      string `json:"db_name"`
	Depth       Depth  `json:"depth"`
	PresetUsed  Preset `json:"preset_used"`

	// SQLText is the query exactly as submitted.
	SQLText    string `json:"sql_text"`
	Normalized string `json:"normalized_sql,omitempty"`

	// ReferencedTables is a textual FROM/JOIN scan of the statement,
	// informational only; metadata collection works off the plan's objects.
	ReferencedTables []string `json:"referenced_tables,omitempty"`

	PlanHash  string     `json:"plan_hash,omitempty"`
	TotalCost float64    `json:"total_cost,omitempty"`
	Plan      *plan.Tree `json:"plan,omitempty"`
	PlanText  string     `json:"plan_text,omitempty"`

	Findings []analyzer.Finding `json:"findings"`

	Metadata *metadata.Set `json:"metadata,omitempty"`

	RegressionVerdict *history.RegressionVerdict  `json:"regression_verdict,omitempty"`
	Summary           *history.PerformanceSummary `json:"performance_summary,omitempty"`

	Notices []string `json:"notices,omitempty"`
}

// ComparisonEnvelope wraps a two-candidate comparison.
type ComparisonEnvelope struct {
	DBName string `json:"db_name"`

	FingerprintA string `json:"fingerprint_a"`
	FingerprintB string `json:"fingerprint_b"`
	SQLTextA     string `json:"sql_text_a"`
	SQLTextB     string `json:"sql_text_b"`

	PlanTextA string `json:"plan_text_a,omitempty"`
	PlanTextB string `json:"plan_text_b,omitempty"`

	Result comparator.ComparisonResult `json:"result"`

	Notices []string `json:"notices,omitempty"`
}

// Minimize returns a copy of the result reduced to the preset. Minimizing an
// already-minimized result is a no-op, so downgrade decisions can be applied
// after a first rendering pass.
func (r AnalysisResult) Minimize(p Preset) AnalysisResult {
	out := r
	out.PresetUsed = p

	if p == PresetStandard {
		return out
	}

	// compact: keep the rendered tree but drop the structured plan and the
	// raw per-column numbers; selectivity labels carry the signal.
	out.Plan = nil
	out.Normalized = ""
	out.Metadata = compactMetadata(out.Metadata)

	if p == PresetMinimal {
		out.PlanText = ""
		out.Metadata = nil
		out.Summary = nil
		out.ReferencedTables = nil
	}

	return out
}

// compactMetadata strips raw cardinality numbers, keeping classification
// labels and structural facts only.
func compactMetadata(set *metadata.Set) *metadata.Set {
	if set == nil {
		return nil
	}

	out := &metadata.Set{
		PlannerSettings: set.PlannerSettings,
		Notices:         set.Notices,
	}
	if set.Tables != nil {
		out.Tables = make(map[string]*metadata.TableStats, len(set.Tables))
	}
	for key, t := range set.Tables {
		ct := *t
		ct.Blocks = 0
		ct.SizeBytes = 0
		ct.Constraints = nil

		// Index defs fold into the columns they cover; the standalone list
		// goes away. A second pass sees no index list and keeps the merged
		// column annotations as-is.
		ct.Columns = make([]metadata.ColumnStats, len(t.Columns))
		covered := make(map[string]bool, len(t.Columns))
		for i, col := range t.Columns {
			covered[col.Name] = true
			ct.Columns[i] = metadata.ColumnStats{
				Name:        col.Name,
				Selectivity: col.Selectivity,
				Indexes:     indexesOn(t.Indexes, col.Name, col.Indexes),
			}
		}
		for _, idx := range t.Indexes {
			if len(idx.Columns) == 0 || covered[idx.Columns[0]] {
				continue
			}
			lead := idx.Columns[0]
			covered[lead] = true
			ct.Columns = append(ct.Columns, metadata.ColumnStats{
				Name:    lead,
				Indexes: indexesOn(t.Indexes, lead, nil),
			})
		}
		ct.Indexes = nil
		out.Tables[key] = &ct
	}
	return out
}

// indexesOn lists the names of indexes covering column. When the table has
// no index list (already minimized), prior keeps what an earlier pass merged.
func indexesOn(indexes []metadata.IndexDef, column string, prior []string) []string {
	if len(indexes) == 0 {
		return prior
	}
	var names []string
	for _, idx := range indexes {
		for _, c := range idx.Columns {
			if c == column {
				names = append(names, idx.Name)
				break
			}
		}
	}
	return names
}
