// Package metadata fetches catalog statistics for objects that appear in a
// parsed plan. Collection is gated by analysis depth and degrades gracefully
// when optional catalog sources are unavailable.
package metadata

import (
	"time"
)

type SelectivityClass string

const (
	SelectivityHigh   SelectivityClass = "HIGH"
	SelectivityMedium SelectivityClass = "MEDIUM"
	SelectivityLow    SelectivityClass = "LOW"
)

// ColumnStats carries per-column cardinality data from the catalog. Indexes
// is only populated by compact minimization, which folds the table's index
// list into the columns it covers.
type ColumnStats struct {
	Name        string           `json:"name"`
	NDistinct   float64          `json:"n_distinct,omitempty"`
	NullFrac    float64          `json:"null_frac,omitempty"`
	Selectivity SelectivityClass `json:"selectivity,omitempty"`
	Indexes     []string         `json:"indexes,omitempty"`
}

// IndexDef describes one index with its column list merged in.
type IndexDef struct {
	Name        string           `json:"name"`
	Columns     []string         `json:"columns"`
	Unique      bool             `json:"unique,omitempty"`
	Selectivity SelectivityClass `json:"selectivity,omitempty"`
}

// Constraint is a primary key, foreign key or unique constraint.
type Constraint struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Columns []string `json:"columns,omitempty"`
}

// PartitionInfo describes the partitioning scheme of a table.
type PartitionInfo struct {
	Key      []string `json:"key,omitempty"`
	Count    int      `json:"count,omitempty"`
	Children []string `json:"children,omitempty"`
}

// TableStats aggregates everything the detector and the history store need
// to know about one relation.
type TableStats struct {
	Owner        string     `json:"owner,omitempty"`
	Name         string     `json:"name"`
	Kind         string     `json:"kind,omitempty"`
	RowCount     int64      `json:"row_count"`
	Blocks       int64      `json:"blocks,omitempty"`
	SizeBytes    int64      `json:"size_bytes,omitempty"`
	LastAnalyzed *time.Time `json:"last_analyzed,omitempty"`

	Partitioned bool           `json:"partitioned,omitempty"`
	Partition   *PartitionInfo `json:"partition,omitempty"`

	Columns     []ColumnStats `json:"columns,omitempty"`
	Indexes     []IndexDef    `json:"indexes,omitempty"`
	Constraints []Constraint  `json:"constraints,omitempty"`
}

// Set is the result of one metadata collection pass.
type Set struct {
	Tables          map[string]*TableStats `json:"tables,omitempty"`
	PlannerSettings map[string]string      `json:"planner_settings,omitempty"`
	Notices         []string               `json:"notices,omitempty"`
}

// Lookup finds stats for an object by owner and name, falling back to a
// name-only match when the plan did not report a schema.
func (s *Set) Lookup(owner, name string) *TableStats {
	if s == nil || len(s.Tables) == 0 {
		return nil
	}
	if owner != "" {
		if t, ok := s.Tables[owner+"."+name]; ok {
			return t
		}
	}
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ClassifySelectivity buckets a column's distinct count against the table
// row count. Negative nDistinct follows the catalog convention of a fraction
// of rows.
func ClassifySelectivity(nDistinct float64, rowCount int64) SelectivityClass {
	if rowCount <= 0 {
		return SelectivityMedium
	}
	distinct := nDistinct
	if distinct < 0 {
		distinct = -distinct * float64(rowCount)
	}
	ratio := distinct / float64(rowCount)
	switch {
	case ratio >= 0.8:
		return SelectivityHigh
	case ratio >= 0.01:
		return SelectivityMedium
	default:
		return SelectivityLow
	}
}
