package comparator

type Direction int

const (
	Unchanged Direction = 0
	Improved  Direction = 1
	Regressed Direction = 2

	// SignificanceThresholdPct is the default band below which a cost or
	// row change is reported as unchanged.
	SignificanceThresholdPct = 1.0
)

func (d Direction) String() string {
	switch d {
	case Improved:
		return "improved"
	case Regressed:
		return "regressed"
	default:
		return "unchanged"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type ChangeType int

const (
	NoChange    ChangeType = 0
	Modified    ChangeType = 1
	Added       ChangeType = 2
	Removed     ChangeType = 3
	TypeChanged ChangeType = 4
)

func (c ChangeType) String() string {
	switch c {
	case Modified:
		return "modified"
	case Added:
		return "added"
	case Removed:
		return "removed"
	case TypeChanged:
		return "type_changed"
	default:
		return "no_change"
	}
}

func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// NodeDelta describes how one plan position differs between the two
// candidate queries. Only planner estimates are compared; neither query is
// executed.
type NodeDelta struct {
	Operation  string     `json:"operation"`
	Object     string     `json:"object,omitempty"`
	ChangeType ChangeType `json:"change_type"`

	OldOperation string `json:"old_operation,omitempty"`
	NewOperation string `json:"new_operation,omitempty"`

	OldCost   float64   `json:"old_cost"`
	NewCost   float64   `json:"new_cost"`
	CostDelta float64   `json:"cost_delta"`
	CostPct   float64   `json:"cost_pct"`
	CostDir   Direction `json:"cost_dir"`

	OldRows   int64     `json:"old_rows"`
	NewRows   int64     `json:"new_rows"`
	RowsDelta int64     `json:"rows_delta"`
	RowsPct   float64   `json:"rows_pct"`
	RowsDir   Direction `json:"rows_dir"`

	OldIndex string `json:"old_index,omitempty"`
	NewIndex string `json:"new_index,omitempty"`

	OldAccessPredicate string `json:"old_access_predicate,omitempty"`
	NewAccessPredicate string `json:"new_access_predicate,omitempty"`
	OldFilterPredicate string `json:"old_filter_predicate,omitempty"`
	NewFilterPredicate string `json:"new_filter_predicate,omitempty"`

	Children []NodeDelta `json:"children,omitempty"`
}

type ComparisonResult struct {
	Deltas  []NodeDelta `json:"deltas"`
	Summary Summary     `json:"summary"`
}

type Summary struct {
	OldTotalCost float64   `json:"old_total_cost"`
	NewTotalCost float64   `json:"new_total_cost"`
	CostDelta    float64   `json:"cost_delta"`
	CostPct      float64   `json:"cost_pct"`
	CostDir      Direction `json:"cost_dir"`

	OldPlanHash string `json:"old_plan_hash"`
	NewPlanHash string `json:"new_plan_hash"`
	PlanChanged bool   `json:"plan_changed"`

	NodesAdded       int `json:"nodes_added"`
	NodesRemoved     int `json:"nodes_removed"`
	NodesModified    int `json:"nodes_modified"`
	NodesTypeChanged int `json:"nodes_type_changed"`

	Verdict string `json:"verdict"`
}
