// Package comparator diffs the estimated plans of two candidate queries.
// Both plans come from EXPLAIN without execution, so the comparison is over
// planner estimates, never measured runtimes.
package comparator

import (
	"fmt"

	"github.com/aviciot/queryscope/internal/plan"
)

type Comparator struct {
	// Threshold is the minimum percentage change treated as significant.
	// Zero means SignificanceThresholdPct.
	Threshold float64
}

func (c *Comparator) threshold() float64 {
	if c.Threshold > 0 {
		return c.Threshold
	}
	return SignificanceThresholdPct
}

func (c *Comparator) Compare(old, new *plan.Tree) ComparisonResult {
	rootDelta := c.diffNodes(old.Root, new.Root)

	summary := Summary{
		OldTotalCost: old.Root.Cost,
		NewTotalCost: new.Root.Cost,
		CostDelta:    new.Root.Cost - old.Root.Cost,
		CostPct:      pctChange(old.Root.Cost, new.Root.Cost),
		CostDir:      c.direction(old.Root.Cost, new.Root.Cost),

		OldPlanHash: old.Hash,
		NewPlanHash: new.Hash,
		PlanChanged: old.Hash != new.Hash,
	}

	countChanges(&rootDelta, &summary)
	summary.Verdict = verdict(summary)

	return ComparisonResult{
		Deltas:  []NodeDelta{rootDelta},
		Summary: summary,
	}
}

func countChanges(delta *NodeDelta, summary *Summary) {
	switch delta.ChangeType {
	case Added:
		summary.NodesAdded++
	case Removed:
		summary.NodesRemoved++
	case Modified:
		summary.NodesModified++
	case TypeChanged:
		summary.NodesTypeChanged++
	}

	for i := range delta.Children {
		countChanges(&delta.Children[i], summary)
	}
}

func verdict(s Summary) string {
	switch {
	case s.CostDir == Improved && s.PlanChanged:
		return fmt.Sprintf("candidate B uses a different plan and is estimated %.0f%% cheaper", -s.CostPct)
	case s.CostDir == Improved:
		return fmt.Sprintf("candidate B is estimated %.0f%% cheaper with the same plan shape", -s.CostPct)
	case s.CostDir == Regressed && s.PlanChanged:
		return fmt.Sprintf("candidate B uses a different plan and is estimated %.0f%% more expensive", s.CostPct)
	case s.CostDir == Regressed:
		return fmt.Sprintf("candidate B is estimated %.0f%% more expensive with the same plan shape", s.CostPct)
	case s.PlanChanged:
		return "plan shapes differ but estimated costs are equivalent"
	default:
		return "the candidates are equivalent in plan shape and estimated cost"
	}
}
