package comparator

import (
	"math"

	"github.com/aviciot/queryscope/internal/plan"
)

func (c *Comparator) diffNodes(old, new *plan.Node) NodeDelta {
	delta := NodeDelta{
		Object: coalesce(objectName(old), objectName(new)),
	}

	if old.Operation != new.Operation {
		delta.ChangeType = TypeChanged
		delta.OldOperation = old.Operation
		delta.NewOperation = new.Operation
		delta.Operation = new.Operation
	} else {
		delta.ChangeType = Modified
		delta.Operation = old.Operation
	}

	delta.OldCost = old.Cost
	delta.NewCost = new.Cost
	delta.CostDelta = new.Cost - old.Cost
	delta.CostPct = pctChange(old.Cost, new.Cost)
	delta.CostDir = c.direction(old.Cost, new.Cost)

	delta.OldRows = old.Rows
	delta.NewRows = new.Rows
	delta.RowsDelta = new.Rows - old.Rows
	delta.RowsPct = pctChange(float64(old.Rows), float64(new.Rows))
	delta.RowsDir = Unchanged

	delta.OldIndex = old.Index
	delta.NewIndex = new.Index
	delta.OldAccessPredicate = old.AccessPredicate
	delta.NewAccessPredicate = new.AccessPredicate
	delta.OldFilterPredicate = old.FilterPredicate
	delta.NewFilterPredicate = new.FilterPredicate

	if delta.ChangeType == Modified && !c.isSignificant(delta) {
		delta.ChangeType = NoChange
	}

	delta.Children = c.diffChildren(old.Children, new.Children)

	return delta
}

func (c *Comparator) diffChildren(oldKids, newKids []*plan.Node) []NodeDelta {
	var deltas []NodeDelta

	for i := 0; i < max(len(oldKids), len(newKids)); i++ {
		if i >= len(oldKids) {
			deltas = append(deltas, addedNode(newKids[i]))
			continue
		}
		if i >= len(newKids) {
			deltas = append(deltas, removedNode(oldKids[i]))
			continue
		}
		deltas = append(deltas, c.diffNodes(oldKids[i], newKids[i]))
	}

	return deltas
}

func addedNode(node *plan.Node) NodeDelta {
	delta := NodeDelta{
		ChangeType: Added,
		Operation:  node.Operation,
		Object:     objectName(node),
		NewCost:    node.Cost,
		NewRows:    node.Rows,
		NewIndex:   node.Index,
	}

	for _, child := range node.Children {
		delta.Children = append(delta.Children, addedNode(child))
	}

	return delta
}

func removedNode(node *plan.Node) NodeDelta {
	delta := NodeDelta{
		ChangeType: Removed,
		Operation:  node.Operation,
		Object:     objectName(node),
		OldCost:    node.Cost,
		OldRows:    node.Rows,
		OldIndex:   node.Index,
	}

	for _, child := range node.Children {
		delta.Children = append(delta.Children, removedNode(child))
	}

	return delta
}

func (c *Comparator) isSignificant(d NodeDelta) bool {
	if math.Abs(d.CostPct) > c.threshold() {
		return true
	}
	if math.Abs(d.RowsPct) > c.threshold() {
		return true
	}
	if d.OldIndex != d.NewIndex {
		return true
	}
	if d.OldAccessPredicate != d.NewAccessPredicate {
		return true
	}
	if d.OldFilterPredicate != d.NewFilterPredicate {
		return true
	}
	return false
}

func (c *Comparator) direction(old, new float64) Direction {
	if math.Abs(pctChange(old, new)) < c.threshold() {
		return Unchanged
	}
	if new < old {
		return Improved
	}
	return Regressed
}

func objectName(n *plan.Node) string {
	if n.Object == "" {
		return ""
	}
	if n.Owner != "" {
		return n.Owner + "." + n.Object
	}
	return n.Object
}

func pctChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return ((new - old) / old) * 100
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
