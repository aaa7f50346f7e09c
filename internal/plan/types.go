package plan

// Node is one operation in a normalized execution plan. IDs are assigned in
// pre-order, so rendering and rule evaluation see nodes in the same stable
// order for identical raw input.
type Node struct {
	ID       int  `json:"id"`
	ParentID *int `json:"parent_id,omitempty"`

	Operation string `json:"operation"`
	Strategy  string `json:"strategy,omitempty"`

	Owner  string `json:"owner,omitempty"`
	Object string `json:"object,omitempty"`
	Alias  string `json:"alias,omitempty"`
	Index  string `json:"index,omitempty"`

	Cost           float64 `json:"cost"`
	Rows           int64   `json:"rows"`
	EstimatedBytes int64   `json:"estimated_bytes,omitempty"`

	AccessPredicate string `json:"access_predicate,omitempty"`
	FilterPredicate string `json:"filter_predicate,omitempty"`
	JoinType        string `json:"join_type,omitempty"`
	JoinPredicate   string `json:"join_predicate,omitempty"`

	CTEName     string `json:"cte_name,omitempty"`
	SubplanName string `json:"subplan_name,omitempty"`

	Children []*Node `json:"children,omitempty"`
}

// Tree is a parsed plan with deterministic pre-order node numbering.
type Tree struct {
	Root         *Node   `json:"root"`
	PlanningTime float64 `json:"planning_time_ms,omitempty"`
	Hash         string  `json:"hash"`
}

// SuperRootOperation names the synthetic node used when raw explain output
// contains more than one top-level plan.
const SuperRootOperation = "Super Root"

// PreOrder returns the nodes of t in pre-order. The synthetic super root,
// when present, is included at position 0.
func (t *Tree) PreOrder() []*Node {
	var nodes []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		nodes = append(nodes, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	if t.Root != nil {
		walk(t.Root)
	}
	return nodes
}

// Operations returns the operation labels in pre-order, used for history
// snapshots.
func (t *Tree) Operations() []string {
	var ops []string
	for _, n := range t.PreOrder() {
		label := n.Operation
		if n.Strategy != "" {
			label += " " + n.Strategy
		}
		ops = append(ops, label)
	}
	return ops
}

// Objects returns the distinct (owner, object) pairs referenced by the plan
// in order of first appearance. The plan is authoritative over any SQL-text
// parsing when deciding what metadata to collect.
func (t *Tree) Objects() []ObjectRef {
	seen := make(map[ObjectRef]bool)
	var refs []ObjectRef
	for _, n := range t.PreOrder() {
		if n.Object == "" {
			continue
		}
		ref := ObjectRef{Owner: n.Owner, Name: n.Object}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// ObjectRef identifies a table or index by owner and name. Owner may be
// empty when the engine did not report a schema.
type ObjectRef struct {
	Owner string `json:"owner,omitempty"`
	Name  string `json:"name"`
}

func (r ObjectRef) String() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "." + r.Name
}

// IsScan reports whether n reads from a relation.
func (n *Node) IsScan() bool {
	switch n.Operation {
	case "Seq Scan", "Index Scan", "Index Only Scan", "Bitmap Heap Scan",
		"Tid Scan", "Foreign Scan", "CTE Scan":
		return true
	}
	return false
}

// IsFullScan reports whether n reads an entire relation.
func (n *Node) IsFullScan() bool {
	return n.Operation == "Seq Scan"
}

// IsJoin reports whether n combines two inputs.
func (n *Node) IsJoin() bool {
	switch n.Operation {
	case "Nested Loop", "Hash Join", "Merge Join":
		return true
	}
	return false
}
