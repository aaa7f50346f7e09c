package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aviciot/queryscope/internal/qerror"
)

// pgNode mirrors one node of PostgreSQL EXPLAIN (FORMAT JSON) output.
type pgNode struct {
	NodeType           string  `json:"Node Type"`
	Strategy           string  `json:"Strategy,omitempty"`
	ParentRelationship string  `json:"Parent Relationship,omitempty"`
	StartupCost        float64 `json:"Startup Cost"`
	TotalCost          float64 `json:"Total Cost"`
	PlanRows           int64   `json:"Plan Rows"`
	PlanWidth          int64   `json:"Plan Width"`

	Schema       string `json:"Schema,omitempty"`
	RelationName string `json:"Relation Name,omitempty"`
	Alias        string `json:"Alias,omitempty"`
	IndexName    string `json:"Index Name,omitempty"`

	IndexCond   string `json:"Index Cond,omitempty"`
	RecheckCond string `json:"Recheck Cond,omitempty"`
	Filter      string `json:"Filter,omitempty"`
	JoinType    string `json:"Join Type,omitempty"`
	JoinFilter  string `json:"Join Filter,omitempty"`
	HashCond    string `json:"Hash Cond,omitempty"`
	MergeCond   string `json:"Merge Cond,omitempty"`

	CTEName     string   `json:"CTE Name,omitempty"`
	SubplanName string   `json:"Subplan Name,omitempty"`
	SortKey     []string `json:"Sort Key,omitempty"`

	Plans []pgNode `json:"Plans,omitempty"`
}

type pgExplain struct {
	Plan         pgNode  `json:"Plan"`
	PlanningTime float64 `json:"Planning Time,omitempty"`
}

// Parse converts raw EXPLAIN (FORMAT JSON) output into a normalized tree.
// Multiple top-level plans are attached under a synthetic super root.
func Parse(raw []byte) (*Tree, error) {
	var outputs []pgExplain
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return nil, qerror.Wrap(qerror.CollectorError, err,
			"invalid EXPLAIN JSON", "the engine returned malformed plan output")
	}
	if len(outputs) == 0 {
		return nil, qerror.New(qerror.CollectorError,
			"empty EXPLAIN output", "the engine returned no plan for the statement")
	}

	tree := &Tree{PlanningTime: outputs[0].PlanningTime}

	if len(outputs) == 1 {
		tree.Root = convert(&outputs[0].Plan)
	} else {
		root := &Node{Operation: SuperRootOperation}
		for i := range outputs {
			child := convert(&outputs[i].Plan)
			root.Children = append(root.Children, child)
			root.Cost += child.Cost
			root.Rows += child.Rows
		}
		tree.Root = root
	}

	number(tree.Root, nil, idCounter())
	tree.Hash = hashTree(tree)
	return tree, nil
}

func convert(p *pgNode) *Node {
	n := &Node{
		Operation:      p.NodeType,
		Strategy:       p.Strategy,
		Owner:          p.Schema,
		Object:         p.RelationName,
		Alias:          p.Alias,
		Index:          p.IndexName,
		Cost:           p.TotalCost,
		Rows:           p.PlanRows,
		EstimatedBytes: p.PlanRows * p.PlanWidth,
		JoinType:       p.JoinType,
		CTEName:        p.CTEName,
		SubplanName:    p.SubplanName,
	}

	n.AccessPredicate = p.IndexCond
	if n.AccessPredicate == "" {
		n.AccessPredicate = p.RecheckCond
	}
	n.FilterPredicate = p.Filter

	switch {
	case p.HashCond != "":
		n.JoinPredicate = p.HashCond
	case p.MergeCond != "":
		n.JoinPredicate = p.MergeCond
	case p.JoinFilter != "":
		n.JoinPredicate = p.JoinFilter
	}

	// Index scans reference the index, not the table, as the accessed
	// object when the relation name is absent.
	if n.Object == "" && p.IndexName != "" {
		n.Object = p.IndexName
	}

	for i := range p.Plans {
		n.Children = append(n.Children, convert(&p.Plans[i]))
	}
	return n
}

func idCounter() func() int {
	next := 0
	return func() int {
		id := next
		next++
		return id
	}
}

func number(n *Node, parent *Node, next func() int) {
	n.ID = next()
	if parent != nil {
		pid := parent.ID
		n.ParentID = &pid
	}
	for _, c := range n.Children {
		number(c, n, next)
	}
}

// hashTree digests the structural shape of the plan: operations, objects and
// indexes in pre-order. Costs and row estimates are deliberately excluded so
// the hash identifies the strategy, not the statistics of the day.
func hashTree(t *Tree) string {
	var b strings.Builder
	for _, n := range t.PreOrder() {
		fmt.Fprintf(&b, "%s|%s|%s|%s|%s\n",
			n.Operation, n.Strategy, n.Owner, n.Object, n.Index)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
