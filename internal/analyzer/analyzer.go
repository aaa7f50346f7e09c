// Package analyzer is the anti-pattern rule engine. Each rule maps a plan
// node plus collected object statistics to findings; results are ranked by
// severity, then by plan pre-order position, so output is deterministic for
// identical inputs.
package analyzer

import (
	"sort"

	"github.com/aviciot/queryscope/internal/metadata"
	"github.com/aviciot/queryscope/internal/plan"
)

// Analyze runs all rules over the plan tree. stats may be nil (plan_only
// depth); statistics-dependent rules degrade or stay silent.
func Analyze(tree *plan.Tree, stats *metadata.Set, cfg Config) []Finding {
	if tree == nil || tree.Root == nil {
		return nil
	}

	var findings []Finding
	nodes := tree.PreOrder()
	parents := parentIndex(tree)

	for pos, n := range nodes {
		parent := ruleParent(parents, n)
		for _, rule := range defaultRules {
			findings = append(findings, rule(n, parent, pos, stats, cfg)...)
		}
	}

	findings = append(findings, checkPartitionPruning(tree, stats)...)
	findings = dedupe(findings)

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		return findings[i].Position < findings[j].Position
	})

	return findings
}

func parentIndex(tree *plan.Tree) map[*plan.Node]*plan.Node {
	parents := make(map[*plan.Node]*plan.Node)
	var walk func(n *plan.Node)
	walk = func(n *plan.Node) {
		for _, c := range n.Children {
			parents[c] = n
			walk(c)
		}
	}
	walk(tree.Root)
	return parents
}

// ruleParent climbs through predicate-free wrapper nodes so a rule sees the
// operation that actually consumes the node's output, e.g. the join above a
// Hash build side.
func ruleParent(parents map[*plan.Node]*plan.Node, n *plan.Node) *plan.Node {
	p := parents[n]
	for p != nil && isWrapperOp(p.Operation) {
		p = parents[p]
	}
	return p
}

// dedupe keeps the first finding per (kind, object); scans of the same table
// at several plan positions should not repeat an identical diagnosis.
func dedupe(findings []Finding) []Finding {
	type key struct {
		kind   Kind
		owner  string
		object string
	}
	seen := make(map[key]bool)
	var out []Finding
	for _, f := range findings {
		k := key{f.Kind, f.Owner, f.Object}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}
