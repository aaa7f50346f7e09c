package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/aviciot/queryscope/internal/metadata"
	"github.com/aviciot/queryscope/internal/plan"
)

const (
	// full_scan fires above this row count; severity scales by bucket.
	MinRowsForFullScan   = 10_000
	FullScanMediumRows   = 100_000
	FullScanHighRows     = 1_000_000
	FullScanCriticalRows = 10_000_000

	// cartesian fires when output cardinality exceeds this multiple of the
	// larger input.
	CartesianBlowupFactor = 10

	// DefaultStaleStatsAfter is the stale_stats threshold when the config
	// does not override it.
	DefaultStaleStatsAfter = 30 * 24 * time.Hour
)

// Config carries tunable rule thresholds.
type Config struct {
	StaleStatsAfter time.Duration
	Now             func() time.Time
}

func (c Config) staleAfter() time.Duration {
	if c.StaleStatsAfter > 0 {
		return c.StaleStatsAfter
	}
	return DefaultStaleStatsAfter
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Rule maps one plan node plus collected statistics to zero or more
// findings. pos is the node's pre-order position.
type Rule func(n *plan.Node, parent *plan.Node, pos int, stats *metadata.Set, cfg Config) []Finding

var defaultRules = []Rule{
	checkFullScan,
	checkCartesian,
	checkStaleStats,
	checkUnusedIndex,
}

func checkFullScan(n *plan.Node, parent *plan.Node, pos int, stats *metadata.Set, cfg Config) []Finding {
	if !n.IsFullScan() || n.Object == "" {
		return nil
	}

	rows := n.Rows
	estimateOnly := true
	if t := stats.Lookup(n.Owner, n.Object); t != nil && t.RowCount > 0 {
		rows = t.RowCount
		estimateOnly = false
	}
	if rows <= MinRowsForFullScan {
		return nil
	}

	severity := Low
	switch {
	case rows >= FullScanCriticalRows:
		severity = Critical
	case rows >= FullScanHighRows:
		severity = High
	case rows >= FullScanMediumRows:
		severity = Medium
	}

	evidence := fmt.Sprintf("full scan of %s (%s rows)", objectLabel(n), formatRows(rows))
	if estimateOnly {
		evidence += ", planner estimate"
	}
	if n.FilterPredicate != "" {
		evidence += fmt.Sprintf(", filter %s", n.FilterPredicate)
	}

	fix := fmt.Sprintf("add an index on %s covering the filter condition", n.Object)
	if cols := ExtractConditionColumns(n.FilterPredicate); len(cols) > 0 {
		fix = fmt.Sprintf("consider an index on %s(%s)", n.Object, strings.Join(cols, ", "))
	}

	return []Finding{{
		Kind:     KindFullScan,
		Severity: severity,
		Owner:    n.Owner,
		Object:   n.Object,
		Position: pos,
		Evidence: evidence,
		Fix:      fix,
	}}
}

func checkCartesian(n *plan.Node, parent *plan.Node, pos int, stats *metadata.Set, cfg Config) []Finding {
	if !n.IsJoin() || n.JoinPredicate != "" {
		return nil
	}
	if len(n.Children) < 2 {
		return nil
	}

	outer := joinInput(n.Children[0])
	inner := joinInput(n.Children[1])

	// A parameterized inner lookup carries the join condition as an access
	// predicate, which is not a cartesian product.
	if inner.AccessPredicate != "" || outer.AccessPredicate != "" {
		return nil
	}

	left, right := outer.Rows, inner.Rows
	maxInput := max(left, right)
	blowup := maxInput > 0 && n.Rows >= CartesianBlowupFactor*maxInput
	product := left > 0 && right > 0 && n.Rows >= left*right

	if !blowup && !product {
		return nil
	}

	return []Finding{{
		Kind:     KindCartesian,
		Severity: Critical,
		Owner:    outer.Owner,
		Object:   outer.Object,
		Position: pos,
		Evidence: fmt.Sprintf("%s with no join predicate produces %s rows from inputs of %s and %s",
			n.Operation, formatRows(n.Rows), formatRows(left), formatRows(right)),
		Fix: "add a join condition between the two tables; a cartesian product multiplies every row of one input by every row of the other",
	}}
}

// isWrapperOp reports whether the operation only reshapes a single input
// without carrying its own predicates.
func isWrapperOp(op string) bool {
	switch op {
	case "Hash", "Sort", "Materialize", "Gather", "Gather Merge", "Memoize":
		return true
	}
	return false
}

// joinInput looks through single-child wrapper nodes (Hash, Sort,
// Materialize, Gather) to the operation that feeds a join side.
func joinInput(n *plan.Node) *plan.Node {
	for isWrapperOp(n.Operation) && len(n.Children) == 1 {
		n = n.Children[0]
	}
	return n
}

func checkStaleStats(n *plan.Node, parent *plan.Node, pos int, stats *metadata.Set, cfg Config) []Finding {
	if !n.IsScan() || n.Object == "" {
		return nil
	}
	t := stats.Lookup(n.Owner, n.Object)
	if t == nil {
		return nil
	}

	var evidence string
	switch {
	case t.LastAnalyzed == nil:
		evidence = fmt.Sprintf("%s has never been analyzed", objectLabel(n))
	case cfg.now().Sub(*t.LastAnalyzed) > cfg.staleAfter():
		age := cfg.now().Sub(*t.LastAnalyzed)
		evidence = fmt.Sprintf("statistics on %s are %d days old (threshold %d)",
			objectLabel(n), int(age.Hours()/24), int(cfg.staleAfter().Hours()/24))
	default:
		return nil
	}

	return []Finding{{
		Kind:     KindStaleStats,
		Severity: Medium,
		Owner:    n.Owner,
		Object:   n.Object,
		Position: pos,
		Evidence: evidence,
		Fix:      fmt.Sprintf("re-gather statistics: ANALYZE %s", n.Object),
	}}
}

func checkUnusedIndex(n *plan.Node, parent *plan.Node, pos int, stats *metadata.Set, cfg Config) []Finding {
	if !n.IsFullScan() || n.Object == "" {
		return nil
	}
	t := stats.Lookup(n.Owner, n.Object)
	if t == nil || len(t.Indexes) == 0 {
		return nil
	}

	// Candidate columns come from the scan's own filter and, when the scan
	// feeds a join, from the join condition on the consuming node.
	condCols := ExtractConditionColumns(n.FilterPredicate)
	if parent != nil && parent.IsJoin() {
		condCols = append(condCols, ExtractConditionColumns(parent.JoinPredicate)...)
	}
	if len(condCols) == 0 {
		return nil
	}

	var candidate *metadata.IndexDef
	for i := range t.Indexes {
		idx := &t.Indexes[i]
		if len(idx.Columns) == 0 {
			continue
		}
		for _, col := range condCols {
			if strings.EqualFold(idx.Columns[0], col) {
				candidate = idx
				break
			}
		}
		if candidate != nil {
			break
		}
	}
	if candidate == nil {
		return nil
	}

	return []Finding{{
		Kind:     KindUnusedIndex,
		Severity: Medium,
		Owner:    n.Owner,
		Object:   n.Object,
		Position: pos,
		Evidence: fmt.Sprintf("index %s (%s) matches a condition on %s but the plan performs a full scan",
			candidate.Name, strings.Join(candidate.Columns, ", "), objectLabel(n)),
		Fix: "candidate causes: implicit type conversion in the predicate, a function wrapping the indexed column, or low index selectivity",
	}}
}

// checkPartitionPruning is tree-scoped rather than node-scoped: it needs the
// set of partitions a plan touches.
func checkPartitionPruning(tree *plan.Tree, stats *metadata.Set) []Finding {
	if stats == nil || len(stats.Tables) == 0 {
		return nil
	}

	nodes := tree.PreOrder()
	var findings []Finding

	for _, t := range stats.Tables {
		if !t.Partitioned || t.Partition == nil || t.Partition.Count == 0 {
			continue
		}

		children := make(map[string]bool, len(t.Partition.Children))
		for _, c := range t.Partition.Children {
			children[strings.ToLower(c)] = true
		}

		scanned := make(map[string]bool)
		firstPos := -1
		var predicates []string
		for pos, n := range nodes {
			if n.Object != "" && (children[strings.ToLower(n.Object)] || strings.EqualFold(n.Object, t.Name)) {
				if n.IsScan() {
					scanned[strings.ToLower(n.Object)] = true
					if firstPos < 0 {
						firstPos = pos
					}
				}
			}
			if n.AccessPredicate != "" {
				predicates = append(predicates, n.AccessPredicate)
			}
			if n.FilterPredicate != "" {
				predicates = append(predicates, n.FilterPredicate)
			}
		}

		if len(scanned) < t.Partition.Count {
			continue
		}

		keyReferenced := false
		for _, key := range t.Partition.Key {
			for _, pred := range predicates {
				if conditionReferencesColumn(pred, key) {
					keyReferenced = true
					break
				}
			}
		}
		if !keyReferenced {
			continue
		}

		if firstPos < 0 {
			firstPos = 0
		}
		findings = append(findings, Finding{
			Kind:     KindPartitionPruneFail,
			Severity: High,
			Owner:    t.Owner,
			Object:   t.Name,
			Position: firstPos,
			Evidence: fmt.Sprintf("all %d partitions of %s scanned although the predicate references partition key (%s)",
				t.Partition.Count, t.Name, strings.Join(t.Partition.Key, ", ")),
			Fix: "candidate causes: function applied to the partition key, implicit type conversion, or a predicate shape the planner cannot prune on",
		})
	}
	return findings
}

func objectLabel(n *plan.Node) string {
	return plan.ObjectRef{Owner: n.Owner, Name: n.Object}.String()
}

func formatRows(rows int64) string {
	switch {
	case rows >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(rows)/1_000_000)
	case rows >= 1_000:
		return fmt.Sprintf("%.1fK", float64(rows)/1_000)
	default:
		return fmt.Sprintf("%d", rows)
	}
}
