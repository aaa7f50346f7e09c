package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/aviciot/queryscope/internal/metadata"
	"github.com/aviciot/queryscope/internal/plan"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func testConfig() Config {
	return Config{Now: fixedNow}
}

func treeOf(root *plan.Node) *plan.Tree {
	t := &plan.Tree{Root: root}
	id := 0
	var walk func(n *plan.Node, parent *plan.Node)
	walk = func(n *plan.Node, parent *plan.Node) {
		n.ID = id
		id++
		if parent != nil {
			pid := parent.ID
			n.ParentID = &pid
		}
		for _, c := range n.Children {
			walk(c, n)
		}
	}
	walk(root, nil)
	return t
}

func statsFor(tables ...*metadata.TableStats) *metadata.Set {
	set := &metadata.Set{Tables: make(map[string]*metadata.TableStats)}
	for _, t := range tables {
		key := t.Name
		if t.Owner != "" {
			key = t.Owner + "." + t.Name
		}
		set.Tables[key] = t
	}
	return set
}

func analyzed(t *testing.T, tree *plan.Tree, stats *metadata.Set) []Finding {
	t.Helper()
	return Analyze(tree, stats, testConfig())
}

func findByKind(findings []Finding, kind Kind) *Finding {
	for i := range findings {
		if findings[i].Kind == kind {
			return &findings[i]
		}
	}
	return nil
}

func recentAnalyze() *time.Time {
	ts := fixedNow().Add(-24 * time.Hour)
	return &ts
}

func TestFullScan_SeverityFromTableRows(t *testing.T) {
	cases := []struct {
		rows int64
		want Severity
	}{
		{50_000, Low},
		{500_000, Medium},
		{5_000_000, High},
		{50_000_000, Critical},
	}
	for _, tc := range cases {
		tree := treeOf(&plan.Node{
			Operation:       "Seq Scan",
			Owner:           "public",
			Object:          "orders",
			Rows:            1000,
			FilterPredicate: "(status = 'open'::text)",
		})
		stats := statsFor(&metadata.TableStats{
			Owner: "public", Name: "orders",
			RowCount: tc.rows, LastAnalyzed: recentAnalyze(),
		})

		f := findByKind(analyzed(t, tree, stats), KindFullScan)
		if f == nil {
			t.Fatalf("rows=%d: no full_scan finding", tc.rows)
		}
		if f.Severity != tc.want {
			t.Errorf("rows=%d: severity = %v, want %v", tc.rows, f.Severity, tc.want)
		}
	}
}

func TestFullScan_SmallTableIgnored(t *testing.T) {
	tree := treeOf(&plan.Node{Operation: "Seq Scan", Object: "tiny", Rows: 50})
	stats := statsFor(&metadata.TableStats{
		Name: "tiny", RowCount: 500, LastAnalyzed: recentAnalyze(),
	})
	if f := findByKind(analyzed(t, tree, stats), KindFullScan); f != nil {
		t.Errorf("unexpected finding for a 500-row table: %+v", f)
	}
}

func TestFullScan_PlannerEstimateFallback(t *testing.T) {
	tree := treeOf(&plan.Node{Operation: "Seq Scan", Object: "orders", Rows: 5_000_000})

	f := findByKind(analyzed(t, tree, nil), KindFullScan)
	if f == nil {
		t.Fatal("no finding without metadata")
	}
	if f.Severity != High {
		t.Errorf("severity = %v, want High from the 5M planner estimate", f.Severity)
	}
	if !strings.Contains(f.Evidence, "planner estimate") {
		t.Errorf("evidence should flag estimate-only data: %q", f.Evidence)
	}
}

func TestFullScan_FixNamesFilterColumns(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation:       "Seq Scan",
		Object:          "orders",
		Rows:            200_000,
		FilterPredicate: "((orders.status)::text = 'open'::text)",
	})
	f := findByKind(analyzed(t, tree, nil), KindFullScan)
	if f == nil {
		t.Fatal("no finding")
	}
	if !strings.Contains(f.Fix, "status") {
		t.Errorf("fix should name the filter column: %q", f.Fix)
	}
}

func TestCartesian_NoPredicateWithBlowup(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation: "Nested Loop",
		Rows:      1_000_000,
		Children: []*plan.Node{
			{Operation: "Seq Scan", Object: "a", Rows: 1000},
			{Operation: "Materialize", Children: []*plan.Node{
				{Operation: "Seq Scan", Object: "b", Rows: 1000},
			}},
		},
	})

	f := findByKind(analyzed(t, tree, nil), KindCartesian)
	if f == nil {
		t.Fatal("no cartesian finding")
	}
	if f.Severity != Critical {
		t.Errorf("severity = %v, want Critical", f.Severity)
	}
}

func TestCartesian_JoinPredicateSuppresses(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation:     "Hash Join",
		JoinPredicate: "(a.id = b.a_id)",
		Rows:          1_000_000,
		Children: []*plan.Node{
			{Operation: "Seq Scan", Object: "a", Rows: 1000},
			{Operation: "Hash", Children: []*plan.Node{
				{Operation: "Seq Scan", Object: "b", Rows: 1000},
			}},
		},
	})
	if f := findByKind(analyzed(t, tree, nil), KindCartesian); f != nil {
		t.Errorf("join with a predicate flagged as cartesian: %+v", f)
	}
}

func TestCartesian_ParameterizedLookupSuppresses(t *testing.T) {
	// Nested loop with an inner index lookup carries the join condition as
	// the inner access predicate, not on the join node.
	tree := treeOf(&plan.Node{
		Operation: "Nested Loop",
		Rows:      100_000,
		Children: []*plan.Node{
			{Operation: "Seq Scan", Object: "a", Rows: 1000},
			{Operation: "Index Scan", Object: "b", Index: "b_pkey",
				AccessPredicate: "(b.a_id = a.id)", Rows: 100},
		},
	})
	if f := findByKind(analyzed(t, tree, nil), KindCartesian); f != nil {
		t.Errorf("parameterized nested loop flagged as cartesian: %+v", f)
	}
}

func TestStaleStats_OldAnalyze(t *testing.T) {
	old := fixedNow().Add(-45 * 24 * time.Hour)
	tree := treeOf(&plan.Node{Operation: "Seq Scan", Object: "orders", Rows: 10})
	stats := statsFor(&metadata.TableStats{
		Name: "orders", RowCount: 100, LastAnalyzed: &old,
	})

	f := findByKind(analyzed(t, tree, stats), KindStaleStats)
	if f == nil {
		t.Fatal("no stale_stats finding for 45-day-old statistics")
	}
	if f.Severity != Medium {
		t.Errorf("severity = %v, want Medium", f.Severity)
	}
	if !strings.Contains(f.Evidence, "45 days") {
		t.Errorf("evidence should state the age: %q", f.Evidence)
	}
}

func TestStaleStats_NeverAnalyzed(t *testing.T) {
	tree := treeOf(&plan.Node{Operation: "Index Scan", Object: "orders", Rows: 10})
	stats := statsFor(&metadata.TableStats{Name: "orders", RowCount: 100})

	f := findByKind(analyzed(t, tree, stats), KindStaleStats)
	if f == nil {
		t.Fatal("no finding for a never-analyzed table")
	}
	if !strings.Contains(f.Evidence, "never been analyzed") {
		t.Errorf("evidence = %q", f.Evidence)
	}
}

func TestStaleStats_ConfigurableThreshold(t *testing.T) {
	old := fixedNow().Add(-10 * 24 * time.Hour)
	tree := treeOf(&plan.Node{Operation: "Seq Scan", Object: "orders", Rows: 10})
	stats := statsFor(&metadata.TableStats{Name: "orders", RowCount: 100, LastAnalyzed: &old})

	cfg := Config{Now: fixedNow, StaleStatsAfter: 7 * 24 * time.Hour}
	if f := findByKind(Analyze(tree, stats, cfg), KindStaleStats); f == nil {
		t.Error("10-day-old stats should be stale with a 7-day threshold")
	}

	if f := findByKind(Analyze(tree, stats, testConfig()), KindStaleStats); f != nil {
		t.Error("10-day-old stats flagged under the default 30-day threshold")
	}
}

func TestUnusedIndex_LeadingColumnMatch(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation:       "Seq Scan",
		Object:          "orders",
		Rows:            100,
		FilterPredicate: "((orders.customer_id)::numeric = 42)",
	})
	stats := statsFor(&metadata.TableStats{
		Name: "orders", RowCount: 5000, LastAnalyzed: recentAnalyze(),
		Indexes: []metadata.IndexDef{
			{Name: "orders_customer_idx", Columns: []string{"customer_id", "created_at"}},
		},
	})

	f := findByKind(analyzed(t, tree, stats), KindUnusedIndex)
	if f == nil {
		t.Fatal("no unused_index finding")
	}
	if !strings.Contains(f.Evidence, "orders_customer_idx") {
		t.Errorf("evidence should name the index: %q", f.Evidence)
	}
}

func TestUnusedIndex_NonLeadingColumnIgnored(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation:       "Seq Scan",
		Object:          "orders",
		Rows:            100,
		FilterPredicate: "(orders.created_at > '2026-01-01'::date)",
	})
	stats := statsFor(&metadata.TableStats{
		Name: "orders", RowCount: 5000, LastAnalyzed: recentAnalyze(),
		Indexes: []metadata.IndexDef{
			{Name: "orders_customer_idx", Columns: []string{"customer_id", "created_at"}},
		},
	})
	if f := findByKind(analyzed(t, tree, stats), KindUnusedIndex); f != nil {
		t.Errorf("second index column should not trigger the finding: %+v", f)
	}
}

func TestUnusedIndex_JoinColumnMatch(t *testing.T) {
	// The scanned join input carries no filter of its own; the indexed
	// column only appears in the join condition of the consuming Hash Join,
	// with the scan sitting under the Hash build node.
	tree := treeOf(&plan.Node{
		Operation:     "Hash Join",
		JoinPredicate: "(o.customer_id = c.id)",
		Rows:          500,
		Children: []*plan.Node{
			{Operation: "Seq Scan", Object: "customers", Rows: 500},
			{Operation: "Hash", Rows: 5000, Children: []*plan.Node{
				{Operation: "Seq Scan", Object: "orders", Rows: 5000},
			}},
		},
	})
	stats := statsFor(&metadata.TableStats{
		Name: "orders", RowCount: 5000, LastAnalyzed: recentAnalyze(),
		Indexes: []metadata.IndexDef{
			{Name: "orders_customer_idx", Columns: []string{"customer_id"}},
		},
	})

	f := findByKind(analyzed(t, tree, stats), KindUnusedIndex)
	if f == nil {
		t.Fatal("no unused_index finding for an indexed join column")
	}
	if f.Object != "orders" {
		t.Errorf("finding object = %q, want orders", f.Object)
	}
	if !strings.Contains(f.Evidence, "orders_customer_idx") {
		t.Errorf("evidence should name the index: %q", f.Evidence)
	}
}

func TestUnusedIndex_NoConditionReferencesTable(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation: "Seq Scan",
		Object:    "orders",
		Rows:      100,
	})
	stats := statsFor(&metadata.TableStats{
		Name: "orders", RowCount: 5000, LastAnalyzed: recentAnalyze(),
		Indexes: []metadata.IndexDef{
			{Name: "orders_customer_idx", Columns: []string{"customer_id"}},
		},
	})
	if f := findByKind(analyzed(t, tree, stats), KindUnusedIndex); f != nil {
		t.Errorf("unconditioned scan should not trigger the finding: %+v", f)
	}
}

func TestPartitionPruneFail_AllPartitionsScanned(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation: "Append",
		Children: []*plan.Node{
			{Operation: "Seq Scan", Object: "events_2026_01", Rows: 100,
				FilterPredicate: "(created_at > '2026-01-01'::timestamptz)"},
			{Operation: "Seq Scan", Object: "events_2026_02", Rows: 100,
				FilterPredicate: "(created_at > '2026-01-01'::timestamptz)"},
			{Operation: "Seq Scan", Object: "events_2026_03", Rows: 100,
				FilterPredicate: "(created_at > '2026-01-01'::timestamptz)"},
		},
	})
	stats := statsFor(&metadata.TableStats{
		Name: "events", RowCount: 300, LastAnalyzed: recentAnalyze(),
		Partitioned: true,
		Partition: &metadata.PartitionInfo{
			Key:      []string{"created_at"},
			Count:    3,
			Children: []string{"events_2026_01", "events_2026_02", "events_2026_03"},
		},
	})

	f := findByKind(analyzed(t, tree, stats), KindPartitionPruneFail)
	if f == nil {
		t.Fatal("no partition_prune_fail finding")
	}
	if f.Severity != High {
		t.Errorf("severity = %v, want High", f.Severity)
	}
}

func TestPartitionPruneFail_PrunedPlanOK(t *testing.T) {
	tree := treeOf(&plan.Node{
		Operation: "Seq Scan", Object: "events_2026_03", Rows: 100,
		FilterPredicate: "(created_at > '2026-03-01'::timestamptz)",
	})
	stats := statsFor(&metadata.TableStats{
		Name: "events", RowCount: 300, LastAnalyzed: recentAnalyze(),
		Partitioned: true,
		Partition: &metadata.PartitionInfo{
			Key:      []string{"created_at"},
			Count:    3,
			Children: []string{"events_2026_01", "events_2026_02", "events_2026_03"},
		},
	})
	if f := findByKind(analyzed(t, tree, stats), KindPartitionPruneFail); f != nil {
		t.Errorf("pruned plan flagged: %+v", f)
	}
}

func TestAnalyze_OrderingAndDedup(t *testing.T) {
	// Two distinct anti-patterns plus a duplicate scan of the same table:
	// expect severity-descending order and one finding per (kind, object).
	old := fixedNow().Add(-60 * 24 * time.Hour)
	tree := treeOf(&plan.Node{
		Operation: "Nested Loop",
		Rows:      100_000_000,
		Children: []*plan.Node{
			{Operation: "Seq Scan", Object: "big", Rows: 200_000},
			{Operation: "Seq Scan", Object: "big", Rows: 200_000},
		},
	})
	stats := statsFor(&metadata.TableStats{
		Name: "big", RowCount: 200_000, LastAnalyzed: &old,
	})

	findings := analyzed(t, tree, stats)
	if len(findings) == 0 {
		t.Fatal("no findings")
	}

	for i := 1; i < len(findings); i++ {
		if findings[i].Severity > findings[i-1].Severity {
			t.Fatalf("findings not sorted by severity: %v before %v",
				findings[i-1].Severity, findings[i].Severity)
		}
		if findings[i].Severity == findings[i-1].Severity &&
			findings[i].Position < findings[i-1].Position {
			t.Fatalf("ties not broken by plan position")
		}
	}

	if findings[0].Kind != KindCartesian {
		t.Errorf("first finding = %v, want the critical cartesian", findings[0].Kind)
	}

	fullScans := 0
	for _, f := range findings {
		if f.Kind == KindFullScan && f.Object == "big" {
			fullScans++
		}
	}
	if fullScans != 1 {
		t.Errorf("duplicate scans produced %d full_scan findings, want 1", fullScans)
	}
}

func TestAnalyze_NilTree(t *testing.T) {
	if findings := Analyze(nil, nil, testConfig()); findings != nil {
		t.Errorf("nil tree produced findings: %v", findings)
	}
}
