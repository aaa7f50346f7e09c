package plan

import (
	"strings"
	"testing"
)

const hashJoinFixture = `[
  {
    "Plan": {
      "Node Type": "Hash Join",
      "Join Type": "Inner",
      "Startup Cost": 100.0,
      "Total Cost": 2500.5,
      "Plan Rows": 5000,
      "Plan Width": 48,
      "Hash Cond": "(o.customer_id = c.id)",
      "Plans": [
        {
          "Node Type": "Seq Scan",
          "Schema": "public",
          "Relation Name": "orders",
          "Alias": "o",
          "Startup Cost": 0.0,
          "Total Cost": 1800.0,
          "Plan Rows": 50000,
          "Plan Width": 32,
          "Filter": "(o.status = 'open'::text)"
        },
        {
          "Node Type": "Hash",
          "Startup Cost": 50.0,
          "Total Cost": 50.0,
          "Plan Rows": 1000,
          "Plan Width": 16,
          "Plans": [
            {
              "Node Type": "Index Scan",
              "Schema": "public",
              "Relation Name": "customers",
              "Alias": "c",
              "Index Name": "customers_pkey",
              "Index Cond": "(c.id > 0)",
              "Startup Cost": 0.3,
              "Total Cost": 45.0,
              "Plan Rows": 1000,
              "Plan Width": 16
            }
          ]
        }
      ]
    },
    "Planning Time": 0.42
  }
]`

func TestParse_PreOrderNumbering(t *testing.T) {
	tree, err := Parse([]byte(hashJoinFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	nodes := tree.PreOrder()
	if len(nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(nodes))
	}
	for i, n := range nodes {
		if n.ID != i {
			t.Errorf("node %d has ID %d", i, n.ID)
		}
	}

	if nodes[0].ParentID != nil {
		t.Error("root should have no parent")
	}
	if nodes[1].ParentID == nil || *nodes[1].ParentID != 0 {
		t.Error("first child should point at the root")
	}
	if nodes[3].ParentID == nil || *nodes[3].ParentID != 2 {
		t.Errorf("index scan should hang under the hash node, parent = %v", nodes[3].ParentID)
	}
}

func TestParse_FieldMapping(t *testing.T) {
	tree, err := Parse([]byte(hashJoinFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	root := tree.Root
	if root.Operation != "Hash Join" {
		t.Errorf("Operation = %q", root.Operation)
	}
	if root.JoinPredicate != "(o.customer_id = c.id)" {
		t.Errorf("JoinPredicate = %q, want the hash condition", root.JoinPredicate)
	}
	if root.Cost != 2500.5 {
		t.Errorf("Cost = %v", root.Cost)
	}

	scan := root.Children[0]
	if scan.Owner != "public" || scan.Object != "orders" {
		t.Errorf("scan object = %s.%s", scan.Owner, scan.Object)
	}
	if scan.FilterPredicate == "" {
		t.Error("filter predicate not carried")
	}
	if scan.EstimatedBytes != 50000*32 {
		t.Errorf("EstimatedBytes = %d", scan.EstimatedBytes)
	}

	idx := root.Children[1].Children[0]
	if idx.Index != "customers_pkey" {
		t.Errorf("Index = %q", idx.Index)
	}
	if idx.AccessPredicate != "(c.id > 0)" {
		t.Errorf("AccessPredicate = %q", idx.AccessPredicate)
	}

	if tree.PlanningTime != 0.42 {
		t.Errorf("PlanningTime = %v", tree.PlanningTime)
	}
}

func TestParse_HashIgnoresCosts(t *testing.T) {
	a, err := Parse([]byte(hashJoinFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cheaper := strings.ReplaceAll(hashJoinFixture, "2500.5", "9999.9")
	cheaper = strings.ReplaceAll(cheaper, `"Plan Rows": 50000`, `"Plan Rows": 70000`)
	b, err := Parse([]byte(cheaper))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if a.Hash != b.Hash {
		t.Error("plan hash changed although structure is identical")
	}
}

func TestParse_HashSensitiveToStructure(t *testing.T) {
	a, err := Parse([]byte(hashJoinFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	restructured := strings.Replace(hashJoinFixture, `"Node Type": "Seq Scan"`, `"Node Type": "Index Only Scan"`, 1)
	b, err := Parse([]byte(restructured))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if a.Hash == b.Hash {
		t.Error("plan hash identical for different operations")
	}
}

func TestParse_MultiplePlansGetSuperRoot(t *testing.T) {
	raw := `[
	  {"Plan": {"Node Type": "Seq Scan", "Relation Name": "a", "Total Cost": 10, "Plan Rows": 5}},
	  {"Plan": {"Node Type": "Seq Scan", "Relation Name": "b", "Total Cost": 20, "Plan Rows": 7}}
	]`
	tree, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tree.Root.Operation != SuperRootOperation {
		t.Fatalf("root = %q, want super root", tree.Root.Operation)
	}
	if len(tree.Root.Children) != 2 {
		t.Fatalf("super root children = %d", len(tree.Root.Children))
	}
	if tree.Root.Cost != 30 || tree.Root.Rows != 12 {
		t.Errorf("super root aggregates = cost %v rows %d", tree.Root.Cost, tree.Root.Rows)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("expected error for malformed input")
	}
	if _, err := Parse([]byte("[]")); err == nil {
		t.Error("expected error for empty output")
	}
}

func TestObjects_DistinctInOrder(t *testing.T) {
	tree, err := Parse([]byte(hashJoinFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	refs := tree.Objects()
	if len(refs) != 2 {
		t.Fatalf("expected 2 object refs, got %d: %v", len(refs), refs)
	}
	if refs[0].Name != "orders" || refs[1].Name != "customers" {
		t.Errorf("refs = %v, want orders then customers", refs)
	}
}

func TestRenderText_TreeShape(t *testing.T) {
	tree, err := Parse([]byte(hashJoinFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	text := RenderText(tree)
	if !strings.Contains(text, "Hash Join (total cost: 2500.50)") {
		t.Errorf("missing root line:\n%s", text)
	}
	if !strings.Contains(text, "├─ Seq Scan on public.orders (o)") {
		t.Errorf("missing scan branch:\n%s", text)
	}
	if !strings.Contains(text, "using customers_pkey") {
		t.Errorf("missing index annotation:\n%s", text)
	}
}
