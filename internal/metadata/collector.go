package metadata

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aviciot/queryscope/internal/plan"
	"github.com/aviciot/queryscope/internal/qerror"
)

// Catalog is the narrow interface to the database catalog views. All maps
// are keyed by the qualified table name ("owner.name", or bare name when the
// catalog reports no schema).
type Catalog interface {
	// TableStats is the required source; its failure fails the metadata
	// stage.
	TableStats(ctx context.Context, refs []plan.ObjectRef) ([]TableStats, error)

	// Optional sources; failures degrade to notices.
	ColumnStats(ctx context.Context, refs []plan.ObjectRef) (map[string][]ColumnStats, error)
	Indexes(ctx context.Context, refs []plan.ObjectRef) (map[string][]IndexDef, error)
	Partitions(ctx context.Context, refs []plan.ObjectRef) (map[string]PartitionInfo, error)
	Constraints(ctx context.Context, refs []plan.ObjectRef) (map[string][]Constraint, error)
	RelationSizes(ctx context.Context, refs []plan.ObjectRef) (map[string]int64, error)
	PlannerSettings(ctx context.Context) (map[string]string, error)
}

// Collector gathers statistics for exactly the objects a parsed plan
// references.
type Collector struct {
	Catalog Catalog
	Log     zerolog.Logger
}

// Collect fetches statistics for refs. Optional source failures are recorded
// as notices on the returned set; only a table-stats failure returns an
// error, and even then the caller keeps its already-computed plan result.
func (c *Collector) Collect(ctx context.Context, refs []plan.ObjectRef) (*Set, error) {
	set := &Set{Tables: make(map[string]*TableStats)}
	if len(refs) == 0 {
		return set, nil
	}

	tables, err := c.Catalog.TableStats(ctx, refs)
	if err != nil {
		if _, ok := qerror.KindOf(err); ok {
			return nil, err
		}
		return nil, qerror.Wrap(qerror.PermissionError, err,
			"table statistics unavailable",
			"grant SELECT on the catalog statistics views to the analysis role")
	}
	for i := range tables {
		t := tables[i]
		if t.Kind == "" {
			t.Kind = "table"
		}
		set.Tables[qualifiedName(t.Owner, t.Name)] = &t
	}

	c.optional(ctx, set, "column statistics", func() error {
		cols, err := c.Catalog.ColumnStats(ctx, refs)
		if err != nil {
			return err
		}
		for key, stats := range cols {
			t, ok := set.Tables[key]
			if !ok {
				continue
			}
			for i := range stats {
				stats[i].Selectivity = ClassifySelectivity(stats[i].NDistinct, t.RowCount)
			}
			sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
			t.Columns = stats
		}
		return nil
	})

	c.optional(ctx, set, "index definitions", func() error {
		idx, err := c.Catalog.Indexes(ctx, refs)
		if err != nil {
			return err
		}
		for key, defs := range idx {
			if t, ok := set.Tables[key]; ok {
				sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
				t.Indexes = defs
			}
		}
		return nil
	})

	c.optional(ctx, set, "partition metadata", func() error {
		parts, err := c.Catalog.Partitions(ctx, refs)
		if err != nil {
			return err
		}
		for key, info := range parts {
			if t, ok := set.Tables[key]; ok {
				t.Partitioned = true
				p := info
				t.Partition = &p
			}
		}
		return nil
	})

	c.optional(ctx, set, "constraints", func() error {
		cons, err := c.Catalog.Constraints(ctx, refs)
		if err != nil {
			return err
		}
		for key, cs := range cons {
			if t, ok := set.Tables[key]; ok {
				t.Constraints = cs
			}
		}
		return nil
	})

	c.optional(ctx, set, "relation sizes", func() error {
		sizes, err := c.Catalog.RelationSizes(ctx, refs)
		if err != nil {
			return err
		}
		for key, size := range sizes {
			if t, ok := set.Tables[key]; ok {
				t.SizeBytes = size
			}
		}
		return nil
	})

	c.optional(ctx, set, "planner settings", func() error {
		settings, err := c.Catalog.PlannerSettings(ctx)
		if err != nil {
			return err
		}
		set.PlannerSettings = settings
		return nil
	})

	return set, nil
}

// optional runs one degradable source, converting a failure into a notice.
func (c *Collector) optional(ctx context.Context, set *Set, source string, fn func() error) {
	if ctx.Err() != nil {
		return
	}
	if err := fn(); err != nil {
		c.Log.Warn().Err(err).Str("source", source).Msg("optional metadata source unavailable")
		set.Notices = append(set.Notices,
			fmt.Sprintf("%s omitted: %v", source, err))
	}
}

func qualifiedName(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "." + name
}
