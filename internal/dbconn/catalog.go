package dbconn

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aviciot/queryscope/internal/metadata"
	"github.com/aviciot/queryscope/internal/plan"
)

// plannerSettingNames are the GUCs worth echoing back with an analysis;
// they change plan shape without any schema change.
var plannerSettingNames = []string{
	"enable_seqscan", "enable_nestloop", "enable_hashjoin", "enable_mergejoin",
	"work_mem", "random_page_cost", "effective_cache_size",
	"default_statistics_target", "jit", "max_parallel_workers_per_gather",
}

// Catalog reads object statistics from the system catalogs. It satisfies
// metadata.Catalog; each method issues one query covering all referenced
// objects.
type Catalog struct {
	pool *pgxpool.Pool
}

var _ metadata.Catalog = (*Catalog)(nil)

func NewCatalog(c *Conn) *Catalog {
	return &Catalog{pool: c.pool}
}

func refNames(refs []plan.ObjectRef) []string {
	seen := make(map[string]bool, len(refs))
	var names []string
	for _, r := range refs {
		if !seen[r.Name] {
			seen[r.Name] = true
			names = append(names, r.Name)
		}
	}
	return names
}

func (c *Catalog) TableStats(ctx context.Context, refs []plan.ObjectRef) ([]metadata.TableStats, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT n.nspname, cl.relname, cl.relkind,
		       greatest(cl.reltuples, 0)::bigint, cl.relpages::bigint,
		       greatest(s.last_analyze, s.last_autoanalyze)
		FROM pg_class cl
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		LEFT JOIN pg_stat_all_tables s ON s.relid = cl.oid
		WHERE cl.relname = ANY($1) AND cl.relkind IN ('r', 'p', 'm', 'f')`,
		refNames(refs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []metadata.TableStats
	for rows.Next() {
		var t metadata.TableStats
		var kind string
		if err := rows.Scan(&t.Owner, &t.Name, &kind, &t.RowCount, &t.Blocks, &t.LastAnalyzed); err != nil {
			return nil, err
		}
		switch kind {
		case "p":
			t.Kind = "partitioned table"
			t.Partitioned = true
		case "m":
			t.Kind = "materialized view"
		case "f":
			t.Kind = "foreign table"
		default:
			t.Kind = "table"
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Catalog) ColumnStats(ctx context.Context, refs []plan.ObjectRef) (map[string][]metadata.ColumnStats, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT schemaname, tablename, attname,
		       coalesce(n_distinct, 0)::float8, coalesce(null_frac, 0)::float8
		FROM pg_stats
		WHERE tablename = ANY($1)`,
		refNames(refs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]metadata.ColumnStats)
	for rows.Next() {
		var schema, table string
		var col metadata.ColumnStats
		if err := rows.Scan(&schema, &table, &col.Name, &col.NDistinct, &col.NullFrac); err != nil {
			return nil, err
		}
		key := schema + "." + table
		out[key] = append(out[key], col)
	}
	return out, rows.Err()
}

func (c *Catalog) Indexes(ctx context.Context, refs []plan.ObjectRef) (map[string][]metadata.IndexDef, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT n.nspname, tc.relname, ic.relname, i.indisunique,
		       array_agg(a.attname ORDER BY k.ord)
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_class tc ON tc.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		CROSS JOIN LATERAL unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = tc.oid AND a.attnum = k.attnum
		WHERE tc.relname = ANY($1)
		GROUP BY n.nspname, tc.relname, ic.relname, i.indisunique`,
		refNames(refs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]metadata.IndexDef)
	for rows.Next() {
		var schema, table string
		var def metadata.IndexDef
		if err := rows.Scan(&schema, &table, &def.Name, &def.Unique, &def.Columns); err != nil {
			return nil, err
		}
		key := schema + "." + table
		out[key] = append(out[key], def)
	}
	return out, rows.Err()
}

func (c *Catalog) Partitions(ctx context.Context, refs []plan.ObjectRef) (map[string]metadata.PartitionInfo, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT n.nspname, tc.relname,
		       array_agg(DISTINCT a.attname),
		       (SELECT count(*) FROM pg_inherits h WHERE h.inhparent = tc.oid),
		       coalesce((SELECT array_agg(ch.relname ORDER BY ch.relname)
		                 FROM pg_inherits h
		                 JOIN pg_class ch ON ch.oid = h.inhrelid
		                 WHERE h.inhparent = tc.oid), '{}')
		FROM pg_partitioned_table pt
		JOIN pg_class tc ON tc.oid = pt.partrelid
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		CROSS JOIN LATERAL unnest(pt.partattrs) AS pk(attnum)
		JOIN pg_attribute a ON a.attrelid = tc.oid AND a.attnum = pk.attnum
		WHERE tc.relname = ANY($1)
		GROUP BY n.nspname, tc.relname, tc.oid`,
		refNames(refs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]metadata.PartitionInfo)
	for rows.Next() {
		var schema, table string
		var info metadata.PartitionInfo
		if err := rows.Scan(&schema, &table, &info.Key, &info.Count, &info.Children); err != nil {
			return nil, err
		}
		out[schema+"."+table] = info
	}
	return out, rows.Err()
}

func (c *Catalog) Constraints(ctx context.Context, refs []plan.ObjectRef) (map[string][]metadata.Constraint, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT n.nspname, tc.relname, con.conname, con.contype::text,
		       coalesce((SELECT array_agg(a.attname ORDER BY k.ord)
		                 FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
		                 JOIN pg_attribute a ON a.attrelid = tc.oid AND a.attnum = k.attnum), '{}')
		FROM pg_constraint con
		JOIN pg_class tc ON tc.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		WHERE tc.relname = ANY($1) AND con.contype IN ('p', 'u', 'f')`,
		refNames(refs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]metadata.Constraint)
	for rows.Next() {
		var schema, table, ctype string
		var con metadata.Constraint
		if err := rows.Scan(&schema, &table, &con.Name, &ctype, &con.Columns); err != nil {
			return nil, err
		}
		switch ctype {
		case "p":
			con.Type = "primary key"
		case "u":
			con.Type = "unique"
		case "f":
			con.Type = "foreign key"
		default:
			con.Type = ctype
		}
		key := schema + "." + table
		out[key] = append(out[key], con)
	}
	return out, rows.Err()
}

func (c *Catalog) RelationSizes(ctx context.Context, refs []plan.ObjectRef) (map[string]int64, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT n.nspname, cl.relname, pg_total_relation_size(cl.oid)
		FROM pg_class cl
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		WHERE cl.relname = ANY($1) AND cl.relkind IN ('r', 'p', 'm')`,
		refNames(refs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var schema, table string
		var size int64
		if err := rows.Scan(&schema, &table, &size); err != nil {
			return nil, err
		}
		out[schema+"."+table] = size
	}
	return out, rows.Err()
}

func (c *Catalog) PlannerSettings(ctx context.Context) (map[string]string, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT name, setting FROM pg_settings WHERE name = ANY($1)`,
		plannerSettingNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, setting string
		if err := rows.Scan(&name, &setting); err != nil {
			return nil, err
		}
		out[name] = setting
	}
	return out, rows.Err()
}
