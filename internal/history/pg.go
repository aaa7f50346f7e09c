package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aviciot/queryscope/internal/qerror"
)

// PGStore persists snapshots in PostgreSQL. The summary upsert happens in
// the same statement as the snapshot insert, so concurrent analyses of the
// same query shape cannot lose updates to an application-level
// read-modify-write.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS query_execution_history (
	id              bigserial PRIMARY KEY,
	fingerprint     text        NOT NULL,
	db_name         text        NOT NULL,
	instance_id     text        NOT NULL,
	executed_at     timestamptz NOT NULL DEFAULT now(),
	plan_hash       text        NOT NULL,
	cost            double precision NOT NULL,
	table_rows      jsonb,
	plan_operations jsonb,
	sql_sample      text,
	was_regression  boolean NOT NULL DEFAULT false,
	cost_change_pct double precision,
	plan_changed    boolean NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS query_execution_history_key_idx
	ON query_execution_history (fingerprint, db_name, instance_id, executed_at DESC, id DESC);
CREATE TABLE IF NOT EXISTS query_performance_summary (
	fingerprint        text NOT NULL,
	db_name            text NOT NULL,
	instance_id        text NOT NULL,
	total_executions   bigint NOT NULL,
	avg_cost           double precision NOT NULL,
	min_cost           double precision NOT NULL,
	max_cost           double precision NOT NULL,
	first_seen         timestamptz NOT NULL,
	last_executed      timestamptz NOT NULL,
	latest_plan_hash   text NOT NULL,
	cost_trend         text NOT NULL,
	plan_stability_pct double precision NOT NULL,
	PRIMARY KEY (fingerprint, db_name, instance_id)
);`

// EnsureSchema creates the history tables when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return storeErr(err, "creating history schema")
	}
	return nil
}

// insertSQL appends the snapshot and upserts the summary in one statement.
// The CTE aggregates (computed over the pre-statement snapshot, with the new
// row folded in arithmetically) only seed the no-conflict insert; on
// conflict the counters are recomputed from the locked summary row itself,
// so concurrent inserts for the same key serialize on that row and never
// overwrite each other with stale totals. The windowed stability metric is
// the exception: it reads the history window from the statement snapshot
// and converges on the next insert.
const insertSQL = `
WITH ins AS (
	INSERT INTO query_execution_history
		(fingerprint, db_name, instance_id, plan_hash, cost,
		 table_rows, plan_operations, sql_sample,
		 was_regression, cost_change_pct, plan_changed)
	VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11)
	RETURNING id, executed_at
), agg AS (
	SELECT count(*) AS n,
	       coalesce(sum(cost), 0) AS sum_cost,
	       min(cost) AS min_cost,
	       max(cost) AS max_cost,
	       min(executed_at) AS first_seen
	FROM query_execution_history
	WHERE fingerprint = $1 AND db_name = $2 AND instance_id = $3
), recent AS (
	SELECT plan_hash
	FROM query_execution_history
	WHERE fingerprint = $1 AND db_name = $2 AND instance_id = $3
	ORDER BY executed_at DESC, id DESC
	LIMIT $12 - 1
), stab AS (
	SELECT count(*) FILTER (WHERE plan_hash = $4) AS matched,
	       count(*) AS total
	FROM recent
)
INSERT INTO query_performance_summary AS s
	(fingerprint, db_name, instance_id, total_executions,
	 avg_cost, min_cost, max_cost, first_seen, last_executed,
	 latest_plan_hash, cost_trend, plan_stability_pct)
SELECT $1, $2, $3,
	agg.n + 1,
	(agg.sum_cost + $5) / (agg.n + 1),
	least(coalesce(agg.min_cost, $5), $5),
	greatest(coalesce(agg.max_cost, $5), $5),
	coalesce(agg.first_seen, ins.executed_at),
	ins.executed_at,
	$4,
	CASE
		WHEN agg.n = 0 THEN 'stable'
		WHEN $5 > 1.1 * (agg.sum_cost + $5) / (agg.n + 1) THEN 'degrading'
		WHEN $5 < 0.9 * (agg.sum_cost + $5) / (agg.n + 1) THEN 'improving'
		ELSE 'stable'
	END,
	100.0 * (stab.matched + 1) / (stab.total + 1)
FROM ins, agg, stab
ON CONFLICT (fingerprint, db_name, instance_id) DO UPDATE SET
	total_executions   = s.total_executions + 1,
	avg_cost           = (s.avg_cost * s.total_executions + $5) / (s.total_executions + 1),
	min_cost           = least(s.min_cost, $5),
	max_cost           = greatest(s.max_cost, $5),
	first_seen         = least(s.first_seen, EXCLUDED.first_seen),
	last_executed      = EXCLUDED.last_executed,
	latest_plan_hash   = EXCLUDED.latest_plan_hash,
	cost_trend         = CASE
		WHEN $5 > 1.1 * (s.avg_cost * s.total_executions + $5) / (s.total_executions + 1) THEN 'degrading'
		WHEN $5 < 0.9 * (s.avg_cost * s.total_executions + $5) / (s.total_executions + 1) THEN 'improving'
		ELSE 'stable'
	END,
	plan_stability_pct = EXCLUDED.plan_stability_pct
RETURNING total_executions, avg_cost, min_cost, max_cost,
	first_seen, last_executed, latest_plan_hash, cost_trend, plan_stability_pct`

func (s *PGStore) InsertSnapshot(ctx context.Context, snap *ExecutionSnapshot) (*PerformanceSummary, error) {
	tableRows, err := json.Marshal(snap.TableRows)
	if err != nil {
		return nil, storeErr(err, "encoding table stats")
	}
	planOps, err := json.Marshal(snap.PlanOperations)
	if err != nil {
		return nil, storeErr(err, "encoding plan operations")
	}

	sample := snap.SQLSample
	if len(sample) > 500 {
		sample = sample[:500] + "..."
	}

	sum := &PerformanceSummary{
		Fingerprint: snap.Fingerprint,
		DBName:      snap.DBName,
		InstanceID:  snap.InstanceID,
	}
	err = s.pool.QueryRow(ctx, insertSQL,
		snap.Fingerprint, snap.DBName, snap.InstanceID,
		snap.PlanHash, snap.Cost,
		string(tableRows), string(planOps), sample,
		snap.WasRegression, snap.CostChangePct, snap.PlanChanged,
		StabilityWindow,
	).Scan(
		&sum.TotalExecutions, &sum.AvgCost, &sum.MinCost, &sum.MaxCost,
		&sum.FirstSeen, &sum.LastExecuted, &sum.LatestPlanHash,
		&sum.CostTrend, &sum.PlanStabilityPct,
	)
	if err != nil {
		return nil, storeErr(err, "inserting snapshot")
	}
	return sum, nil
}

func (s *PGStore) RecentSnapshots(ctx context.Context, fingerprint, dbName, instanceID string, limit int) ([]ExecutionSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fingerprint, db_name, instance_id, executed_at,
		       plan_hash, cost, table_rows, plan_operations, sql_sample,
		       was_regression, cost_change_pct, plan_changed
		FROM query_execution_history
		WHERE fingerprint = $1 AND db_name = $2 AND instance_id = $3
		ORDER BY executed_at DESC, id DESC
		LIMIT $4`,
		fingerprint, dbName, instanceID, limit)
	if err != nil {
		return nil, storeErr(err, "fetching recent snapshots")
	}
	defer rows.Close()

	var out []ExecutionSnapshot
	for rows.Next() {
		var snap ExecutionSnapshot
		var tableRows, planOps []byte
		var sample *string
		if err := rows.Scan(
			&snap.ID, &snap.Fingerprint, &snap.DBName, &snap.InstanceID,
			&snap.ExecutedAt, &snap.PlanHash, &snap.Cost,
			&tableRows, &planOps, &sample,
			&snap.WasRegression, &snap.CostChangePct, &snap.PlanChanged,
		); err != nil {
			return nil, storeErr(err, "scanning snapshot")
		}
		if len(tableRows) > 0 {
			_ = json.Unmarshal(tableRows, &snap.TableRows)
		}
		if len(planOps) > 0 {
			_ = json.Unmarshal(planOps, &snap.PlanOperations)
		}
		if sample != nil {
			snap.SQLSample = *sample
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "reading snapshots")
	}
	return out, nil
}

func (s *PGStore) Summary(ctx context.Context, fingerprint, dbName, instanceID string) (*PerformanceSummary, error) {
	sum := &PerformanceSummary{
		Fingerprint: fingerprint,
		DBName:      dbName,
		InstanceID:  instanceID,
	}
	err := s.pool.QueryRow(ctx, `
		SELECT total_executions, avg_cost, min_cost, max_cost,
		       first_seen, last_executed, latest_plan_hash,
		       cost_trend, plan_stability_pct
		FROM query_performance_summary
		WHERE fingerprint = $1 AND db_name = $2 AND instance_id = $3`,
		fingerprint, dbName, instanceID,
	).Scan(
		&sum.TotalExecutions, &sum.AvgCost, &sum.MinCost, &sum.MaxCost,
		&sum.FirstSeen, &sum.LastExecuted, &sum.LatestPlanHash,
		&sum.CostTrend, &sum.PlanStabilityPct,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "fetching summary")
	}
	return sum, nil
}

func (s *PGStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM query_execution_history WHERE executed_at < $1`, olderThan)
	if err != nil {
		return 0, storeErr(err, "pruning history")
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) RegressionCount(ctx context.Context, dbName string, since time.Time) (int64, int64, error) {
	var total, unique int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT fingerprint)
		FROM query_execution_history
		WHERE db_name = $1 AND was_regression AND executed_at >= $2`,
		dbName, since,
	).Scan(&total, &unique)
	if err != nil {
		return 0, 0, storeErr(err, "counting regressions")
	}
	return total, unique, nil
}

func storeErr(err error, msg string) error {
	return qerror.Wrap(qerror.StoreError, err, msg,
		"check the history database connection and grants; analysis results are still returned without historical context")
}
