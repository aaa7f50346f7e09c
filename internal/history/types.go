// Package history persists execution snapshots and derives trend and
// regression verdicts from them.
package history

import (
	"context"
	"time"
)

// StabilityWindow is K: plan stability is the fraction of the last K
// snapshots sharing the latest plan hash.
const StabilityWindow = 10

// StableBandPct is the cost-change band treated as noise.
const StableBandPct = 10.0

// ExecutionSnapshot records one analysis execution. Immutable once written;
// subject only to retention-based deletion.
type ExecutionSnapshot struct {
	ID          int64     `json:"id,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	DBName      string    `json:"db_name"`
	InstanceID  string    `json:"instance_id"`
	ExecutedAt  time.Time `json:"executed_at"`

	PlanHash       string           `json:"plan_hash"`
	Cost           float64          `json:"cost"`
	TableRows      map[string]int64 `json:"table_rows,omitempty"`
	PlanOperations []string         `json:"plan_operations,omitempty"`
	SQLSample      string           `json:"sql_sample,omitempty"`

	// Regression verdict computed against the prior snapshot at insert
	// time.
	WasRegression bool     `json:"was_regression,omitempty"`
	CostChangePct *float64 `json:"cost_change_pct,omitempty"`
	PlanChanged   bool     `json:"plan_changed,omitempty"`
}

// PerformanceSummary is the running aggregate per (fingerprint, db,
// instance). Derived entirely from snapshots and recomputed atomically on
// each insert; never written directly by callers.
type PerformanceSummary struct {
	Fingerprint string `json:"fingerprint"`
	DBName      string `json:"db_name"`
	InstanceID  string `json:"instance_id"`

	TotalExecutions int64   `json:"total_executions"`
	AvgCost         float64 `json:"avg_cost"`
	MinCost         float64 `json:"min_cost"`
	MaxCost         float64 `json:"max_cost"`

	FirstSeen    time.Time `json:"first_seen"`
	LastExecuted time.Time `json:"last_executed"`

	LatestPlanHash   string  `json:"latest_plan_hash"`
	CostTrend        string  `json:"cost_trend"`
	PlanStabilityPct float64 `json:"plan_stability_pct"`
}

// RegressionVerdict is the trend comparison attached to a standard-depth
// response.
type RegressionVerdict struct {
	Status        string   `json:"status"`
	PlanChanged   bool     `json:"plan_changed"`
	CostChangePct *float64 `json:"cost_change_pct,omitempty"`
	IsRegression  bool     `json:"is_regression,omitempty"`
	DataGrowth    []string `json:"data_growth,omitempty"`
	Narrative     string   `json:"narrative"`
}

const (
	StatusNewQuery    = "new_query"
	StatusStable      = "stable"
	StatusCostChange  = "cost_change"
	StatusDataGrowth  = "data_growth"
	StatusPlanChanged = "plan_changed"
)

// Store is the persistence boundary for snapshots and summaries.
type Store interface {
	// InsertSnapshot appends snap and atomically upserts the summary for
	// its key, returning the updated summary.
	InsertSnapshot(ctx context.Context, snap *ExecutionSnapshot) (*PerformanceSummary, error)

	// RecentSnapshots returns up to limit snapshots for the key, most
	// recent first; ties on executed_at break by highest id.
	RecentSnapshots(ctx context.Context, fingerprint, dbName, instanceID string, limit int) ([]ExecutionSnapshot, error)

	// Summary returns the aggregate for the key, or nil when the query
	// shape has never been seen.
	Summary(ctx context.Context, fingerprint, dbName, instanceID string) (*PerformanceSummary, error)

	// Prune deletes snapshots older than the cutoff and returns how many
	// were removed. Scheduling is operator policy.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// RegressionCount reports how many regressions were recorded for a
	// database since the cutoff, total and per unique fingerprint.
	RegressionCount(ctx context.Context, dbName string, since time.Time) (total, uniqueQueries int64, err error)
}
