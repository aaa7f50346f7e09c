package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviciot/queryscope/internal/history"
	"github.com/aviciot/queryscope/internal/metadata"
	"github.com/aviciot/queryscope/internal/output"
	"github.com/aviciot/queryscope/internal/plan"
	"github.com/aviciot/queryscope/internal/qerror"
)

const explainFixture = `[
  {
    "Plan": {
      "Node Type": "Seq Scan",
      "Schema": "public",
      "Relation Name": "orders",
      "Startup Cost": 0.0,
      "Total Cost": 1800.0,
      "Plan Rows": 50000,
      "Plan Width": 32,
      "Filter": "(status = 'open'::text)"
    }
  }
]`

type fakeDB struct {
	probes   int
	explains int
	probeErr error
	plans    []string
}

func (f *fakeDB) Probe(ctx context.Context, sql string) error {
	f.probes++
	return f.probeErr
}

func (f *fakeDB) Explain(ctx context.Context, sql string) ([]byte, error) {
	f.explains++
	raw := explainFixture
	if len(f.plans) > 0 {
		raw = f.plans[0]
		if len(f.plans) > 1 {
			f.plans = f.plans[1:]
		}
	}
	return []byte(raw), nil
}

type fakeCatalog struct {
	calls  int
	tables []metadata.TableStats
	err    error
}

func (f *fakeCatalog) TableStats(ctx context.Context, refs []plan.ObjectRef) ([]metadata.TableStats, error) {
	f.calls++
	return f.tables, f.err
}

func (f *fakeCatalog) ColumnStats(ctx context.Context, refs []plan.ObjectRef) (map[string][]metadata.ColumnStats, error) {
	return nil, nil
}

func (f *fakeCatalog) Indexes(ctx context.Context, refs []plan.ObjectRef) (map[string][]metadata.IndexDef, error) {
	return nil, nil
}

func (f *fakeCatalog) Partitions(ctx context.Context, refs []plan.ObjectRef) (map[string]metadata.PartitionInfo, error) {
	return nil, nil
}

func (f *fakeCatalog) Constraints(ctx context.Context, refs []plan.ObjectRef) (map[string][]metadata.Constraint, error) {
	return nil, nil
}

func (f *fakeCatalog) RelationSizes(ctx context.Context, refs []plan.ObjectRef) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeCatalog) PlannerSettings(ctx context.Context) (map[string]string, error) {
	return nil, nil
}

type failingStore struct{ history.Store }

func (failingStore) RecentSnapshots(ctx context.Context, fingerprint, dbName, instanceID string, limit int) ([]history.ExecutionSnapshot, error) {
	return nil, qerror.New(qerror.StoreError, "history database down", "")
}

func testEnv(db *fakeDB, cat *fakeCatalog, store history.Store) *Env {
	now := time.Now()
	if cat.tables == nil && cat.err == nil {
		cat.tables = []metadata.TableStats{
			{Owner: "public", Name: "orders", RowCount: 100_000, LastAnalyzed: &now},
		}
	}
	return &Env{
		DB:         db,
		DBName:     "orders_db",
		InstanceID: "inst-1",
		Catalog:    cat,
		Store:      store,
		Log:        zerolog.Nop(),
	}
}

const testSQL = "SELECT * FROM orders WHERE status = 'open'"

func TestAnalyze_StandardDepth(t *testing.T) {
	db := &fakeDB{}
	store := history.NewMemoryStore()
	env := testEnv(db, &fakeCatalog{}, store)

	result, err := Analyze(context.Background(), env, testSQL, output.DepthStandard, output.PresetStandard)
	require.NoError(t, err)

	assert.Equal(t, 1, db.probes)
	assert.Equal(t, 1, db.explains)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Equal(t, testSQL, result.SQLText)
	assert.NotNil(t, result.Metadata)
	assert.NotEmpty(t, result.Findings)

	require.NotNil(t, result.RegressionVerdict)
	assert.Equal(t, history.StatusNewQuery, result.RegressionVerdict.Status)
	require.NotNil(t, result.Summary)
	assert.Equal(t, int64(1), result.Summary.TotalExecutions)
}

func TestAnalyze_SecondRunIsStable(t *testing.T) {
	db := &fakeDB{}
	store := history.NewMemoryStore()
	env := testEnv(db, &fakeCatalog{}, store)
	ctx := context.Background()

	_, err := Analyze(ctx, env, testSQL, output.DepthStandard, output.PresetStandard)
	require.NoError(t, err)

	result, err := Analyze(ctx, env, "SELECT * FROM orders WHERE status = 'closed'", output.DepthStandard, output.PresetStandard)
	require.NoError(t, err)

	// Same shape, same plan, same cost: stable against the prior snapshot.
	require.NotNil(t, result.RegressionVerdict)
	assert.Equal(t, history.StatusStable, result.RegressionVerdict.Status)
	assert.Equal(t, int64(2), result.Summary.TotalExecutions)
}

func TestAnalyze_PlanOnlySkipsMetadataAndHistory(t *testing.T) {
	db := &fakeDB{}
	cat := &fakeCatalog{}
	store := history.NewMemoryStore()
	env := testEnv(db, cat, store)

	result, err := Analyze(context.Background(), env, testSQL, output.DepthPlanOnly, output.PresetStandard)
	require.NoError(t, err)

	assert.Equal(t, 0, cat.calls)
	assert.Nil(t, result.Metadata)
	assert.Nil(t, result.RegressionVerdict)
	assert.Nil(t, result.Summary)

	snaps, err := store.RecentSnapshots(context.Background(), result.Fingerprint, "orders_db", "inst-1", 10)
	require.NoError(t, err)
	assert.Empty(t, snaps, "plan_only must not write history")

	// Plan-level findings still work from planner estimates.
	assert.NotEmpty(t, result.Findings)
}

func TestAnalyze_WithMetadataSkipsHistory(t *testing.T) {
	db := &fakeDB{}
	cat := &fakeCatalog{}
	env := testEnv(db, cat, history.NewMemoryStore())

	result, err := Analyze(context.Background(), env, testSQL, output.DepthWithMetadata, output.PresetStandard)
	require.NoError(t, err)

	assert.Equal(t, 1, cat.calls)
	assert.NotNil(t, result.Metadata)
	assert.Nil(t, result.RegressionVerdict)
}

func TestAnalyze_SecurityViolationStopsPipeline(t *testing.T) {
	db := &fakeDB{}
	env := testEnv(db, &fakeCatalog{}, history.NewMemoryStore())

	_, err := Analyze(context.Background(), env, "DROP TABLE orders", output.DepthStandard, output.PresetStandard)
	require.Error(t, err)
	assert.True(t, qerror.IsKind(err, qerror.SecurityViolation))
	assert.Equal(t, 0, db.probes, "rejected statement must not reach the database")
	assert.Equal(t, 0, db.explains)
}

func TestAnalyze_SyntaxErrorFromProbe(t *testing.T) {
	db := &fakeDB{probeErr: errors.New(`syntax error at or near "FORM"`)}
	env := testEnv(db, &fakeCatalog{}, history.NewMemoryStore())

	_, err := Analyze(context.Background(), env, "SELECT * FORM orders", output.DepthStandard, output.PresetStandard)
	require.Error(t, err)
	assert.True(t, qerror.IsKind(err, qerror.SyntaxError))
	assert.Equal(t, 0, db.explains, "explain must not run after a failed probe")
}

func TestAnalyze_MetadataFailureDegrades(t *testing.T) {
	db := &fakeDB{}
	cat := &fakeCatalog{err: errors.New("permission denied")}
	env := testEnv(db, cat, history.NewMemoryStore())

	result, err := Analyze(context.Background(), env, testSQL, output.DepthStandard, output.PresetStandard)
	require.NoError(t, err, "metadata failure must not discard the plan result")

	assert.Nil(t, result.Metadata)
	assert.NotEmpty(t, result.Notices)
	assert.NotEmpty(t, result.Findings, "estimate-based findings survive")
}

func TestAnalyze_StoreFailureDegrades(t *testing.T) {
	db := &fakeDB{}
	env := testEnv(db, &fakeCatalog{}, failingStore{})

	result, err := Analyze(context.Background(), env, testSQL, output.DepthStandard, output.PresetStandard)
	require.NoError(t, err, "history failure must downgrade, not fail")
	assert.Nil(t, result.Summary)
	assert.NotEmpty(t, result.Notices)
}

func TestAnalyze_NilStore(t *testing.T) {
	db := &fakeDB{}
	env := testEnv(db, &fakeCatalog{}, nil)

	result, err := Analyze(context.Background(), env, testSQL, output.DepthStandard, output.PresetStandard)
	require.NoError(t, err)
	assert.Nil(t, result.RegressionVerdict)
}

func TestAnalyze_OversizedQueryDowngradesPreset(t *testing.T) {
	db := &fakeDB{}
	env := testEnv(db, &fakeCatalog{}, history.NewMemoryStore())

	sql := "SELECT * FROM orders WHERE note = '" + strings.Repeat("x", 60_000) + "'"
	result, err := Analyze(context.Background(), env, sql, output.DepthStandard, output.PresetStandard)
	require.NoError(t, err)

	assert.Equal(t, output.PresetMinimal, result.PresetUsed)
	assert.Equal(t, sql, result.SQLText, "the statement is returned verbatim at every preset")

	var noted bool
	for _, n := range result.Notices {
		if strings.Contains(n, "minimal") {
			noted = true
		}
	}
	assert.True(t, noted, "downgrade must be explained in notices: %v", result.Notices)
}

func TestCompare_Estimates(t *testing.T) {
	cheaper := `[
	  {"Plan": {"Node Type": "Index Scan", "Schema": "public", "Relation Name": "orders",
	    "Index Name": "orders_status_idx", "Total Cost": 90.0, "Plan Rows": 120, "Plan Width": 32}}
	]`
	db := &fakeDB{plans: []string{explainFixture, cheaper}}
	env := testEnv(db, &fakeCatalog{}, history.NewMemoryStore())

	envelope, err := Compare(context.Background(), env,
		testSQL, "SELECT * FROM orders WHERE status = 'open' ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, 2, db.probes)
	assert.Equal(t, 2, db.explains)
	assert.True(t, envelope.Result.Summary.PlanChanged)
	assert.NotEqual(t, envelope.FingerprintA, envelope.FingerprintB)
	assert.Contains(t, envelope.Result.Summary.Verdict, "cheaper")

	// Comparison never records snapshots.
	snaps, err := env.Store.RecentSnapshots(context.Background(), envelope.FingerprintA, "orders_db", "inst-1", 10)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
