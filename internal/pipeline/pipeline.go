// Package pipeline sequences one analysis run: validate, fingerprint,
// collect the plan, gather metadata, detect anti-patterns, compare against
// history, shape the output. Stages run in a fixed order and later stages
// degrade to notices rather than discarding earlier results.
package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aviciot/queryscope/internal/analyzer"
	"github.com/aviciot/queryscope/internal/comparator"
	"github.com/aviciot/queryscope/internal/history"
	"github.com/aviciot/queryscope/internal/metadata"
	"github.com/aviciot/queryscope/internal/normalize"
	"github.com/aviciot/queryscope/internal/output"
	"github.com/aviciot/queryscope/internal/plan"
	"github.com/aviciot/queryscope/internal/qerror"
	"github.com/aviciot/queryscope/internal/validator"
)

// Database is what the pipeline needs from a live connection: a syntax
// probe and an explain mechanism, both side-effect free.
type Database interface {
	validator.Prober
	plan.Explainer
}

// Env carries the wired dependencies for one target database. No stage
// reaches for globals; everything flows through here.
type Env struct {
	DB         Database
	DBName     string
	InstanceID string

	Catalog metadata.Catalog
	Store   history.Store

	Limits   validator.Limits
	Analyzer analyzer.Config

	Log zerolog.Logger
}

// run is the mutable state threaded through the stages of one analysis.
type run struct {
	env    *Env
	sql    string
	depth  output.Depth
	result output.AnalysisResult

	norm  normalize.NormalizedQuery
	tree  *plan.Tree
	stats *metadata.Set
}

type stage struct {
	name string
	skip bool
	fn   func(ctx context.Context) error
}

// Analyze runs the full pipeline for one statement. plan_only depth skips
// the metadata and history stages entirely; with_metadata skips history.
func Analyze(ctx context.Context, env *Env, sql string, depth output.Depth, preset output.Preset) (output.AnalysisResult, error) {
	r := &run{
		env:   env,
		sql:   sql,
		depth: depth,
		result: output.AnalysisResult{
			DBName:   env.DBName,
			Depth:    depth,
			SQLText:  sql,
			Findings: []analyzer.Finding{},
		},
	}

	stages := []stage{
		{name: "validate", fn: r.validate},
		{name: "fingerprint", fn: r.fingerprint},
		{name: "collect_plan", fn: r.collectPlan},
		{name: "collect_metadata", skip: depth == output.DepthPlanOnly, fn: r.collectMetadata},
		{name: "detect", fn: r.detect},
		{name: "history", skip: depth != output.DepthStandard, fn: r.recordHistory},
	}

	for _, s := range stages {
		if s.skip {
			continue
		}
		env.Log.Debug().Str("stage", s.name).Msg("running stage")
		if err := s.fn(ctx); err != nil {
			env.Log.Debug().Str("stage", s.name).Err(err).Msg("stage failed")
			return output.AnalysisResult{}, err
		}
	}

	return finalize(r.result, preset), nil
}

func (r *run) validate(ctx context.Context) error {
	return validator.Validate(ctx, r.env.DB, r.sql, r.env.Limits)
}

func (r *run) fingerprint(context.Context) error {
	r.norm = normalize.Normalize(r.sql)
	r.result.Fingerprint = r.norm.Fingerprint
	r.result.Normalized = r.norm.Normalized
	r.result.ReferencedTables = normalize.ReferencedTables(r.sql)
	return nil
}

func (r *run) collectPlan(ctx context.Context) error {
	tree, err := plan.Collect(ctx, r.env.DB, r.sql)
	if err != nil {
		return err
	}
	r.tree = tree
	r.result.Plan = tree
	r.result.PlanHash = tree.Hash
	r.result.TotalCost = tree.Root.Cost
	r.result.PlanText = plan.RenderText(tree)
	return nil
}

// collectMetadata degrades to a notice on failure: the plan result already
// in hand is worth returning even when catalog grants are missing.
func (r *run) collectMetadata(ctx context.Context) error {
	coll := &metadata.Collector{Catalog: r.env.Catalog, Log: r.env.Log}
	set, err := coll.Collect(ctx, r.tree.Objects())
	if err != nil {
		r.env.Log.Warn().Err(err).Msg("metadata collection failed; continuing plan-only")
		r.result.Notices = append(r.result.Notices,
			"object statistics unavailable: "+qerror.Message(err))
		return nil
	}
	r.stats = set
	r.result.Metadata = set
	r.result.Notices = append(r.result.Notices, set.Notices...)
	return nil
}

func (r *run) detect(context.Context) error {
	r.result.Findings = analyzer.Analyze(r.tree, r.stats, r.env.Analyzer)
	return nil
}

// recordHistory compares against the most recent prior snapshot and then
// appends this execution. A history-store failure never fails the analysis.
func (r *run) recordHistory(ctx context.Context) error {
	if r.env.Store == nil {
		return nil
	}

	priors, err := r.env.Store.RecentSnapshots(ctx,
		r.norm.Fingerprint, r.env.DBName, r.env.InstanceID, 1)
	if err != nil {
		r.noteStoreFailure(err)
		return nil
	}
	var prior *history.ExecutionSnapshot
	if len(priors) > 0 {
		prior = &priors[0]
	}

	verdict := history.BuildVerdict(prior, r.tree.Hash, r.tree.Root.Cost, r.tableRows())
	r.result.RegressionVerdict = &verdict

	snap := &history.ExecutionSnapshot{
		Fingerprint:    r.norm.Fingerprint,
		DBName:         r.env.DBName,
		InstanceID:     r.env.InstanceID,
		PlanHash:       r.tree.Hash,
		Cost:           r.tree.Root.Cost,
		TableRows:      r.tableRows(),
		PlanOperations: r.tree.Operations(),
		SQLSample:      r.sql,
		WasRegression:  verdict.IsRegression,
		CostChangePct:  verdict.CostChangePct,
		PlanChanged:    verdict.PlanChanged,
	}
	summary, err := r.env.Store.InsertSnapshot(ctx, snap)
	if err != nil {
		r.noteStoreFailure(err)
		return nil
	}
	r.result.Summary = summary
	return nil
}

func (r *run) noteStoreFailure(err error) {
	r.env.Log.Warn().Err(err).Msg("history store unavailable")
	r.result.Notices = append(r.result.Notices,
		"history unavailable: "+qerror.Message(err))
}

func (r *run) tableRows() map[string]int64 {
	if r.stats == nil || len(r.stats.Tables) == 0 {
		return nil
	}
	rows := make(map[string]int64, len(r.stats.Tables))
	for key, t := range r.stats.Tables {
		rows[key] = t.RowCount
	}
	return rows
}

// finalize applies the preset, downgrading when the standard rendering is
// too large for the consumer.
func finalize(result output.AnalysisResult, requested output.Preset) output.AnalysisResult {
	size := output.RenderedSize(result)
	chosen, notice := output.SelectPreset(requested, size)
	out := result.Minimize(chosen)
	if notice != "" {
		out.Notices = append(out.Notices, notice)
	}
	return out
}

// Compare explains two candidate statements against the same database and
// diffs their estimated plans. Nothing is written to history.
func Compare(ctx context.Context, env *Env, sqlA, sqlB string) (output.ComparisonEnvelope, error) {
	var envlp output.ComparisonEnvelope

	if err := validator.Validate(ctx, env.DB, sqlA, env.Limits); err != nil {
		return envlp, err
	}
	if err := validator.Validate(ctx, env.DB, sqlB, env.Limits); err != nil {
		return envlp, err
	}

	treeA, err := plan.Collect(ctx, env.DB, sqlA)
	if err != nil {
		return envlp, err
	}
	treeB, err := plan.Collect(ctx, env.DB, sqlB)
	if err != nil {
		return envlp, err
	}

	cmp := &comparator.Comparator{}

	envlp = output.ComparisonEnvelope{
		DBName:       env.DBName,
		FingerprintA: normalize.Normalize(sqlA).Fingerprint,
		FingerprintB: normalize.Normalize(sqlB).Fingerprint,
		SQLTextA:     sqlA,
		SQLTextB:     sqlB,
		PlanTextA:    plan.RenderText(treeA),
		PlanTextB:    plan.RenderText(treeB),
		Result:       cmp.Compare(treeA, treeB),
	}
	return envlp, nil
}
