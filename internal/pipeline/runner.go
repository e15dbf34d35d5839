// Package pipeline drives one sync run: fetch and join the source, derive
// fields, reproject, snapshot the target, diff and apply.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"parcelsync/internal/derive"
	"parcelsync/internal/diff"
	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/join"
	"parcelsync/internal/logging"
	"parcelsync/internal/metrics"
	"parcelsync/internal/publish"
	"parcelsync/internal/reproject"
	"parcelsync/internal/schema"
	"parcelsync/internal/source"
	"parcelsync/internal/store"
	psync "parcelsync/internal/sync"
	"parcelsync/internal/types"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when Run is called while a run is active.
var ErrRunInProgress = pserrors.New("a sync run is already in progress")

// Loader reads the tabular export.
type Loader interface {
	Load(ctx context.Context, uri string) ([]types.Row, error)
}

// Config is the immutable per-layer configuration of a Runner.
type Config struct {
	Layer     string
	TaxCodes  []string
	ExportURI string
	TargetCRS string
	Schema    *schema.Schema
	PINRule   derive.PINRule
	URLs      derive.URLBuilder
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Source   source.Source
	Loader   Loader
	Target   store.Target
	Executor *psync.Executor
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Options tune a single run.
type Options struct {
	// DryRun stops after DIFFING without writing or publishing.
	DryRun bool
}

// Runner runs the pipeline. One Runner runs at most one pass at a time.
type Runner struct {
	cfg     Config
	deps    Deps
	join    *join.Engine
	adapter *reproject.Adapter
	running atomic.Bool
}

// New creates a Runner. A nil Executor gets one over deps.Target.
func New(cfg Config, deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Executor == nil {
		deps.Executor = psync.NewExecutor(deps.Target)
	}
	rule := cfg.PINRule
	return &Runner{
		cfg:  cfg,
		deps: deps,
		join: join.New(cfg.Schema, func(row types.Row) (string, bool) {
			return rule.PIN(row[types.FieldPnum], row[types.FieldRelatedPnum])
		}),
		adapter: reproject.NewAdapter(cfg.TargetCRS),
	}
}

// run carries the mutable state of one pass.
type run struct {
	r      *Runner
	ctx    context.Context
	report *Report
}

func (x *run) to(s State) {
	from := x.report.State
	if !CanTransition(from, s) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", from, s))
	}
	x.report.State = s
	x.report.Transitions = append(x.report.Transitions, Transition{From: from, To: s, At: x.r.deps.Now()})
	logging.FromContext(x.ctx).Debug().Str("from", string(from)).Str("to", string(s)).Msg("state")
}

func (x *run) abort(err error) (*Report, error) {
	x.report.Err = err
	x.to(StateAborted)

	ev := logging.FromContext(x.ctx).Error().Err(err)
	if pserrors.IsConcurrencyConflict(err) {
		ev = ev.Str("reason", "locked")
	}
	ev.Str("stage", string(x.report.abortedFrom())).Msg("sync run aborted")
	return x.report, err
}

func (x *run) issue(err error) {
	x.report.Issues = append(x.report.Issues, err)
	ev := logging.FromContext(x.ctx).Warn().Err(err)
	var dse *pserrors.DataShapeError
	var le *pserrors.LookupError
	switch {
	case pserrors.As(err, &dse):
		ev.Str("stage", dse.Stage).Str("pin", dse.PIN).Msg("record data shape problem")
	case pserrors.As(err, &le):
		ev.Str("stage", "derive").Str("pin", le.PIN).Msg("record lookup failed")
	default:
		ev.Msg("record problem")
	}
}

// Run executes one pass and returns its report along with the error that
// aborted it, if any. While another pass is active it returns
// ErrRunInProgress and no report.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithField(ctx, "layer", r.cfg.Layer)

	x := &run{r: r, ctx: ctx, report: &Report{
		RunID:   runID,
		Layer:   r.cfg.Layer,
		State:   StateIdle,
		DryRun:  opts.DryRun,
		Started: r.deps.Now(),
	}}
	defer func() {
		x.report.Finished = r.deps.Now()
		x.observe()
	}()

	logging.FromContext(ctx).Info().Bool("dry_run", opts.DryRun).Strs("tax_codes", r.cfg.TaxCodes).Msg("sync run started")

	// FETCHING_SOURCE: spatial snapshot, export, join, derive, reproject.
	x.to(StateFetchingSource)
	joined, err := x.fetchSource()
	if err != nil {
		return x.abort(err)
	}

	// FETCHING_TARGET: lock check, then a fresh snapshot.
	x.to(StateFetchingTarget)
	release, err := x.guard(opts.DryRun)
	if err != nil {
		return x.abort(err)
	}
	defer release()

	snapshot, err := r.deps.Target.Snapshot(ctx)
	if err != nil {
		return x.abort(err)
	}
	x.report.TargetRows = len(snapshot)

	// DIFFING
	x.to(StateDiffing)
	res := diff.Compute(joined.Records, snapshot)
	for _, e := range res.Excluded {
		x.issue(e)
	}
	x.report.Batch = res.Batch
	x.report.Unchanged = res.Unchanged
	x.report.Duplicates = res.Duplicates
	if len(res.Duplicates) > 0 {
		logging.FromContext(ctx).Warn().Int("rows", len(res.Duplicates)).Msg("target holds duplicate PINs; extra rows left untouched")
	}
	logging.FromContext(ctx).Info().
		Int("adds", len(res.Batch.Adds)).
		Int("updates", len(res.Batch.Updates)).
		Int("deletes", len(res.Batch.Deletes)).
		Int("unchanged", res.Unchanged).
		Msg("diff computed")

	if opts.DryRun {
		x.to(StateComplete)
		return x.report, nil
	}

	// APPLYING
	x.to(StateApplying)
	out, err := r.deps.Executor.Execute(ctx, res.Batch)
	if err != nil {
		return x.abort(err)
	}
	x.report.Applied = out.Result
	if out.HookErr != nil {
		x.report.HookErr = out.HookErr
	}

	x.to(StateComplete)
	summary := publish.NewSummary(r.cfg.Layer, runID, r.deps.Now(),
		out.Result.Added, out.Result.Updated, out.Result.Deleted, res.Unchanged)
	x.report.PublishErr = r.deps.Executor.Publish(ctx, summary)

	logging.FromContext(ctx).Info().
		Int("added", out.Result.Added).
		Int("updated", out.Result.Updated).
		Int("deleted", out.Result.Deleted).
		Int("issues", len(x.report.Issues)).
		Msg("sync run complete")
	return x.report, nil
}

func (x *run) fetchSource() (types.JoinedSet, error) {
	r := x.r
	ctx := logging.WithStage(x.ctx, "source")
	spatial := r.cfg.Schema.Spatial()

	filter := source.NewFilter(spatial.TaxCode, r.cfg.TaxCodes...)
	set, err := r.deps.Source.Fetch(ctx, filter)
	if err != nil {
		return types.JoinedSet{}, err
	}
	x.report.Features = len(set.Features)

	rows, err := r.deps.Loader.Load(ctx, r.cfg.ExportURI)
	if err != nil {
		return types.JoinedSet{}, err
	}
	x.report.Rows = len(rows)

	jr := r.join.Join(logging.WithStage(x.ctx, "join"), set, rows)
	x.report.Matched, x.report.Unmatched = jr.Matched, jr.Unmatched
	x.report.Collisions = jr.Collisions
	for _, e := range jr.Issues {
		x.issue(e)
	}

	d := derive.New(r.cfg.PINRule, r.cfg.URLs, r.deps.Now())
	unit := reproject.UnitOf(jr.Set.CRS)
	joined := types.JoinedSet{
		DatasetMeta: types.DatasetMeta{CRS: jr.Set.CRS, ExportedAt: d.ExportedAt()},
		Records:     make([]types.Record, 0, len(jr.Set.Records)),
	}
	for _, rec := range jr.Set.Records {
		enriched, issues := d.Enrich(rec, unit)
		for _, e := range issues {
			x.issue(e)
		}
		joined.Records = append(joined.Records, enriched)
	}

	out, decision, err := r.adapter.Apply(logging.WithStage(x.ctx, "reproject"), joined)
	if err != nil {
		return types.JoinedSet{}, err
	}
	x.report.Reprojection = decision
	return out, nil
}

func (x *run) guard(dryRun bool) (func(), error) {
	ctx := logging.WithStage(x.ctx, "target")
	if dryRun {
		locked, err := x.r.deps.Target.IsLocked(ctx)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, pserrors.NewConcurrencyConflict(x.r.cfg.Layer, "", nil)
		}
		return func() {}, nil
	}
	return x.r.deps.Executor.Guard(ctx, x.r.cfg.Layer)
}

func (x *run) observe() {
	rep := x.report
	x.r.deps.Metrics.Observe(metrics.Run{
		Layer:    rep.Layer,
		State:    string(rep.State),
		Duration: rep.Finished.Sub(rep.Started),
		Added:    rep.Applied.Added,
		Updated:  rep.Applied.Updated,
		Deleted:  rep.Applied.Deleted,
		Issues:   rep.IssueCounts(),
		Finished: rep.Finished,
		Success:  rep.State == StateComplete && !rep.DryRun,
	})
}
