// Package sync applies an edit batch to the target store: it guards the
// write with the lock check, runs the hooks around it and publishes the
// summary afterwards.
package sync

import (
	"context"
	"fmt"
	"time"

	"parcelsync/internal/diff"
	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/publish"
	"parcelsync/internal/store"
)

// Executor owns the write side of a run.
type Executor struct {
	target    store.Target
	hook      Hook
	publisher publish.Publisher
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithHook sets the hook run around Apply.
func WithHook(h Hook) Option {
	return func(e *Executor) { e.hook = h }
}

// WithPublisher sets the summary publisher.
func WithPublisher(p publish.Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor with no hook and a log publisher.
func NewExecutor(target store.Target, opts ...Option) *Executor {
	e := &Executor{target: target, hook: NopHook{}, publisher: publish.Log{}, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Guard fails with a ConcurrencyConflict when another writer holds the
// target. Targets that implement store.Locker are locked for this run; the
// returned release func must be called when the run ends.
func (e *Executor) Guard(ctx context.Context, name string) (release func(), err error) {
	locked, err := e.target.IsLocked(ctx)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, pserrors.NewConcurrencyConflict(name, "", nil)
	}

	l, ok := e.target.(store.Locker)
	if !ok {
		return func() {}, nil
	}
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("release target lock")
		}
	}, nil
}

// Outcome is the result of Execute.
type Outcome struct {
	Result store.ApplyResult
	// HookErr is an AfterApply failure. The batch is committed regardless.
	HookErr error
}

// Execute applies the batch. A BeforeApply failure aborts before any write.
// An empty batch skips the hooks and the write.
func (e *Executor) Execute(ctx context.Context, b diff.Batch) (Outcome, error) {
	var out Outcome
	if b.IsEmpty() {
		return out, nil
	}
	log := logging.FromContext(ctx)

	if err := e.hook.BeforeApply(ctx); err != nil {
		return out, fmt.Errorf("before apply: %w", err)
	}

	res, applyErr := e.target.Apply(ctx, b)
	if err := e.hook.AfterApply(context.WithoutCancel(ctx)); err != nil {
		log.Error().Err(err).Msg("after apply hook failed")
		out.HookErr = err
	}
	if applyErr != nil {
		return out, applyErr
	}
	out.Result = res
	return out, nil
}

// Publish sends the summary of a completed run. A failure is logged and
// returned for the report; it never undoes the write.
func (e *Executor) Publish(ctx context.Context, s publish.Summary) error {
	if err := e.publisher.Publish(ctx, s); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("layer", s.Layer).Msg("publish summary failed")
		return err
	}
	return nil
}

// Now returns the executor's clock reading.
func (e *Executor) Now() time.Time { return e.now() }
