package sync

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"parcelsync/internal/diff"
	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/publish"
	"parcelsync/internal/store"
	"parcelsync/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	locked     bool
	applyErr   error
	acquireErr error
	calls      []string
}

func (f *fakeTarget) Snapshot(context.Context) ([]types.TargetRecord, error) { return nil, nil }

func (f *fakeTarget) Apply(_ context.Context, b diff.Batch) (store.ApplyResult, error) {
	f.calls = append(f.calls, "apply")
	if f.applyErr != nil {
		return store.ApplyResult{}, f.applyErr
	}
	return store.ApplyResult{Added: len(b.Adds), Updated: len(b.Updates), Deleted: len(b.Deletes)}, nil
}

func (f *fakeTarget) IsLocked(context.Context) (bool, error) { return f.locked, nil }

func (f *fakeTarget) Acquire(context.Context) error {
	f.calls = append(f.calls, "acquire")
	return f.acquireErr
}

func (f *fakeTarget) Release(context.Context) error {
	f.calls = append(f.calls, "release")
	return nil
}

type recordingHook struct {
	target    *fakeTarget
	beforeErr error
	afterErr  error
}

func (h *recordingHook) BeforeApply(context.Context) error {
	h.target.calls = append(h.target.calls, "before")
	return h.beforeErr
}

func (h *recordingHook) AfterApply(context.Context) error {
	h.target.calls = append(h.target.calls, "after")
	return h.afterErr
}

var batch = diff.Batch{Adds: []types.Record{{PIN: "A"}}, Deletes: []string{"{g}"}}

func TestGuard(t *testing.T) {
	ft := &fakeTarget{}
	e := NewExecutor(ft)

	release, err := e.Guard(context.Background(), "TAX_PARCELS")
	require.NoError(t, err)
	release()
	assert.Equal(t, []string{"acquire", "release"}, ft.calls)

	locked := &fakeTarget{locked: true}
	_, err = NewExecutor(locked).Guard(context.Background(), "TAX_PARCELS")
	require.Error(t, err)
	assert.True(t, pserrors.IsConcurrencyConflict(err))
	assert.Empty(t, locked.calls, "no lock taken and nothing written")

	racing := &fakeTarget{acquireErr: pserrors.NewConcurrencyConflict("TAX_PARCELS", "run-2", nil)}
	_, err = NewExecutor(racing).Guard(context.Background(), "TAX_PARCELS")
	assert.True(t, pserrors.IsConcurrencyConflict(err))
}

func TestExecuteOrder(t *testing.T) {
	ft := &fakeTarget{}
	e := NewExecutor(ft, WithHook(&recordingHook{target: ft}))

	out, err := e.Execute(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "apply", "after"}, ft.calls)
	assert.Equal(t, store.ApplyResult{Added: 1, Deleted: 1}, out.Result)
	assert.NoError(t, out.HookErr)
}

func TestExecuteEmptyBatchSkipsWrite(t *testing.T) {
	ft := &fakeTarget{}
	e := NewExecutor(ft, WithHook(&recordingHook{target: ft}))
	_, err := e.Execute(context.Background(), diff.Batch{})
	require.NoError(t, err)
	assert.Empty(t, ft.calls)
}

func TestExecuteBeforeFailureWritesNothing(t *testing.T) {
	ft := &fakeTarget{}
	e := NewExecutor(ft, WithHook(&recordingHook{target: ft, beforeErr: errors.New("service did not stop")}))

	_, err := e.Execute(context.Background(), batch)
	require.Error(t, err)
	assert.Equal(t, []string{"before"}, ft.calls)
}

func TestExecuteAfterRunsWhenApplyFails(t *testing.T) {
	ft := &fakeTarget{applyErr: pserrors.NewTransportError("target", "commit", errors.New("rejected"))}
	e := NewExecutor(ft, WithHook(&recordingHook{target: ft}))

	_, err := e.Execute(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, pserrors.IsTransport(err))
	assert.Equal(t, []string{"before", "apply", "after"}, ft.calls)
}

func TestExecuteAfterFailureKeepsResult(t *testing.T) {
	ft := &fakeTarget{}
	e := NewExecutor(ft, WithHook(&recordingHook{target: ft, afterErr: errors.New("service did not start")}))

	out, err := e.Execute(context.Background(), batch)
	require.NoError(t, err)
	assert.Error(t, out.HookErr)
	assert.Equal(t, 1, out.Result.Added)
}

type failingPublisher struct{ called bool }

func (f *failingPublisher) Publish(context.Context, publish.Summary) error {
	f.called = true
	return errors.New("broker down")
}

func TestPublishFailureIsReturnedNotFatal(t *testing.T) {
	p := &failingPublisher{}
	e := NewExecutor(&fakeTarget{}, WithPublisher(p))
	err := e.Publish(context.Background(), publish.Summary{Layer: "TAX_PARCELS"})
	assert.Error(t, err)
	assert.True(t, p.called)
}

func TestCommandHook(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX commands")
	}
	ctx := context.Background()

	h := CommandHook{Before: []string{"true", "  "}, After: []string{"echo restarted"}}
	assert.NoError(t, h.BeforeApply(ctx))
	assert.NoError(t, h.AfterApply(ctx))

	err := CommandHook{Before: []string{"false"}}.BeforeApply(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `before hook "false"`)

	assert.NoError(t, NopHook{}.BeforeApply(ctx))
	assert.NoError(t, NopHook{}.AfterApply(ctx))
}
