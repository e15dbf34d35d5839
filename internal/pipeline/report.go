package pipeline

import (
	"fmt"
	"io"
	"time"

	"parcelsync/internal/diff"
	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/join"
	"parcelsync/internal/reproject"
	"parcelsync/internal/store"
	"parcelsync/internal/types"
)

// Report summarises one run.
type Report struct {
	RunID       string
	Layer       string
	State       State
	Transitions []Transition
	DryRun      bool
	Started     time.Time
	Finished    time.Time

	Features     int
	Rows         int
	Matched      int
	Unmatched    int
	TargetRows   int
	Reprojection reproject.Decision
	Collisions   []join.Collision

	Batch      diff.Batch
	Unchanged  int
	Duplicates []types.TargetRecord
	Applied    store.ApplyResult

	// Issues are record-level problems. None of them stopped the run.
	Issues []error
	// Err is what aborted the run.
	Err error
	// HookErr is an after-apply hook failure on a committed batch.
	HookErr error
	// PublishErr is a failed summary publish on a completed run.
	PublishErr error
}

// Written reports whether anything reached the target.
func (r *Report) Written() bool {
	return r.Applied.Added+r.Applied.Updated+r.Applied.Deleted > 0
}

// IssueCounts groups Issues by kind: data_shape, lookup or other.
func (r *Report) IssueCounts() map[string]int {
	counts := map[string]int{}
	for _, err := range r.Issues {
		switch {
		case pserrors.IsDataShape(err):
			counts["data_shape"]++
		case pserrors.IsLookup(err):
			counts["lookup"]++
		default:
			counts["other"]++
		}
	}
	return counts
}

func (r *Report) abortedFrom() State {
	if n := len(r.Transitions); n > 0 {
		return r.Transitions[n-1].From
	}
	return StateIdle
}

// Print writes a human-readable summary. verbose lists the PINs of every
// edit and every issue.
func (r *Report) Print(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Run %s (%s): %s", r.RunID, r.Layer, r.State)
	if r.DryRun {
		fmt.Fprint(w, " [dry run]")
	}
	fmt.Fprintf(w, " in %v\n", r.Finished.Sub(r.Started).Truncate(time.Millisecond))
	if r.Err != nil {
		fmt.Fprintf(w, "  aborted in %s: %v\n", r.abortedFrom(), r.Err)
	}
	fmt.Fprintf(w, "  source   : %d features, %d export rows, %d matched, %d unmatched, %d collisions\n",
		r.Features, r.Rows, r.Matched, r.Unmatched, len(r.Collisions))
	fmt.Fprintf(w, "  target   : %d rows, %d duplicate\n", r.TargetRows, len(r.Duplicates))
	fmt.Fprintf(w, "  edits    : %d adds, %d updates, %d deletes, %d unchanged\n",
		len(r.Batch.Adds), len(r.Batch.Updates), len(r.Batch.Deletes), r.Unchanged)
	if !r.DryRun && r.State == StateComplete {
		fmt.Fprintf(w, "  applied  : %d added, %d updated, %d deleted\n", r.Applied.Added, r.Applied.Updated, r.Applied.Deleted)
	}
	fmt.Fprintf(w, "  issues   : %d\n", len(r.Issues))
	if r.HookErr != nil {
		fmt.Fprintf(w, "  hook     : %v\n", r.HookErr)
	}
	if r.PublishErr != nil {
		fmt.Fprintf(w, "  publish  : %v\n", r.PublishErr)
	}

	if !verbose {
		return
	}
	for _, rec := range r.Batch.Adds {
		fmt.Fprintf(w, "  + %s\n", rec.PIN)
	}
	for _, u := range r.Batch.Updates {
		fmt.Fprintf(w, "  ~ %s %s\n", u.Record.PIN, u.GlobalID)
	}
	for _, gid := range r.Batch.Deletes {
		fmt.Fprintf(w, "  - %s\n", gid)
	}
	for _, c := range r.Collisions {
		fmt.Fprintf(w, "  ! duplicate export rows %d and %d for %s\n", c.Kept, c.Dropped, c.PIN)
	}
	for _, err := range r.Issues {
		fmt.Fprintf(w, "  ! %v\n", err)
	}
}
