// Package diff reconciles a joined dataset against a target snapshot and
// produces the add/update/delete edit batch.
package diff

import (
	"sort"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/types"
)

// Update rewrites the target row addressed by GlobalID with Record.
type Update struct {
	GlobalID string
	Record   types.Record
}

// Batch is the edit set of one run. Adds and Updates are sorted by PIN,
// Deletes by GlobalID.
type Batch struct {
	Adds    []types.Record
	Updates []Update
	Deletes []string
}

// IsEmpty reports whether the batch has no edits.
func (b Batch) IsEmpty() bool {
	return len(b.Adds) == 0 && len(b.Updates) == 0 && len(b.Deletes) == 0
}

// Len returns the total number of edits.
func (b Batch) Len() int {
	return len(b.Adds) + len(b.Updates) + len(b.Deletes)
}

// Result wraps the batch with what was left out of it.
type Result struct {
	Batch     Batch
	Unchanged int
	// Excluded are joined records left out of the batch: a blank PIN, or a
	// PIN already seen earlier in the joined set.
	Excluded []error
	// Duplicates are extra target rows of a PIN present in the joined set.
	// They are neither updated nor deleted.
	Duplicates []types.TargetRecord
}

// Compute builds the edit batch. It only reads its inputs; the same pair of
// inputs always yields the same result.
//
// A joined PIN absent from the target is an add. A PIN present on both
// sides is an update when the revisions differ; an invalid revision on
// either side always differs. A target PIN absent from the joined set is a
// delete of every target row carrying it.
func Compute(joined []types.Record, target []types.TargetRecord) Result {
	var res Result

	source := make(map[string]int, len(joined))
	for i, rec := range joined {
		if rec.PIN == "" {
			res.Excluded = append(res.Excluded, pserrors.NewDataShapeError("diff", "", types.FieldPIN, "", nil))
			continue
		}
		if _, dup := source[rec.PIN]; dup {
			res.Excluded = append(res.Excluded, pserrors.NewDataShapeError("diff", rec.PIN, types.FieldPIN, rec.PIN, pserrors.New("duplicate PIN in joined set")))
			continue
		}
		source[rec.PIN] = i
	}

	// First target row per PIN is the one an update addresses.
	existing := make(map[string]types.TargetRecord, len(target))
	for _, tr := range target {
		if _, ok := source[tr.PIN]; !ok {
			res.Batch.Deletes = append(res.Batch.Deletes, tr.GlobalID)
			continue
		}
		if _, dup := existing[tr.PIN]; dup {
			res.Duplicates = append(res.Duplicates, tr)
			continue
		}
		existing[tr.PIN] = tr
	}

	for pin, i := range source {
		rec := joined[i]
		tr, ok := existing[pin]
		switch {
		case !ok:
			res.Batch.Adds = append(res.Batch.Adds, rec)
		case !rec.Revision.Same(tr.Revision):
			res.Batch.Updates = append(res.Batch.Updates, Update{GlobalID: tr.GlobalID, Record: rec})
		default:
			res.Unchanged++
		}
	}

	sort.Slice(res.Batch.Adds, func(i, j int) bool { return res.Batch.Adds[i].PIN < res.Batch.Adds[j].PIN })
	sort.Slice(res.Batch.Updates, func(i, j int) bool {
		return res.Batch.Updates[i].Record.PIN < res.Batch.Updates[j].Record.PIN
	})
	sort.Strings(res.Batch.Deletes)
	sort.Slice(res.Duplicates, func(i, j int) bool {
		if res.Duplicates[i].PIN != res.Duplicates[j].PIN {
			return res.Duplicates[i].PIN < res.Duplicates[j].PIN
		}
		return res.Duplicates[i].GlobalID < res.Duplicates[j].GlobalID
	})
	return res
}
