package annotate

import (
	"slices"

	"github.com/raphaelgruber/turnmark/internal/models"
)

// MergeResult is the outcome of a commit.
type MergeResult struct {
	// Segments is the new committed sequence, start-ascending.
	Segments []models.Segment
	// Order maps each new position to the index the segment had before the
	// commit; the inserted segment maps to -1.
	Order []int
	// Inserted is the final index of the inserted segment, or -1.
	Inserted int
	// Edited lists the old indexes whose boundaries were overwritten.
	Edited []int
}

// Changed reports whether the commit altered the sequence in any way.
func (r MergeResult) Changed() bool {
	if r.Inserted >= 0 || len(r.Edited) > 0 {
		return true
	}
	for i, from := range r.Order {
		if from != i {
			return true
		}
	}
	return false
}

type mergeEntry struct {
	seg    models.Segment
	origin int
}

// Merge commits a provisional pair and any dragged boundaries of existing
// segments into current.
//
// Boundaries in edits only overwrite their segment when they moved further
// than Tolerance. The new segment goes before the first segment whose start is
// strictly greater than its own start, then the whole sequence is stably
// re-sorted by start. Without a pair and without effective edits the result
// equals current. current itself is never modified.
func Merge(current []models.Segment, pair ProvisionalPair, edits map[int]models.Segment, duration float64) (MergeResult, error) {
	entries := make([]mergeEntry, len(current))
	for i, seg := range current {
		entries[i] = mergeEntry{seg: seg, origin: i}
	}

	// Boundary edits, in index order so errors are deterministic
	var edited []int
	for _, i := range sortedKeys(edits) {
		if i < 0 || i >= len(entries) {
			return MergeResult{}, indexError("segment", i, len(entries))
		}
		moved := edits[i]
		seg := entries[i].seg
		changed := false
		if !near(moved.Start, seg.Start) {
			seg.Start = moved.Start
			changed = true
		}
		if !near(moved.End, seg.End) {
			seg.End = moved.End
			changed = true
		}
		if !changed {
			continue
		}
		if err := ValidateSegment(seg, duration); err != nil {
			err.Index = i
			return MergeResult{}, err
		}
		entries[i].seg = seg
		edited = append(edited, i)
	}

	// Provisional pair
	var inserted *models.Segment
	if !pair.Empty() {
		if !pair.Complete() {
			return MergeResult{}, ErrNotReady
		}
		seg := models.Segment{Start: *pair.Start, End: *pair.End}
		if err := ValidateSegment(seg, duration); err != nil {
			return MergeResult{}, err
		}
		pos := len(entries)
		for i, e := range entries {
			if e.seg.Start > seg.Start {
				pos = i
				break
			}
		}
		entries = slices.Insert(entries, pos, mergeEntry{seg: seg, origin: -1})
		inserted = &seg
	}

	slices.SortStableFunc(entries, func(a, b mergeEntry) int {
		switch {
		case a.seg.Start < b.seg.Start:
			return -1
		case a.seg.Start > b.seg.Start:
			return 1
		default:
			return 0
		}
	})

	result := MergeResult{
		Segments: make([]models.Segment, len(entries)),
		Order:    make([]int, len(entries)),
		Inserted: -1,
		Edited:   edited,
	}
	for i, e := range entries {
		result.Segments[i] = e.seg
		result.Order[i] = e.origin
	}
	if inserted != nil {
		result.Inserted = locateInserted(entries, *inserted)
	}
	return result, nil
}

// locateInserted finds the inserted segment by approximate boundary match.
func locateInserted(entries []mergeEntry, seg models.Segment) int {
	for i, e := range entries {
		if e.origin == -1 && near(e.seg.Start, seg.Start) && near(e.seg.End, seg.End) {
			return i
		}
	}
	return -1
}

func sortedKeys(m map[int]models.Segment) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
