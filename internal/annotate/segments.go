// Package annotate implements the segment annotation engine: the committed
// segment sequence, the provisional marker protocol, the commit/merge
// algorithm, turn and slot aggregation, and selection tracking.
package annotate

import (
	"math"
	"slices"

	"github.com/raphaelgruber/turnmark/internal/models"
)

// Tolerance is the distance in seconds under which two boundaries are the
// same boundary. A dragged boundary must move further than this to count as
// edited.
const Tolerance = 0.001

// SegmentStore owns the ordered list of committed segments.
// It validates individual segments but does not reject overlaps; ordering is
// maintained by Merge, the only mutator in normal operation.
type SegmentStore struct {
	segments []models.Segment
	duration float64
}

// NewSegmentStore creates an empty store. A duration <= 0 means unknown and
// disables the upper bound check.
func NewSegmentStore(duration float64) *SegmentStore {
	return &SegmentStore{duration: duration}
}

// Duration returns the audio duration the store validates against.
func (s *SegmentStore) Duration() float64 {
	return s.duration
}

// Len returns the number of committed segments.
func (s *SegmentStore) Len() int {
	return len(s.segments)
}

// At returns the segment at index i.
func (s *SegmentStore) At(i int) (models.Segment, error) {
	if i < 0 || i >= len(s.segments) {
		return models.Segment{}, indexError("segment", i, len(s.segments))
	}
	return s.segments[i], nil
}

// Current returns a copy of the committed sequence.
func (s *SegmentStore) Current() []models.Segment {
	out := make([]models.Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Replace validates every segment and swaps in the new sequence.
// Segments already in the store are not checked against the duration again,
// so documents restored with Load stay committable.
// On error the store is left unchanged.
func (s *SegmentStore) Replace(segments []models.Segment) error {
	for i, seg := range segments {
		bound := s.duration
		if slices.Contains(s.segments, seg) {
			bound = 0
		}
		if err := ValidateSegment(seg, bound); err != nil {
			err.Index = i
			return err
		}
	}
	s.set(segments)
	return nil
}

// Load swaps in a persisted sequence. It skips the duration bound: a
// segment ending after the audio is reported by PastDuration instead of
// rejected.
func (s *SegmentStore) Load(segments []models.Segment) error {
	for i, seg := range segments {
		if err := ValidateSegment(seg, 0); err != nil {
			err.Index = i
			return err
		}
	}
	s.set(segments)
	return nil
}

func (s *SegmentStore) set(segments []models.Segment) {
	next := make([]models.Segment, len(segments))
	copy(next, segments)
	s.segments = next
}

// ValidateSegment checks 0 <= start < end <= duration. The upper bound is
// skipped when duration <= 0. The returned error has Index -1.
func ValidateSegment(seg models.Segment, duration float64) *InvalidSegmentError {
	reason := ""
	switch {
	case !finite(seg.Start) || !finite(seg.End):
		reason = "boundaries must be finite"
	case seg.Start < 0:
		reason = "start is negative"
	case seg.End <= seg.Start:
		reason = "end must be greater than start"
	case duration > 0 && seg.End > duration+Tolerance:
		reason = "end exceeds audio duration"
	}
	if reason == "" {
		return nil
	}
	return &InvalidSegmentError{Index: -1, Segment: seg, Reason: reason}
}

// Overlaps returns the indexes i for which segment i ends after segment i+1
// starts. Touching segments do not overlap.
func Overlaps(segments []models.Segment) []int {
	var out []int
	for i := 0; i+1 < len(segments); i++ {
		if segments[i].End > segments[i+1].Start+Tolerance {
			out = append(out, i)
		}
	}
	return out
}

func finite(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0)
}

// PastDuration returns the indexes of segments ending after duration.
// It returns nil when the duration is unknown.
func PastDuration(segments []models.Segment, duration float64) []int {
	if duration <= 0 {
		return nil
	}
	var out []int
	for i, seg := range segments {
		if seg.End > duration+Tolerance {
			out = append(out, i)
		}
	}
	return out
}

// near reports whether two times are the same boundary.
func near(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}
