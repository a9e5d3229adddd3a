package annotate

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/turnmark/internal/models"
)

// Sentinel errors for engine operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidSegment indicates a segment with malformed boundaries.
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrNotReady indicates a commit was requested before both provisional
	// markers were placed.
	ErrNotReady = errors.New("provisional pair not ready to commit")

	// ErrIndexOutOfRange indicates a turn, slot or segment index outside the
	// current sequence.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrEmptySlotKey indicates a slot without a key.
	ErrEmptySlotKey = errors.New("slot key is empty")

	// ErrDerivedSlot indicates an attempt to remove a dialogue slot that is
	// contributed by a turn.
	ErrDerivedSlot = errors.New("dialogue slot is derived from a turn")

	// ErrUnknownMarker indicates a marker ID that does not refer to a live marker.
	ErrUnknownMarker = errors.New("unknown marker")
)

// InvalidSegmentError describes why a segment was rejected.
// Index is -1 for a provisional segment that is not part of a sequence yet.
type InvalidSegmentError struct {
	Index   int
	Segment models.Segment
	Reason  string
}

func (e *InvalidSegmentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid segment [%g, %g]: %s", e.Segment.Start, e.Segment.End, e.Reason)
	}
	return fmt.Sprintf("invalid segment %d [%g, %g]: %s", e.Index, e.Segment.Start, e.Segment.End, e.Reason)
}

// Is reports ErrInvalidSegment so callers can match on the sentinel.
func (e *InvalidSegmentError) Is(target error) bool {
	return target == ErrInvalidSegment
}

func indexError(what string, i, n int) error {
	return fmt.Errorf("%w: %s %d (have %d)", ErrIndexOutOfRange, what, i, n)
}
