package annotate

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/models"
)

// Options configures an Engine.
type Options struct {
	// Duration of the audio in seconds; <= 0 means unknown.
	Duration float64
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

// Engine owns the annotation state of one conversation and turns low-level
// timeline events into a consistent, ordered list of turns.
//
// An Engine is not safe for concurrent use. Callers serialize events per
// conversation.
type Engine struct {
	key       models.ConversationKey
	store     *SegmentStore
	turns     *Turns
	markers   Markers
	edits     map[int]models.Segment
	selection Selection
	dragging  *MarkerRef
	dirty     bool

	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates an engine for a conversation with no turns.
func New(key models.ConversationKey, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		key:     key,
		store:   NewSegmentStore(opts.Duration),
		turns:   NewTurns(),
		edits:   make(map[int]models.Segment),
		logger:  logger.With("conversation", key.String()),
		metrics: opts.Metrics,
	}
}

// Restore creates an engine from a persisted annotation. Turns are re-sorted
// by segment start if the document is out of order. Segments ending after
// opts.Duration are kept; see Warnings.
func Restore(a *models.DialogueAnnotation, opts Options) (*Engine, error) {
	e := New(a.Key(), opts)

	segments := make([]models.Segment, len(a.Turns))
	for i, turn := range a.Turns {
		if len(turn.Segments) == 0 {
			return nil, &InvalidSegmentError{Index: i, Reason: "turn has no segment"}
		}
		segments[i] = turn.Segments[0]
	}

	result, err := Merge(segments, ProvisionalPair{}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", a.Key(), err)
	}
	if err := e.store.Load(result.Segments); err != nil {
		return nil, fmt.Errorf("restore %s: %w", a.Key(), err)
	}
	if past := PastDuration(result.Segments, e.store.Duration()); len(past) > 0 {
		e.logger.Warn("restored turns end after the audio", "turns", past, "duration", e.store.Duration())
	}

	e.turns = LoadTurns(a.Turns, a.DialogueSlots)
	e.turns.Apply(result.Order, result.Segments)
	if e.turns.Len() > 0 {
		e.selection.Select(0)
	}
	return e, nil
}

// Key returns the conversation the engine annotates.
func (e *Engine) Key() models.ConversationKey {
	return e.key
}

// Duration returns the audio duration in seconds, or 0 if unknown.
func (e *Engine) Duration() float64 {
	return e.store.Duration()
}

// Annotation snapshots the current state as a persistable document.
func (e *Engine) Annotation() *models.DialogueAnnotation {
	a := models.NewDialogueAnnotation(e.key)
	a.Turns = e.turns.All()
	a.DialogueSlots = e.turns.DialogueSlots()
	return a
}

// Segments returns the committed segment sequence.
func (e *Engine) Segments() []models.Segment {
	return e.store.Current()
}

// Turns returns a copy of all turns.
func (e *Engine) Turns() []models.Turn {
	return e.turns.All()
}

// DialogueSlots returns the dialogue-level slot set.
func (e *Engine) DialogueSlots() []models.SlotValue {
	return e.turns.DialogueSlots()
}

// Warnings describes committed turns that overlap or end after the audio.
// Neither is rejected.
func (e *Engine) Warnings() []string {
	segs := e.store.Current()
	var out []string
	for _, i := range Overlaps(segs) {
		out = append(out, fmt.Sprintf("turn %d overlaps turn %d", i, i+1))
	}
	for _, i := range PastDuration(segs, e.store.Duration()) {
		out = append(out, fmt.Sprintf("turn %d ends at %gs, after the audio (%gs)", i, segs[i].End, e.store.Duration()))
	}
	return out
}

// MarkerState returns the state of the provisional marker protocol.
func (e *Engine) MarkerState() MarkerState {
	return e.markers.State()
}

// Pair returns the provisional marker pair.
func (e *Engine) Pair() ProvisionalPair {
	return e.markers.Pair()
}

// PendingEdits returns the dragged but uncommitted boundaries, by turn index.
func (e *Engine) PendingEdits() map[int]models.Segment {
	out := make(map[int]models.Segment, len(e.edits))
	for i, s := range e.edits {
		out[i] = s
	}
	return out
}

// Selection returns the active turn index; ok is false when nothing is selected.
func (e *Engine) Selection() (int, bool) {
	return e.selection.Index()
}

// CanCommit reports whether Commit would apply a provisional pair or a
// dragged boundary.
func (e *Engine) CanCommit() bool {
	return e.markers.Dirty() || len(e.edits) > 0
}

// Dirty reports whether the annotation changed since it was last saved.
func (e *Engine) Dirty() bool {
	return e.dirty
}

// MarkSaved records a successful save. Call it only after the persistence
// collaborator confirmed the write.
func (e *Engine) MarkSaved() {
	e.dirty = false
}

// =============================================================================
// TIMELINE EVENTS
// =============================================================================

// EnterAnnotationMode starts the provisional marker protocol.
func (e *Engine) EnterAnnotationMode() {
	e.markers.EnterAnnotationMode()
	e.logger.Debug("annotation mode on")
}

// ExitAnnotationMode leaves annotation mode, discarding the provisional pair.
func (e *Engine) ExitAnnotationMode() {
	e.markers.ExitAnnotationMode()
	e.logger.Debug("annotation mode off")
}

// Click handles a click on the timeline at t. In annotation mode it places a
// provisional marker; otherwise it selects the turn whose segment contains t.
// Returns whether the click changed anything.
func (e *Engine) Click(t float64) bool {
	if !finite(t) {
		e.logger.Debug("click ignored", "time", t)
		return false
	}
	t = e.clamp(t)
	if e.markers.Active() {
		placed := e.markers.Place(t)
		if !placed {
			e.logger.Debug("marker placement ignored", "time", t, "state", e.markers.State().String())
		}
		return placed
	}
	for i, seg := range e.store.Current() {
		if t >= seg.Start && t < seg.End {
			e.selection.Select(i)
			return true
		}
	}
	return false
}

// MarkerDragStart handles the start of a marker drag. Grabbing a committed
// marker selects its turn.
func (e *Engine) MarkerDragStart(id MarkerID) error {
	ref, err := e.resolve(id)
	if err != nil {
		return err
	}
	if !ref.Provisional() {
		e.selection.Select(ref.Turn)
	}
	e.dragging = &ref
	return nil
}

// MarkerDrag moves a marker to t and returns the position it was clamped to.
// Provisional markers keep start < end; committed boundaries become pending
// edits applied by the next Commit.
func (e *Engine) MarkerDrag(id MarkerID, t float64) (float64, error) {
	ref, err := e.resolve(id)
	if err != nil {
		return 0, err
	}
	if !finite(t) {
		return 0, &InvalidSegmentError{Index: -1, Segment: models.Segment{Start: t, End: t}, Reason: "boundaries must be finite"}
	}
	t = e.clamp(t)

	if ref.Provisional() {
		pos, ok := e.markers.Drag(ref.Boundary, t)
		if !ok {
			return 0, fmt.Errorf("%w: %s is not placed", ErrUnknownMarker, id)
		}
		return pos, nil
	}

	seg, ok := e.edits[ref.Turn]
	if !ok {
		seg, _ = e.store.At(ref.Turn)
	}
	if ref.Boundary == BoundaryStart {
		seg.Start = min(t, seg.End-Tolerance)
		if seg.Start < 0 {
			seg.Start = 0
		}
	} else {
		seg.End = max(t, seg.Start+Tolerance)
	}
	if orig, _ := e.store.At(ref.Turn); near(seg.Start, orig.Start) && near(seg.End, orig.End) {
		delete(e.edits, ref.Turn)
	} else {
		e.edits[ref.Turn] = seg
	}

	if ref.Boundary == BoundaryStart {
		return seg.Start, nil
	}
	return seg.End, nil
}

// MarkerDragEnd handles the release of a dragged marker.
func (e *Engine) MarkerDragEnd(id MarkerID) error {
	if _, err := e.resolve(id); err != nil {
		return err
	}
	e.dragging = nil
	return nil
}

// Dragging returns the marker currently being dragged.
func (e *Engine) Dragging() (MarkerRef, bool) {
	if e.dragging == nil {
		return MarkerRef{}, false
	}
	return *e.dragging, true
}

// DiscardEdits drops dragged but uncommitted boundaries.
func (e *Engine) DiscardEdits() {
	clear(e.edits)
}

// Commit merges the provisional pair (if complete) and pending boundary edits
// into the segment sequence, re-indexes turns and selection, and resets the
// provisional pair. On error nothing changes.
func (e *Engine) Commit() (MergeResult, error) {
	start := time.Now()

	var pair ProvisionalPair
	if e.markers.State() == StateReadyToCommit {
		pair, _ = e.markers.Take()
	}

	result, err := Merge(e.store.Current(), pair, e.edits, e.store.Duration())
	if err == nil {
		err = e.store.Replace(result.Segments)
	}
	e.metrics.Observe(metrics.OpCommit, start, err)
	if err != nil {
		e.logger.Warn("commit rejected", "error", err)
		return MergeResult{}, err
	}

	e.turns.Apply(result.Order, result.Segments)
	if len(result.Edited) == 0 && result.Inserted >= 0 {
		e.selection.Inserted(result.Inserted)
	} else {
		e.selection.Remap(result.Order)
		if _, ok := e.selection.Index(); !ok && result.Inserted >= 0 {
			e.selection.Select(result.Inserted)
		}
	}

	clear(e.edits)
	if !pair.Empty() {
		e.markers.Reset()
	}
	if result.Changed() {
		e.dirty = true
	}

	e.logger.Info("commit applied",
		"inserted", result.Inserted,
		"edited", len(result.Edited),
		"segments", len(result.Segments),
	)
	return result, nil
}

// =============================================================================
// TURN METADATA
// =============================================================================

// Select makes turn i the active turn.
func (e *Engine) Select(i int) error {
	if i < 0 || i >= e.turns.Len() {
		return indexError("turn", i, e.turns.Len())
	}
	e.selection.Select(i)
	return nil
}

// SetIntent assigns the intent of turn i.
func (e *Engine) SetIntent(i int, intent string) error {
	if err := e.turns.SetIntent(i, intent); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// AttachSlot upserts a slot into turn i.
func (e *Engine) AttachSlot(i int, slot models.SlotValue) error {
	if err := e.turns.AttachSlot(i, slot); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// RemoveSlot removes the slot at position j of turn i.
func (e *Engine) RemoveSlot(i, j int) error {
	if err := e.turns.RemoveSlot(i, j); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// AddDialogueSlot adds a dialogue-only slot.
func (e *Engine) AddDialogueSlot(slot models.SlotValue) error {
	if err := e.turns.AddDialogueSlot(slot); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// RemoveDialogueSlot removes a dialogue-only slot by position in DialogueSlots.
func (e *Engine) RemoveDialogueSlot(j int) error {
	if err := e.turns.RemoveDialogueSlot(j); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// DeleteTurn removes turn i together with its segment.
func (e *Engine) DeleteTurn(i int) error {
	if i < 0 || i >= e.turns.Len() {
		return indexError("turn", i, e.turns.Len())
	}

	segments := e.store.Current()
	if err := e.store.Replace(slices.Delete(segments, i, i+1)); err != nil {
		return err
	}
	if err := e.turns.Delete(i); err != nil {
		return err
	}
	e.selection.Deleted(i, e.turns.Len())
	e.shiftEdits(i)
	e.dragging = nil
	e.dirty = true

	e.logger.Info("turn deleted", "index", i, "remaining", e.turns.Len())
	return nil
}

// Render redraws the timeline on r: one region per committed turn with its
// boundary markers, then the provisional markers and, when complete, their
// region.
func (e *Engine) Render(r Renderer) {
	r.ClearMarkers()
	r.ClearRegions()

	selected, hasSel := e.selection.Index()
	turns := e.turns.All()
	for i, seg := range e.store.Current() {
		edit, edited := e.edits[i]
		if edited {
			seg = edit
		}
		style := Style{Color: ColorCommitted, Draggable: true, Selected: hasSel && selected == i}
		if style.Selected {
			style.Color = ColorSelected
		}
		if edited {
			style.Color = ColorEdited
			style.Pending = true
		}

		intent := ""
		if i < len(turns) {
			intent = turns[i].Intent
		}
		r.AddRegion(seg.Start, seg.End, style)
		r.AddMarker(TurnMarkerID(i, BoundaryStart), seg.Start, turnLabel(i, BoundaryStart, intent), style)
		r.AddMarker(TurnMarkerID(i, BoundaryEnd), seg.End, turnLabel(i, BoundaryEnd, intent), style)
	}

	pair := e.markers.Pair()
	pending := Style{Color: ColorProvisional, Draggable: true, Pending: true}
	if pair.Start != nil {
		r.AddMarker(ProvisionalMarkerID(BoundaryStart), *pair.Start, "new start", pending)
	}
	if pair.End != nil {
		r.AddMarker(ProvisionalMarkerID(BoundaryEnd), *pair.End, "new end", pending)
	}
	if pair.Complete() {
		r.AddRegion(*pair.Start, *pair.End, pending)
	}
}

// resolve parses id and checks it refers to a live marker.
func (e *Engine) resolve(id MarkerID) (MarkerRef, error) {
	ref, err := ParseMarkerID(id)
	if err != nil {
		return MarkerRef{}, err
	}
	if ref.Provisional() {
		pair := e.markers.Pair()
		if (ref.Boundary == BoundaryStart && pair.Start == nil) || (ref.Boundary == BoundaryEnd && pair.End == nil) {
			return MarkerRef{}, fmt.Errorf("%w: %s is not placed", ErrUnknownMarker, id)
		}
		return ref, nil
	}
	if ref.Turn >= e.store.Len() {
		return MarkerRef{}, fmt.Errorf("%w: %s", ErrUnknownMarker, id)
	}
	return ref, nil
}

// shiftEdits drops the edit of a deleted turn and moves later edits down.
func (e *Engine) shiftEdits(deleted int) {
	next := make(map[int]models.Segment, len(e.edits))
	for i, s := range e.edits {
		switch {
		case i < deleted:
			next[i] = s
		case i > deleted:
			next[i-1] = s
		}
	}
	e.edits = next
}

func (e *Engine) clamp(t float64) float64 {
	if t < 0 {
		return 0
	}
	if d := e.store.Duration(); d > 0 && t > d {
		return d
	}
	return t
}
