package annotate

import (
	"math"
	"testing"

	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = models.ConversationKey{CustomerID: "acme", ConversationID: "call-1"}

// addTurn drives the full marker protocol for one segment.
func addTurn(t *testing.T, e *Engine, start, end float64) MergeResult {
	t.Helper()
	e.EnterAnnotationMode()
	require.True(t, e.Click(start))
	require.True(t, e.Click(end))
	require.True(t, e.CanCommit())
	result, err := e.Commit()
	require.NoError(t, err)
	return result
}

func TestEngineCommitScenario(t *testing.T) {
	e := New(testKey, Options{Duration: 10})
	addTurn(t, e, 0, 2)
	addTurn(t, e, 5, 7)

	result := addTurn(t, e, 3, 4)

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, []models.Segment{{Start: 0, End: 2}, {Start: 3, End: 4}, {Start: 5, End: 7}}, e.Segments())
	assert.Equal(t, StateAwaitingStart, e.MarkerState(), "commit returns to awaiting start")
	assert.False(t, e.CanCommit())
	assert.True(t, e.Dirty())

	turns := e.Turns()
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, []models.Segment{e.Segments()[i]}, turn.Segments)
	}
}

func TestEngineTurnMetadataFollowsInsert(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 0, 2)
	addTurn(t, e, 5, 7)
	require.NoError(t, e.SetIntent(1, "request"))
	require.NoError(t, e.AttachSlot(1, slot("city", "Graz")))

	addTurn(t, e, 3, 4)

	turns := e.Turns()
	assert.Equal(t, "", turns[1].Intent)
	assert.Equal(t, "request", turns[2].Intent)
	assert.Equal(t, []models.SlotValue{slot("city", "Graz")}, turns[2].Slots)
}

func TestEngineEmptyCommitIsNoop(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 1, 2)
	e.MarkSaved()
	before := e.Annotation()

	result, err := e.Commit()
	require.NoError(t, err)
	assert.False(t, result.Changed())
	assert.Equal(t, before, e.Annotation())
	assert.False(t, e.Dirty())

	e.EnterAnnotationMode()
	e.Click(5)
	result, err = e.Commit()
	require.NoError(t, err, "half-placed pair is not committed")
	assert.False(t, result.Changed())
	assert.Equal(t, StateAwaitingEnd, e.MarkerState())
}

func TestEngineRejectedPlacement(t *testing.T) {
	e := New(testKey, Options{Duration: 10})
	e.EnterAnnotationMode()
	require.True(t, e.Click(4))

	assert.False(t, e.Click(4))
	assert.False(t, e.Click(3))
	assert.Equal(t, StateAwaitingEnd, e.MarkerState())
	assert.False(t, e.CanCommit())
}

func TestEngineClampsToDuration(t *testing.T) {
	e := New(testKey, Options{Duration: 10})
	e.EnterAnnotationMode()
	e.Click(-3)
	e.Click(42)

	pair := e.Pair()
	require.True(t, pair.Complete())
	assert.Equal(t, 0.0, *pair.Start)
	assert.Equal(t, 10.0, *pair.End)
}

func TestEngineClickSelectsTurnOutsideAnnotationMode(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 0, 2)
	addTurn(t, e, 3, 4)
	e.ExitAnnotationMode()

	assert.True(t, e.Click(0.5))
	sel, ok := e.Selection()
	require.True(t, ok)
	assert.Equal(t, 0, sel)

	assert.False(t, e.Click(2.5), "gap between turns")
}

func TestEngineDragCommittedBoundary(t *testing.T) {
	mc := metrics.NewCollector()
	e := New(testKey, Options{Duration: 20, Metrics: mc})
	addTurn(t, e, 0, 2)
	addTurn(t, e, 5, 7)
	e.ExitAnnotationMode()

	id := TurnMarkerID(1, BoundaryStart)
	require.NoError(t, e.MarkerDragStart(id))
	sel, _ := e.Selection()
	assert.Equal(t, 1, sel, "grabbing a marker selects its turn")

	pos, err := e.MarkerDrag(id, 9)
	require.NoError(t, err)
	assert.InDelta(t, 7-Tolerance, pos, 1e-9, "start cannot pass end")

	pos, err = e.MarkerDrag(id, 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, pos)
	require.NoError(t, e.MarkerDragEnd(id))

	assert.True(t, e.CanCommit())
	assert.Equal(t, []models.Segment{{Start: 0, End: 2}, {Start: 5, End: 7}}, e.Segments(), "edit is pending")

	result, err := e.Commit()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, result.Edited)
	assert.Equal(t, []models.Segment{{Start: 0, End: 2}, {Start: 4, End: 7}}, e.Segments())
	assert.False(t, e.CanCommit())

	require.NotNil(t, mc.Snapshot().Commit)
	assert.Equal(t, int64(3), mc.Snapshot().Commit.Count)
}

func TestEngineDragReordersTurns(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 0, 1)
	addTurn(t, e, 5, 6)
	require.NoError(t, e.SetIntent(0, "first"))
	require.NoError(t, e.Select(0))

	_, err := e.MarkerDrag(TurnMarkerID(0, BoundaryEnd), 9)
	require.NoError(t, err)
	_, err = e.MarkerDrag(TurnMarkerID(0, BoundaryStart), 8)
	require.NoError(t, err)

	_, err = e.Commit()
	require.NoError(t, err)

	assert.Equal(t, []models.Segment{{Start: 5, End: 6}, {Start: 8, End: 9}}, e.Segments())
	assert.Equal(t, "first", e.Turns()[1].Intent)
	sel, _ := e.Selection()
	assert.Equal(t, 1, sel, "selection follows the moved turn")
}

func TestEngineDragProvisional(t *testing.T) {
	e := New(testKey, Options{})
	e.EnterAnnotationMode()
	e.Click(2)

	_, err := e.MarkerDrag(ProvisionalMarkerID(BoundaryEnd), 3)
	assert.ErrorIs(t, err, ErrUnknownMarker)

	e.Click(4)
	pos, err := e.MarkerDrag(ProvisionalMarkerID(BoundaryEnd), 1)
	require.NoError(t, err)
	assert.InDelta(t, 2+Tolerance, pos, 1e-9)

	_, err = e.MarkerDrag(MarkerID("turn:7:start"), 1)
	assert.ErrorIs(t, err, ErrUnknownMarker)
	assert.ErrorIs(t, e.MarkerDragStart(MarkerID("bogus")), ErrUnknownMarker)
}

func TestEngineDeleteThenInsert(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 0, 1)
	addTurn(t, e, 2, 3)
	addTurn(t, e, 4, 5)
	addTurn(t, e, 6, 7)
	require.NoError(t, e.AttachSlot(0, slot("a", "1")))
	require.NoError(t, e.AttachSlot(2, slot("a", "1")))
	require.NoError(t, e.AttachSlot(3, slot("b", "2")))
	require.NoError(t, e.Select(3))

	require.NoError(t, e.DeleteTurn(2))
	sel, _ := e.Selection()
	assert.Equal(t, 2, sel)
	assert.Equal(t, []models.Segment{{Start: 0, End: 1}, {Start: 2, End: 3}, {Start: 6, End: 7}}, e.Segments())
	assert.Len(t, e.Turns(), 3)

	// Falls between turns[1] and the turn now at index 2
	result := addTurn(t, e, 4.5, 5.5)
	assert.Equal(t, 2, result.Inserted)
	sel, _ = e.Selection()
	assert.Equal(t, 3, sel)

	require.NoError(t, e.AttachSlot(2, slot("a", "1")))
	dialogue := e.DialogueSlots()
	seen := map[models.SlotValue]bool{}
	for _, s := range dialogue {
		assert.False(t, seen[s], "duplicate dialogue slot %v", s)
		seen[s] = true
	}
	assert.Equal(t, []models.SlotValue{slot("a", "1"), slot("b", "2")}, dialogue)
}

func TestEngineDeleteSelection(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 0, 1)
	addTurn(t, e, 2, 3)
	addTurn(t, e, 4, 5)
	require.NoError(t, e.Select(2))

	require.NoError(t, e.DeleteTurn(0))
	sel, _ := e.Selection()
	assert.Equal(t, 1, sel)

	require.NoError(t, e.DeleteTurn(1))
	sel, ok := e.Selection()
	assert.True(t, ok)
	assert.Equal(t, 0, sel)

	require.NoError(t, e.DeleteTurn(0))
	_, ok = e.Selection()
	assert.False(t, ok)
	assert.Empty(t, e.Segments())

	assert.ErrorIs(t, e.DeleteTurn(0), ErrIndexOutOfRange)
}

func TestEngineDeleteShiftsPendingEdits(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 0, 1)
	addTurn(t, e, 2, 3)
	addTurn(t, e, 4, 5)

	_, err := e.MarkerDrag(TurnMarkerID(2, BoundaryEnd), 6)
	require.NoError(t, err)
	_, err = e.MarkerDrag(TurnMarkerID(0, BoundaryEnd), 1.5)
	require.NoError(t, err)

	require.NoError(t, e.DeleteTurn(0))
	assert.Equal(t, map[int]models.Segment{1: {Start: 4, End: 6}}, e.PendingEdits())

	_, err = e.Commit()
	require.NoError(t, err)
	assert.Equal(t, []models.Segment{{Start: 2, End: 3}, {Start: 4, End: 6}}, e.Segments())
}

func TestEngineRestore(t *testing.T) {
	doc := &models.DialogueAnnotation{
		CustomerID:     "acme",
		ConversationID: "call-1",
		Turns: []models.Turn{
			{Segments: []models.Segment{{Start: 5, End: 6}}, Intent: "late", Slots: []models.SlotValue{slot("k", "v")}},
			{Segments: []models.Segment{{Start: 1, End: 2}}, Intent: "early", Slots: []models.SlotValue{}},
		},
		DialogueSlots: []models.SlotValue{slot("k", "v"), slot("vip", "yes")},
	}

	e, err := Restore(doc, Options{Duration: 10})
	require.NoError(t, err)
	assert.Equal(t, []models.Segment{{Start: 1, End: 2}, {Start: 5, End: 6}}, e.Segments())
	assert.Equal(t, "early", e.Turns()[0].Intent)
	assert.Equal(t, []models.SlotValue{slot("k", "v"), slot("vip", "yes")}, e.DialogueSlots())
	assert.False(t, e.Dirty())
	sel, ok := e.Selection()
	assert.True(t, ok)
	assert.Equal(t, 0, sel)

	_, err = Restore(&models.DialogueAnnotation{Turns: []models.Turn{{Intent: "x"}}}, Options{})
	assert.ErrorIs(t, err, ErrInvalidSegment)
}

func TestEngineRender(t *testing.T) {
	e := New(testKey, Options{})
	addTurn(t, e, 0, 2)
	require.NoError(t, e.SetIntent(0, "greet"))
	require.NoError(t, e.Select(0))
	e.Click(3)
	e.Click(4)

	plan := &RenderPlan{Markers: []Marker{{ID: "stale"}}}
	e.Render(plan)

	require.Len(t, plan.Regions, 2)
	assert.Equal(t, ColorSelected, plan.Regions[0].Style.Color)
	assert.True(t, plan.Regions[1].Style.Pending)

	ids := make([]MarkerID, len(plan.Markers))
	for i, m := range plan.Markers {
		ids[i] = m.ID
	}
	assert.Equal(t, []MarkerID{"turn:0:start", "turn:0:end", "provisional:start", "provisional:end"}, ids)
	assert.Equal(t, "0 start (greet)", plan.Markers[0].Label)
}

func TestEngineIgnoresNonFiniteTimes(t *testing.T) {
	e := New(testKey, Options{})
	e.EnterAnnotationMode()

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.False(t, e.Click(v), "start at %v", v)
	}
	assert.Equal(t, StateAwaitingStart, e.MarkerState())

	require.True(t, e.Click(1))
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.False(t, e.Click(v), "end at %v", v)
		_, err := e.MarkerDrag(ProvisionalMarkerID(BoundaryStart), v)
		assert.ErrorIs(t, err, ErrInvalidSegment)
	}
	assert.Equal(t, StateAwaitingEnd, e.MarkerState())
	assert.Equal(t, 1.0, *e.Pair().Start)

	require.True(t, e.Click(3))
	_, err := e.Commit()
	require.NoError(t, err)
	assert.Equal(t, []models.Segment{{Start: 1, End: 3}}, e.Segments())

	_, err = e.MarkerDrag(TurnMarkerID(0, BoundaryEnd), math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidSegment)
	assert.False(t, e.CanCommit())
}

func TestEngineDragProvisionalStartNearZero(t *testing.T) {
	e := New(testKey, Options{Duration: 10})
	e.EnterAnnotationMode()
	require.True(t, e.Click(0))
	require.True(t, e.Click(0.0005))

	pos, err := e.MarkerDrag(ProvisionalMarkerID(BoundaryStart), 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)

	_, err = e.Commit()
	require.NoError(t, err)
	assert.Equal(t, []models.Segment{{Start: 0, End: 0.0005}}, e.Segments())
}

func TestEngineDragBackDropsEdit(t *testing.T) {
	e := New(testKey, Options{Duration: 20})
	addTurn(t, e, 0, 2)
	addTurn(t, e, 5, 7)
	e.ExitAnnotationMode()

	id := TurnMarkerID(1, BoundaryStart)
	_, err := e.MarkerDrag(id, 4)
	require.NoError(t, err)
	assert.True(t, e.CanCommit())

	_, err = e.MarkerDrag(id, 5+Tolerance/2)
	require.NoError(t, err)
	assert.False(t, e.CanCommit(), "boundary is back where it was")

	plan := &RenderPlan{}
	e.Render(plan)
	require.Len(t, plan.Regions, 2)
	assert.NotEqual(t, ColorEdited, plan.Regions[1].Style.Color)
	assert.False(t, plan.Regions[1].Style.Pending)
}

func TestEngineRestorePastDuration(t *testing.T) {
	doc := &models.DialogueAnnotation{
		CustomerID:     "acme",
		ConversationID: "call-1",
		Turns: []models.Turn{
			{Segments: []models.Segment{{Start: 1, End: 3}}},
			{Segments: []models.Segment{{Start: 2.5, End: 10.2}}},
		},
	}

	e, err := Restore(doc, Options{Duration: 10})
	require.NoError(t, err, "a shorter reported duration must not lock the conversation")
	assert.Equal(t, []string{
		"turn 0 overlaps turn 1",
		"turn 1 ends at 10.2s, after the audio (10s)",
	}, e.Warnings())

	addTurn(t, e, 0.2, 0.8)
	assert.Len(t, e.Segments(), 3, "old segments stay committable")

	e.EnterAnnotationMode()
	require.True(t, e.Click(4))
	require.True(t, e.Click(12))
	assert.Equal(t, 10.0, *e.Pair().End, "new markers are still clamped")
}
