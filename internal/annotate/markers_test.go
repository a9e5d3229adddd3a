package annotate

import (
	"math"
	"testing"

	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkersProtocol(t *testing.T) {
	var m Markers
	assert.Equal(t, StateIdle, m.State())
	assert.False(t, m.Place(1), "placing while idle is ignored")

	m.EnterAnnotationMode()
	assert.Equal(t, StateAwaitingStart, m.State())
	assert.True(t, m.Pair().Empty())

	require.True(t, m.Place(3))
	assert.Equal(t, StateAwaitingEnd, m.State())
	assert.False(t, m.Dirty())

	require.True(t, m.Place(4))
	assert.Equal(t, StateReadyToCommit, m.State())
	assert.True(t, m.Dirty())

	pair, err := m.Take()
	require.NoError(t, err)
	require.True(t, pair.Complete())
	assert.Equal(t, 3.0, *pair.Start)
	assert.Equal(t, 4.0, *pair.End)

	assert.False(t, m.Place(5), "third placement is ignored")

	m.Reset()
	assert.Equal(t, StateAwaitingStart, m.State())
	assert.True(t, m.Pair().Empty())
	assert.False(t, m.Dirty())
}

func TestMarkersRejectEndNotAfterStart(t *testing.T) {
	for _, end := range []float64{2, 1.5, 0} {
		var m Markers
		m.EnterAnnotationMode()
		require.True(t, m.Place(2))

		before := m.Pair()
		assert.False(t, m.Place(end))
		assert.False(t, m.Place(end), "rejection is idempotent")
		assert.Equal(t, StateAwaitingEnd, m.State())
		assert.Equal(t, before, m.Pair())
		assert.False(t, m.Dirty())
	}
}

func TestMarkersDragClamps(t *testing.T) {
	var m Markers
	m.EnterAnnotationMode()
	m.Place(2)

	_, ok := m.Drag(BoundaryEnd, 9)
	assert.False(t, ok, "end marker not placed yet")

	pos, ok := m.Drag(BoundaryStart, 1)
	require.True(t, ok)
	assert.Equal(t, 1.0, pos)

	m.Place(4)

	pos, ok = m.Drag(BoundaryStart, 6)
	require.True(t, ok)
	assert.InDelta(t, 4-Tolerance, pos, 1e-9)

	pos, ok = m.Drag(BoundaryEnd, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 4-Tolerance+Tolerance, pos, 1e-9)

	pair := m.Pair()
	assert.Less(t, *pair.Start, *pair.End)
	assert.Equal(t, StateReadyToCommit, m.State())
}

func TestMarkersTakeNotReady(t *testing.T) {
	var m Markers
	_, err := m.Take()
	assert.ErrorIs(t, err, ErrNotReady)

	m.EnterAnnotationMode()
	m.Place(1)
	_, err = m.Take()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestMarkersExitDiscards(t *testing.T) {
	var m Markers
	m.EnterAnnotationMode()
	m.Place(1)
	m.Place(2)

	m.ExitAnnotationMode()
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, m.Pair().Empty())
	assert.False(t, m.Dirty())

	m.Reset()
	assert.Equal(t, StateIdle, m.State(), "reset does not re-enter annotation mode")

	m.EnterAnnotationMode()
	assert.True(t, m.Pair().Empty(), "no stale pair after re-entering")
}

func TestMarkersStayValid(t *testing.T) {
	var m Markers
	m.EnterAnnotationMode()
	assert.False(t, m.Place(math.NaN()))
	assert.Equal(t, StateAwaitingStart, m.State())

	m.Place(0)
	m.Place(0.0005)
	_, ok := m.Drag(BoundaryEnd, math.Inf(1))
	assert.False(t, ok)

	pos, ok := m.Drag(BoundaryStart, 0)
	require.True(t, ok)
	assert.Equal(t, 0.0, pos, "start never goes below zero")

	pair, err := m.Take()
	require.NoError(t, err)
	assert.Nil(t, ValidateSegment(models.Segment{Start: *pair.Start, End: *pair.End}, 0))
}
