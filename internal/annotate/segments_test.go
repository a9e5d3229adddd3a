package annotate

import (
	"errors"
	"math"
	"testing"

	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentStoreReplace(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		segments []models.Segment
		wantErr  bool
		errIndex int
	}{
		{"empty", 10, nil, false, 0},
		{"valid", 10, []models.Segment{{Start: 0, End: 2}, {Start: 3, End: 10}}, false, 0},
		{"unknown duration", 0, []models.Segment{{Start: 100, End: 200}}, false, 0},
		{"zero length", 10, []models.Segment{{Start: 0, End: 1}, {Start: 2, End: 2}}, true, 1},
		{"inverted", 10, []models.Segment{{Start: 5, End: 4}}, true, 0},
		{"negative start", 10, []models.Segment{{Start: -1, End: 4}}, true, 0},
		{"past duration", 10, []models.Segment{{Start: 5, End: 12}}, true, 0},
		{"nan", 10, []models.Segment{{Start: math.NaN(), End: 4}}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSegmentStore(tt.duration)
			require.NoError(t, store.Replace([]models.Segment{{Start: 1, End: 2}}))

			err := store.Replace(tt.segments)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, len(tt.segments), store.Len())
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSegment))
			var segErr *InvalidSegmentError
			require.True(t, errors.As(err, &segErr))
			assert.Equal(t, tt.errIndex, segErr.Index)
			assert.Equal(t, []models.Segment{{Start: 1, End: 2}}, store.Current(), "store must be unchanged")
		})
	}
}

func TestSegmentStoreCurrentIsCopy(t *testing.T) {
	store := NewSegmentStore(0)
	require.NoError(t, store.Replace([]models.Segment{{Start: 1, End: 2}}))

	got := store.Current()
	got[0].Start = 99

	seg, err := store.At(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, seg.Start)

	_, err = store.At(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestOverlaps(t *testing.T) {
	assert.Empty(t, Overlaps([]models.Segment{{Start: 0, End: 2}, {Start: 2, End: 3}}), "touching is not overlapping")
	assert.Empty(t, Overlaps([]models.Segment{{Start: 0, End: 2.0005}, {Start: 2, End: 3}}), "within tolerance")
	assert.Equal(t, []int{1}, Overlaps([]models.Segment{{Start: 0, End: 1}, {Start: 2, End: 4}, {Start: 3, End: 5}}))
}

func TestSegmentStoreLoadSkipsDuration(t *testing.T) {
	store := NewSegmentStore(10)
	require.NoError(t, store.Load([]models.Segment{{Start: 8, End: 11}}))
	assert.Equal(t, []int{0}, PastDuration(store.Current(), store.Duration()))

	require.NoError(t, store.Replace([]models.Segment{{Start: 1, End: 2}, {Start: 8, End: 11}}), "loaded segment is kept")
	assert.Error(t, store.Replace([]models.Segment{{Start: 8, End: 12}}), "changed segment is checked")

	assert.Error(t, store.Load([]models.Segment{{Start: 3, End: 2}}))
	assert.Nil(t, PastDuration([]models.Segment{{Start: 0, End: 99}}, 0))
}
