package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectionInserted(t *testing.T) {
	tests := []struct {
		name     string
		selected int
		at       int
		want     int
	}{
		{"before selection", 2, 1, 3},
		{"at selection", 2, 2, 3},
		{"after selection", 2, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Selection
			s.Select(tt.selected)
			s.Inserted(tt.at)
			got, ok := s.Index()
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	var empty Selection
	empty.Inserted(0)
	got, ok := empty.Index()
	assert.True(t, ok, "first insertion selects the new turn")
	assert.Equal(t, 0, got)
}

func TestSelectionDeleted(t *testing.T) {
	tests := []struct {
		name      string
		selected  int
		at        int
		remaining int
		want      int
		wantOK    bool
	}{
		{"delete before", 2, 0, 4, 1, true},
		{"delete selected resets to first", 2, 2, 4, 0, true},
		{"delete after", 1, 3, 4, 1, true},
		{"delete last turn", 0, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Selection
			s.Select(tt.selected)
			s.Deleted(tt.at, tt.remaining)
			got, ok := s.Index()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectionRemap(t *testing.T) {
	var s Selection
	s.Select(0)
	s.Remap([]int{1, -1, 0})
	got, _ := s.Index()
	assert.Equal(t, 2, got)

	s.Clear()
	s.Remap([]int{0})
	_, ok := s.Index()
	assert.False(t, ok)

	s.Select(-3)
	_, ok = s.Index()
	assert.False(t, ok)
}
