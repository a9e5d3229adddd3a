package annotate

// Selection tracks the active turn index across edits.
// The zero value selects nothing.
type Selection struct {
	index int
	valid bool
}

// Index returns the selected turn index; ok is false when nothing is selected.
func (s *Selection) Index() (index int, ok bool) {
	return s.index, s.valid
}

// Select sets the selection directly, as on a marker click or drag start.
// A negative index clears it.
func (s *Selection) Select(i int) {
	if i < 0 {
		s.Clear()
		return
	}
	s.index, s.valid = i, true
}

// Clear selects nothing.
func (s *Selection) Clear() {
	s.index, s.valid = 0, false
}

// Inserted shifts the selection for an insertion at position p. With nothing
// selected the inserted turn becomes the selection.
func (s *Selection) Inserted(p int) {
	if !s.valid {
		s.Select(p)
		return
	}
	if s.index >= p {
		s.index++
	}
}

// Deleted shifts the selection for a deletion at position p. remaining is the
// sequence length after the deletion. Deleting the selected turn resets the
// selection to the first turn.
func (s *Selection) Deleted(p, remaining int) {
	if !s.valid {
		return
	}
	switch {
	case remaining <= 0:
		s.Clear()
	case s.index == p:
		s.index = 0
	case s.index > p:
		s.index--
	}
}

// Remap follows the selected turn through a reorder. order[i] is the previous
// index of the turn now at position i.
func (s *Selection) Remap(order []int) {
	if !s.valid {
		return
	}
	for i, from := range order {
		if from == s.index {
			s.index = i
			return
		}
	}
	if len(order) == 0 {
		s.Clear()
	}
}
