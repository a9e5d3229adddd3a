package annotate

import (
	"fmt"
	"slices"

	"github.com/raphaelgruber/turnmark/internal/models"
)

// Turns holds intent and slot metadata for each committed segment, by
// position, together with the dialogue-level slot set.
//
// Dialogue slots are fully derived: the (key, value)-deduplicated union of
// every turn's slots in turn order, followed by the slots added at dialogue
// level only. The derived set is rebuilt after every mutation.
type Turns struct {
	turns    []models.Turn
	extra    []models.SlotValue
	dialogue []models.SlotValue
}

// NewTurns creates an empty aggregator.
func NewTurns() *Turns {
	return &Turns{dialogue: []models.SlotValue{}}
}

// LoadTurns rebuilds the aggregator from persisted turns and dialogue slots.
// Dialogue slots not contributed by any turn are kept as dialogue-only slots.
func LoadTurns(turns []models.Turn, dialogue []models.SlotValue) *Turns {
	t := &Turns{turns: make([]models.Turn, len(turns))}
	for i, turn := range turns {
		t.turns[i] = cloneTurn(turn)
	}
	fromTurns := make(map[models.SlotValue]bool)
	for _, turn := range t.turns {
		for _, s := range turn.Slots {
			fromTurns[s] = true
		}
	}
	for _, s := range dialogue {
		if !fromTurns[s] {
			t.extra = append(t.extra, s)
		}
	}
	t.recompute()
	return t
}

// Len returns the number of turns.
func (t *Turns) Len() int {
	return len(t.turns)
}

// Turn returns a copy of turn i.
func (t *Turns) Turn(i int) (models.Turn, error) {
	if err := t.check(i); err != nil {
		return models.Turn{}, err
	}
	return cloneTurn(t.turns[i]), nil
}

// All returns a deep copy of all turns.
func (t *Turns) All() []models.Turn {
	out := make([]models.Turn, len(t.turns))
	for i, turn := range t.turns {
		out[i] = cloneTurn(turn)
	}
	return out
}

// DialogueSlots returns a copy of the dialogue-level slot set.
func (t *Turns) DialogueSlots() []models.SlotValue {
	return slices.Clone(t.dialogue)
}

// SetIntent assigns the intent of turn i.
func (t *Turns) SetIntent(i int, intent string) error {
	if err := t.check(i); err != nil {
		return err
	}
	t.turns[i].Intent = intent
	return nil
}

// AttachSlot upserts slot into turn i by key: an existing slot with the same
// key is replaced in place, otherwise the slot is appended.
func (t *Turns) AttachSlot(i int, slot models.SlotValue) error {
	if err := t.check(i); err != nil {
		return err
	}
	if slot.Key == "" {
		return ErrEmptySlotKey
	}
	slots := t.turns[i].Slots
	if j := slices.IndexFunc(slots, func(s models.SlotValue) bool { return s.Key == slot.Key }); j >= 0 {
		slots[j] = slot
	} else {
		t.turns[i].Slots = append(slots, slot)
	}
	t.recompute()
	return nil
}

// RemoveSlot removes the slot at position j of turn i.
func (t *Turns) RemoveSlot(i, j int) error {
	if err := t.check(i); err != nil {
		return err
	}
	slots := t.turns[i].Slots
	if j < 0 || j >= len(slots) {
		return indexError("slot", j, len(slots))
	}
	t.turns[i].Slots = slices.Delete(slots, j, j+1)
	t.recompute()
	return nil
}

// AddDialogueSlot adds a slot at dialogue level only.
func (t *Turns) AddDialogueSlot(slot models.SlotValue) error {
	if slot.Key == "" {
		return ErrEmptySlotKey
	}
	if !slices.Contains(t.extra, slot) {
		t.extra = append(t.extra, slot)
	}
	t.recompute()
	return nil
}

// RemoveDialogueSlot removes the dialogue slot at position j. Slots that are
// contributed by a turn come back on the next recompute, so only dialogue-only
// slots can be removed this way.
func (t *Turns) RemoveDialogueSlot(j int) error {
	if j < 0 || j >= len(t.dialogue) {
		return indexError("dialogue slot", j, len(t.dialogue))
	}
	target := t.dialogue[j]
	k := slices.Index(t.extra, target)
	if k < 0 {
		return fmt.Errorf("%w: %s=%s", ErrDerivedSlot, target.Key, target.Value)
	}
	t.extra = slices.Delete(t.extra, k, k+1)
	t.recompute()
	return nil
}

// Delete removes turn i.
func (t *Turns) Delete(i int) error {
	if err := t.check(i); err != nil {
		return err
	}
	t.turns = slices.Delete(t.turns, i, i+1)
	t.recompute()
	return nil
}

// Apply re-indexes turns after a merge. order[i] is the previous index of the
// turn now at position i, -1 for a new empty turn. segments are bound to the
// turns positionally.
func (t *Turns) Apply(order []int, segments []models.Segment) {
	next := make([]models.Turn, len(order))
	for i, from := range order {
		if from >= 0 && from < len(t.turns) {
			next[i] = t.turns[from]
		} else {
			next[i] = models.Turn{Slots: []models.SlotValue{}}
		}
		if i < len(segments) {
			next[i].Segments = []models.Segment{segments[i]}
		}
	}
	t.turns = next
	t.recompute()
}

func (t *Turns) check(i int) error {
	if i < 0 || i >= len(t.turns) {
		return indexError("turn", i, len(t.turns))
	}
	return nil
}

func (t *Turns) recompute() {
	t.dialogue = DedupeSlots(t.turns, t.extra)
}

// DedupeSlots unions the slots of all turns followed by extra, keeping the
// first occurrence of each (key, value) pair. The same key with different
// values survives as separate entries.
func DedupeSlots(turns []models.Turn, extra []models.SlotValue) []models.SlotValue {
	seen := make(map[models.SlotValue]bool)
	out := []models.SlotValue{}
	add := func(s models.SlotValue) {
		if seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, turn := range turns {
		for _, s := range turn.Slots {
			add(s)
		}
	}
	for _, s := range extra {
		add(s)
	}
	return out
}

func cloneTurn(t models.Turn) models.Turn {
	out := models.Turn{
		Segments: slices.Clone(t.Segments),
		Intent:   t.Intent,
		Slots:    slices.Clone(t.Slots),
	}
	if out.Segments == nil {
		out.Segments = []models.Segment{}
	}
	if out.Slots == nil {
		out.Slots = []models.SlotValue{}
	}
	return out
}
