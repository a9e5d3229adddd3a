package annotate

// MarkerState is the state of the provisional marker protocol.
type MarkerState int

const (
	// StateIdle means annotation mode is off.
	StateIdle MarkerState = iota
	// StateAwaitingStart means annotation mode is on and no marker is placed.
	StateAwaitingStart
	// StateAwaitingEnd means the start marker is placed.
	StateAwaitingEnd
	// StateReadyToCommit means both markers are placed.
	StateReadyToCommit
)

func (s MarkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingStart:
		return "awaiting_start"
	case StateAwaitingEnd:
		return "awaiting_end"
	case StateReadyToCommit:
		return "ready_to_commit"
	default:
		return "unknown"
	}
}

// Boundary selects the start or end marker of a pair.
type Boundary int

const (
	BoundaryStart Boundary = iota
	BoundaryEnd
)

func (b Boundary) String() string {
	if b == BoundaryEnd {
		return "end"
	}
	return "start"
}

// ProvisionalPair is a staged, uncommitted start/end pair.
// Nil fields are markers that have not been placed.
type ProvisionalPair struct {
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// Empty reports whether neither marker is placed.
func (p ProvisionalPair) Empty() bool {
	return p.Start == nil && p.End == nil
}

// Complete reports whether both markers are placed.
func (p ProvisionalPair) Complete() bool {
	return p.Start != nil && p.End != nil
}

// Markers tracks the provisional marker pair while annotation mode is on.
// The zero value is Idle.
type Markers struct {
	state MarkerState
	start float64
	end   float64
	dirty bool
}

// State returns the current state.
func (m *Markers) State() MarkerState {
	return m.state
}

// Active reports whether annotation mode is on.
func (m *Markers) Active() bool {
	return m.state != StateIdle
}

// Dirty reports whether a complete uncommitted pair exists. It is recomputed
// on every transition and drives enabling of the commit action.
func (m *Markers) Dirty() bool {
	return m.dirty
}

// Pair returns a copy of the provisional pair.
func (m *Markers) Pair() ProvisionalPair {
	var p ProvisionalPair
	if m.state == StateAwaitingEnd || m.state == StateReadyToCommit {
		start := m.start
		p.Start = &start
	}
	if m.state == StateReadyToCommit {
		end := m.end
		p.End = &end
	}
	return p
}

// EnterAnnotationMode turns annotation mode on with an empty pair.
// Calling it while already active restarts the protocol.
func (m *Markers) EnterAnnotationMode() {
	m.transition(StateAwaitingStart)
}

// ExitAnnotationMode turns annotation mode off, discarding any pair.
func (m *Markers) ExitAnnotationMode() {
	m.transition(StateIdle)
}

// Place puts a marker at t. The first placement sets the start; the second
// sets the end if it lies after the start. Non-finite times are ignored.
// Returns false when the placement was ignored, which leaves the state
// untouched.
func (m *Markers) Place(t float64) bool {
	if !finite(t) {
		return false
	}
	switch m.state {
	case StateAwaitingStart:
		m.start = t
		m.transition(StateAwaitingEnd)
		return true
	case StateAwaitingEnd:
		if t <= m.start {
			return false
		}
		m.end = t
		m.transition(StateReadyToCommit)
		return true
	default:
		return false
	}
}

// Drag moves a placed marker to t. A dragged start never passes the end or
// goes below zero and a dragged end never passes the start, so
// 0 <= start < end holds throughout. Non-finite times are ignored.
// Returns the position the marker ended up at and whether the drag applied.
func (m *Markers) Drag(which Boundary, t float64) (float64, bool) {
	if !finite(t) {
		return 0, false
	}
	switch {
	case which == BoundaryStart && m.state == StateAwaitingEnd:
		m.start = t
	case which == BoundaryStart && m.state == StateReadyToCommit:
		m.start = max(0, min(t, m.end-Tolerance))
	case which == BoundaryEnd && m.state == StateReadyToCommit:
		m.end = max(t, m.start+Tolerance)
	default:
		return 0, false
	}
	m.transition(m.state)
	if which == BoundaryStart {
		return m.start, true
	}
	return m.end, true
}

// Take returns the complete pair for committing. The pair stays staged until
// Reset so a rejected commit can be retried.
func (m *Markers) Take() (ProvisionalPair, error) {
	if m.state != StateReadyToCommit {
		return ProvisionalPair{}, ErrNotReady
	}
	return m.Pair(), nil
}

// Reset clears the pair after a commit or cancel. Annotation mode stays on.
func (m *Markers) Reset() {
	if m.state == StateIdle {
		return
	}
	m.transition(StateAwaitingStart)
}

func (m *Markers) transition(to MarkerState) {
	if to == StateIdle || to == StateAwaitingStart {
		m.start, m.end = 0, 0
	}
	m.state = to
	m.dirty = to == StateReadyToCommit
}
