package annotate

import (
	"fmt"
	"strconv"
	"strings"
)

// MarkerID identifies a marker handed to the renderer. It is derived from
// engine state only; the renderer echoes it back in drag events.
type MarkerID string

const (
	provisionalPrefix = "provisional"
	turnPrefix        = "turn"
)

// ProvisionalMarkerID returns the ID of a provisional boundary.
func ProvisionalMarkerID(b Boundary) MarkerID {
	return MarkerID(provisionalPrefix + ":" + b.String())
}

// TurnMarkerID returns the ID of a committed boundary of turn i.
func TurnMarkerID(i int, b Boundary) MarkerID {
	return MarkerID(fmt.Sprintf("%s:%d:%s", turnPrefix, i, b))
}

// MarkerRef is a parsed MarkerID. Turn is -1 for provisional markers.
type MarkerRef struct {
	Turn     int
	Boundary Boundary
}

// Provisional reports whether the marker belongs to the provisional pair.
func (r MarkerRef) Provisional() bool {
	return r.Turn < 0
}

// ParseMarkerID decodes a marker ID produced by this package.
func ParseMarkerID(id MarkerID) (MarkerRef, error) {
	parts := strings.Split(string(id), ":")
	switch {
	case len(parts) == 2 && parts[0] == provisionalPrefix:
		b, err := parseBoundary(parts[1])
		if err != nil {
			return MarkerRef{}, fmt.Errorf("%w: %q", ErrUnknownMarker, id)
		}
		return MarkerRef{Turn: -1, Boundary: b}, nil
	case len(parts) == 3 && parts[0] == turnPrefix:
		i, err := strconv.Atoi(parts[1])
		if err != nil || i < 0 {
			return MarkerRef{}, fmt.Errorf("%w: %q", ErrUnknownMarker, id)
		}
		b, err := parseBoundary(parts[2])
		if err != nil {
			return MarkerRef{}, fmt.Errorf("%w: %q", ErrUnknownMarker, id)
		}
		return MarkerRef{Turn: i, Boundary: b}, nil
	}
	return MarkerRef{}, fmt.Errorf("%w: %q", ErrUnknownMarker, id)
}

func parseBoundary(s string) (Boundary, error) {
	switch s {
	case "start":
		return BoundaryStart, nil
	case "end":
		return BoundaryEnd, nil
	}
	return 0, fmt.Errorf("unknown boundary %q", s)
}
