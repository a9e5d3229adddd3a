package annotate

import "fmt"

// Style carries presentation hints for the renderer. The engine never reads
// geometry back from the renderer.
type Style struct {
	Color     string `json:"color"`
	Draggable bool   `json:"draggable"`
	Selected  bool   `json:"selected,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

// Renderer is the visualization sink driven by the engine.
type Renderer interface {
	ClearMarkers()
	ClearRegions()
	AddMarker(id MarkerID, time float64, label string, style Style)
	AddRegion(start, end float64, style Style)
}

// Palette used for render hints.
const (
	ColorCommitted   = "#5FAFD7"
	ColorSelected    = "#00D787"
	ColorProvisional = "#FFAF00"
	ColorEdited      = "#FF5F87"
)

// Marker is a recorded AddMarker call.
type Marker struct {
	ID    MarkerID `json:"id"`
	Time  float64  `json:"time"`
	Label string   `json:"label"`
	Style Style    `json:"style"`
}

// Region is a recorded AddRegion call.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Style Style   `json:"style"`
}

// RenderPlan is a Renderer that records what it was asked to draw. It is the
// payload sent to remote renderers.
type RenderPlan struct {
	Markers []Marker `json:"markers"`
	Regions []Region `json:"regions"`
}

func (p *RenderPlan) ClearMarkers() { p.Markers = []Marker{} }

func (p *RenderPlan) ClearRegions() { p.Regions = []Region{} }

func (p *RenderPlan) AddMarker(id MarkerID, time float64, label string, style Style) {
	p.Markers = append(p.Markers, Marker{ID: id, Time: time, Label: label, Style: style})
}

func (p *RenderPlan) AddRegion(start, end float64, style Style) {
	p.Regions = append(p.Regions, Region{Start: start, End: end, Style: style})
}

// Replay draws the recorded plan on r.
func (p *RenderPlan) Replay(r Renderer) {
	r.ClearMarkers()
	r.ClearRegions()
	for _, reg := range p.Regions {
		r.AddRegion(reg.Start, reg.End, reg.Style)
	}
	for _, m := range p.Markers {
		r.AddMarker(m.ID, m.Time, m.Label, m.Style)
	}
}

func turnLabel(i int, b Boundary, intent string) string {
	if intent == "" {
		return fmt.Sprintf("%d %s", i, b)
	}
	return fmt.Sprintf("%d %s (%s)", i, b, intent)
}
