package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/turnmark/internal/annotate"
	"github.com/raphaelgruber/turnmark/internal/models"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
	Track   lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
	Track:   lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

const defaultTimelineWidth = 60

// Timeline is a terminal annotate.Renderer. It collects the regions and
// markers the engine draws and prints them as a colored track with a marker
// legend.
type Timeline struct {
	Width    int
	Duration float64
	theme    Theme
	plan     annotate.RenderPlan
}

// NewTimeline creates a timeline for audio of the given duration (<= 0 if
// unknown; the track then spans the furthest drawn point).
func NewTimeline(duration float64, width int) *Timeline {
	if width <= 0 {
		width = defaultTimelineWidth
	}
	return &Timeline{Width: width, Duration: duration, theme: defaultTheme}
}

func (t *Timeline) ClearMarkers() { t.plan.ClearMarkers() }

func (t *Timeline) ClearRegions() { t.plan.ClearRegions() }

func (t *Timeline) AddMarker(id annotate.MarkerID, time float64, label string, style annotate.Style) {
	t.plan.AddMarker(id, time, label, style)
}

func (t *Timeline) AddRegion(start, end float64, style annotate.Style) {
	t.plan.AddRegion(start, end, style)
}

// span returns the length of audio the track covers.
func (t *Timeline) span() float64 {
	if t.Duration > 0 {
		return t.Duration
	}
	span := 0.0
	for _, r := range t.plan.Regions {
		span = max(span, r.End)
	}
	for _, m := range t.plan.Markers {
		span = max(span, m.Time)
	}
	if span <= 0 {
		return 1
	}
	return span
}

func (t *Timeline) column(sec, span float64) int {
	col := int(sec / span * float64(t.Width))
	return min(max(col, 0), t.Width-1)
}

// String draws the track, the time axis and the marker legend.
func (t *Timeline) String() string {
	span := t.span()
	cells := make([]rune, t.Width)
	colors := make([]string, t.Width)
	for i := range cells {
		cells[i] = '·'
	}

	for _, r := range t.plan.Regions {
		from, to := t.column(r.Start, span), t.column(r.End, span)
		for c := from; c <= to; c++ {
			cells[c] = '━'
			colors[c] = r.Style.Color
		}
	}
	for _, m := range t.plan.Markers {
		c := t.column(m.Time, span)
		cells[c] = '┃'
		colors[c] = m.Style.Color
	}

	var b strings.Builder
	b.WriteString(t.paint(cells, colors))
	b.WriteString("\n")

	left := "0s"
	right := formatTime(span)
	if t.Duration <= 0 {
		right += "?"
	}
	pad := max(t.Width-len(left)-len(right), 1)
	b.WriteString(t.theme.hintStyle().Render(left + strings.Repeat(" ", pad) + right))
	b.WriteString("\n")

	for _, m := range t.plan.Markers {
		line := fmt.Sprintf("  %-20s %9s  %s", m.ID, formatTime(m.Time), m.Label)
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(m.Style.Color))
		if m.Style.Pending {
			style = style.Italic(true)
		}
		if m.Style.Selected {
			style = style.Bold(true)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// paint renders runs of equally colored cells with one style each.
func (t *Timeline) paint(cells []rune, colors []string) string {
	var b strings.Builder
	for i := 0; i < len(cells); {
		j := i
		for j < len(cells) && colors[j] == colors[i] {
			j++
		}
		run := string(cells[i:j])
		if colors[i] == "" {
			b.WriteString(lipgloss.NewStyle().Foreground(t.theme.Track).Render(run))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i])).Render(run))
		}
		i = j
	}
	return b.String()
}

// formatTurns lists turns with their segment, intent and slots.
func formatTurns(turns []models.Turn, selected int, hasSelection bool, theme Theme) string {
	if len(turns) == 0 {
		return theme.hintStyle().Render("No turns yet.") + "\n"
	}
	var b strings.Builder
	for i, turn := range turns {
		cursor := " "
		if hasSelection && i == selected {
			cursor = ">"
		}
		seg, _ := turn.Span()
		intent := turn.Intent
		if intent == "" {
			intent = theme.hintStyle().Render("(no intent)")
		}
		line := fmt.Sprintf("%s %3d  %9s - %-9s  %s", cursor, i, formatTime(seg.Start), formatTime(seg.End), intent)
		if hasSelection && i == selected {
			line = theme.statusStyle().Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		for j, slot := range turn.Slots {
			fmt.Fprintf(&b, "          [%d] %s = %s\n", j, slot.Key, slot.Value)
		}
	}
	return b.String()
}

// formatSlots lists dialogue-level slots.
func formatSlots(slots []models.SlotValue) string {
	var b strings.Builder
	for j, slot := range slots {
		fmt.Fprintf(&b, "  [%d] %s = %s\n", j, slot.Key, slot.Value)
	}
	return b.String()
}

func formatTime(sec float64) string {
	return fmt.Sprintf("%.3fs", sec)
}
