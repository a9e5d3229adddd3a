package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/raphaelgruber/turnmark/internal/annotate"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	showFormat   string
	showDuration float64
	showWidth    int
)

var showCmd = &cobra.Command{
	Use:   "show <customer> <conversation>",
	Short: "Show the saved annotation of a conversation",
	Long: `Show the saved annotation of a conversation.

Formats:
  text  timeline, turns and dialogue slots (default)
  yaml  the stored document as YAML
  json  the stored document as JSON

Examples:
  turnmark show acme call-0042
  turnmark show acme call-0042 --duration 183.5 --width 100
  turnmark show acme call-0042 --format yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "output format: text, yaml, json")
	showCmd.Flags().Float64VarP(&showDuration, "duration", "d", 0, "audio duration in seconds for the timeline scale")
	showCmd.Flags().IntVarP(&showWidth, "width", "w", defaultTimelineWidth, "timeline width in columns")
}

func runShow(cmd *cobra.Command, args []string) error {
	key := models.ConversationKey{CustomerID: args[0], ConversationID: args[1]}
	if err := key.Validate(); err != nil {
		return err
	}

	doc, err := st.Load(context.Background(), key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no annotation saved for %s", key)
	}
	if err != nil {
		return fmt.Errorf("load annotation: %w", err)
	}
	return writeAnnotation(cmd.OutOrStdout(), doc, showFormat, showDuration, showWidth)
}

// writeAnnotation prints doc in the requested format.
func writeAnnotation(w io.Writer, doc *models.DialogueAnnotation, format string, duration float64, width int) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "text":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	e, err := annotate.Restore(doc, annotate.Options{Duration: duration, Logger: logger})
	if err != nil {
		return fmt.Errorf("restore annotation: %w", err)
	}
	tl := NewTimeline(e.Duration(), width)
	e.Render(tl)

	fmt.Fprintf(w, "%s (%d turns)\n\n", doc.Key(), len(doc.Turns))
	fmt.Fprint(w, tl.String())
	fmt.Fprintln(w)
	fmt.Fprint(w, formatTurns(e.Turns(), -1, false, defaultTheme))
	if slots := e.DialogueSlots(); len(slots) > 0 {
		fmt.Fprintf(w, "\nDialogue slots (%d):\n", len(slots))
		fmt.Fprint(w, formatSlots(slots))
	}
	for _, warning := range e.Warnings() {
		fmt.Fprintln(w, defaultTheme.hintStyle().Render("Warning: "+warning))
	}
	return nil
}
