package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/raphaelgruber/turnmark/internal/client"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/server"
	"github.com/spf13/cobra"
)

var (
	remoteServer   string
	remoteOutput   string
	remoteDuration float64
	remoteWidth    int
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect a running turnmark server",
	Long: `Query a running turnmark server over HTTP.

The server URL comes from --server, TURNMARK_SERVER_URL or defaults to
http://localhost:8080.

Examples:
  turnmark remote status
  turnmark remote conversations --server http://annotate.internal:8080
  turnmark remote show acme call-0042 --duration 183.5
  turnmark remote export -o annotations.csv`,
}

var remoteStatusCmd = &cobra.Command{
	Use:         "status",
	Short:       "Show server health, timings and open sessions",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE:        runRemoteStatus,
}

var remoteConversationsCmd = &cobra.Command{
	Use:         "conversations",
	Short:       "List the server's conversations",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE:        runRemoteConversations,
}

var remoteExportCmd = &cobra.Command{
	Use:         "export",
	Short:       "Download the server's CSV export",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE:        runRemoteExport,
}

var remoteShowCmd = &cobra.Command{
	Use:   "show <customer> <conversation>",
	Short: "Show a conversation as the server sees it",
	Long: `Open a conversation in a server session and print its timeline and turns.

The session is closed right away without changes. A conversation that is
being edited by another session is reported as busy.`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE:        runRemoteShow,
}

func init() {
	remoteCmd.PersistentFlags().StringVarP(&remoteServer, "server", "s", "", "server URL")
	remoteExportCmd.Flags().StringVarP(&remoteOutput, "output", "o", "", "write to file instead of stdout")

	remoteShowCmd.Flags().Float64VarP(&remoteDuration, "duration", "d", 0, "audio duration in seconds")
	remoteShowCmd.Flags().IntVarP(&remoteWidth, "width", "w", defaultTimelineWidth, "timeline width in columns")

	remoteCmd.AddCommand(remoteStatusCmd)
	remoteCmd.AddCommand(remoteConversationsCmd)
	remoteCmd.AddCommand(remoteExportCmd)
	remoteCmd.AddCommand(remoteShowCmd)
}

func runRemoteStatus(cmd *cobra.Command, args []string) error {
	c := client.New(remoteServer)
	return printRemoteStatus(context.Background(), cmd.OutOrStdout(), c)
}

func printRemoteStatus(ctx context.Context, w io.Writer, c *client.Client) error {
	if err := c.Health(ctx); err != nil {
		fmt.Fprintln(w, defaultTheme.errorStyle().Render("✗ "+c.Endpoint()+" is down"))
		return err
	}
	stats, err := c.GetServerStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	uptime := time.Duration(stats.UptimeSeconds * float64(time.Second)).Round(time.Second)
	fmt.Fprintln(w, defaultTheme.successStyle().Render("✓ "+c.Endpoint()+" is up"))
	fmt.Fprintf(w, "Uptime: %s\n\n", uptime)

	ops := []struct {
		name  string
		stats *client.OperationStats
	}{
		{"commit", stats.Commit},
		{"store_save", stats.StoreSave},
		{"store_load", stats.StoreLoad},
		{"export", stats.Export},
		{"ws_message", stats.WSMessage},
	}
	fmt.Fprintf(w, "  %-12s %8s %8s %10s %10s\n", "OPERATION", "COUNT", "FAILED", "AVG (ms)", "MAX (ms)")
	for _, op := range ops {
		if op.stats == nil {
			continue
		}
		fmt.Fprintf(w, "  %-12s %8d %8d %10.1f %10d\n", op.name, op.stats.Count, op.stats.Failures, op.stats.AvgTimeMs, op.stats.MaxTimeMs)
	}

	fmt.Fprintf(w, "\nSessions (%d):\n", len(stats.Sessions))
	for _, s := range stats.Sessions {
		fmt.Fprintf(w, "  %s  %-30s %s  since %s\n", s.ID, s.Key, s.Remote, s.OpenedAt.Format(time.TimeOnly))
	}
	return nil
}

func runRemoteConversations(cmd *cobra.Command, args []string) error {
	c := client.New(remoteServer)
	convs, err := c.ListConversations(context.Background())
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return nil
	}
	fmt.Fprintf(w, "Conversations (%d):\n\n", len(convs))
	for _, conv := range convs {
		mark := " "
		if conv.Annotated {
			mark = defaultTheme.successStyle().Render("✓")
		}
		line := fmt.Sprintf("  %s %s", mark, conv.Key)
		if conv.Busy {
			line += defaultTheme.statusStyle().Render("  (being edited)")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func runRemoteExport(cmd *cobra.Command, args []string) error {
	c := client.New(remoteServer)

	var w io.Writer = cmd.OutOrStdout()
	if remoteOutput != "" {
		f, err := os.Create(remoteOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	rows, err := c.ExportCSV(context.Background(), w)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if remoteOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d turns to %s\n", rows, remoteOutput)
	}
	return nil
}

func runRemoteShow(cmd *cobra.Command, args []string) error {
	key := models.ConversationKey{CustomerID: args[0], ConversationID: args[1]}
	c := client.New(remoteServer)
	return showRemote(context.Background(), cmd.OutOrStdout(), c, key, remoteDuration, remoteWidth)
}

// showRemote opens key in a server session, prints it and closes the
// session again.
func showRemote(ctx context.Context, w io.Writer, c *client.Client, key models.ConversationKey, duration float64, width int) error {
	sess, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	frame, err := sess.Send(ctx, server.ClientMessage{
		Type:           server.MsgOpen,
		CustomerID:     key.CustomerID,
		ConversationID: key.ConversationID,
		Duration:       duration,
	})
	if client.IsRemote(err, "busy") {
		return fmt.Errorf("%s is being edited in another session", key)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}

	tl := NewTimeline(duration, width)
	if frame.Render != nil {
		frame.Render.Replay(tl)
	}
	var turns []models.Turn
	var dialogueSlots []models.SlotValue
	if frame.Annotation != nil {
		turns, dialogueSlots = frame.Annotation.Turns, frame.Annotation.DialogueSlots
	}

	fmt.Fprintf(w, "%s on %s (%d turns)\n\n", key, c.Endpoint(), len(turns))
	fmt.Fprint(w, tl.String())
	fmt.Fprintln(w)
	fmt.Fprint(w, formatTurns(turns, -1, false, defaultTheme))
	if len(dialogueSlots) > 0 {
		fmt.Fprintf(w, "\nDialogue slots (%d):\n", len(dialogueSlots))
		fmt.Fprint(w, formatSlots(dialogueSlots))
	}
	for _, warning := range frame.Warnings {
		fmt.Fprintln(w, defaultTheme.hintStyle().Render("Warning: "+warning))
	}

	if _, err := sess.Send(ctx, server.ClientMessage{Type: server.MsgClose}); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	return nil
}
