package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/raphaelgruber/turnmark/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all annotations as CSV",
	Long: `Export every saved annotation as CSV, one row per turn.

Columns: customerId, conversationId, turnIndex, utteranceStart, utteranceEnd,
segmentStart, segmentEnd, intent, turnSlots, dialogueSlots. Slot columns hold
JSON arrays of {"key","value"} objects.

Examples:
  turnmark export > annotations.csv
  turnmark export -o annotations.csv`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var w io.Writer = cmd.OutOrStdout()
	var file *os.File
	if exportOutput != "" {
		var err error
		file, err = os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		w = file
	}

	stats, err := export.WriteStore(ctx, w, st)
	if file != nil {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if exportOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d turns from %d conversations to %s\n", stats.Rows, stats.Conversations, exportOutput)
	} else if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d turns from %d conversations\n", stats.Rows, stats.Conversations)
	}
	return nil
}
