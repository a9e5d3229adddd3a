package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/store"
	"github.com/spf13/cobra"
)

var (
	clearForce bool
)

var clearCmd = &cobra.Command{
	Use:   "clear [customer conversation]",
	Short: "Delete saved annotations",
	Long: `Delete saved annotations from the configured store: every annotation, or
only the one of the given conversation.

Audio files are not touched. Requires confirmation unless --force is used.

Examples:
  turnmark clear
  turnmark clear acme call-0042
  turnmark clear --force`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("accepts no arguments or <customer> <conversation>, received %d", len(args))
		}
		return nil
	},
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "skip confirmation")
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	if len(args) == 2 {
		key := models.ConversationKey{CustomerID: args[0], ConversationID: args[1]}
		return clearOne(ctx, out, in, st, key, clearForce)
	}

	keys, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("list annotations: %w", err)
	}
	if len(keys) == 0 {
		fmt.Fprintln(out, "No annotations to delete.")
		return nil
	}

	if !clearForce {
		ok, err := confirm(out, in, fmt.Sprintf("About to delete %d annotations (store: %s)", len(keys), cfg.Store))
		if err != nil || !ok {
			return err
		}
	}

	if err := st.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear annotations: %w", err)
	}

	fmt.Fprintf(out, "Deleted %d annotations.\n", len(keys))
	return nil
}

// clearOne deletes the saved annotation of key.
func clearOne(ctx context.Context, out io.Writer, in *bufio.Reader, src store.Store, key models.ConversationKey, force bool) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if !force {
		ok, err := confirm(out, in, fmt.Sprintf("About to delete the annotation of %s", key))
		if err != nil || !ok {
			return err
		}
	}

	err := src.Delete(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(out, "No annotation saved for %s.\n", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	fmt.Fprintf(out, "Deleted annotation of %s.\n", key)
	return nil
}

// confirm asks a yes/no question. Anything but y or yes cancels.
func confirm(out io.Writer, in *bufio.Reader, prompt string) (bool, error) {
	fmt.Fprintln(out, prompt)
	fmt.Fprint(out, "\nContinue? [y/N]: ")

	response, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read input: %w", err)
	}
	response = strings.TrimSpace(strings.ToLower(response))
	if response != "y" && response != "yes" {
		fmt.Fprintln(out, "Cancelled.")
		return false, nil
	}
	return true, nil
}
