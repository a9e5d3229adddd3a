package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/raphaelgruber/turnmark/internal/corpus"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/store"
	"github.com/spf13/cobra"
)

var (
	listAnnotated bool
	listCustomer  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations and their annotation status",
	Long: `List the conversations of the audio root together with the saved
annotations. Conversations with a saved annotation are marked with ✓ and show
their turn count.

Examples:
  turnmark list
  turnmark list --annotated
  turnmark list --customer acme`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listAnnotated, "annotated", "a", false, "only list conversations with a saved annotation")
	listCmd.Flags().StringVarP(&listCustomer, "customer", "c", "", "filter by customer")
}

func runList(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	return listConversations(context.Background(), cmd.OutOrStdout(), catalog, st)
}

// listEntry is one line of the listing.
type listEntry struct {
	key   models.ConversationKey
	audio bool
	turns int // -1 when not annotated
}

func listConversations(ctx context.Context, w io.Writer, catalog *corpus.Catalog, src store.Store) error {
	keys, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("list annotations: %w", err)
	}

	entries := make(map[models.ConversationKey]*listEntry)
	for _, k := range catalog.Keys() {
		entries[k] = &listEntry{key: k, audio: true, turns: -1}
	}
	for _, k := range keys {
		doc, err := src.Load(ctx, k)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", k, err)
		}
		e, ok := entries[k]
		if !ok {
			e = &listEntry{key: k}
			entries[k] = e
		}
		e.turns = len(doc.Turns)
	}

	var out []*listEntry
	for _, e := range entries {
		if listAnnotated && e.turns < 0 {
			continue
		}
		if listCustomer != "" && e.key.CustomerID != listCustomer {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *listEntry) int {
		if c := strings.Compare(a.key.CustomerID, b.key.CustomerID); c != 0 {
			return c
		}
		return strings.Compare(a.key.ConversationID, b.key.ConversationID)
	})

	if len(out) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return nil
	}

	fmt.Fprintf(w, "Conversations (%d):\n\n", len(out))
	for _, e := range out {
		mark := " "
		if e.turns >= 0 {
			mark = defaultTheme.successStyle().Render("✓")
		}
		line := fmt.Sprintf("  %s %s", mark, e.key)
		if e.turns >= 0 {
			line += fmt.Sprintf("  (%d turns)", e.turns)
		}
		if !e.audio {
			line += defaultTheme.hintStyle().Render("  no audio")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
