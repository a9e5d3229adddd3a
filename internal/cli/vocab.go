package cli

import (
	"fmt"

	"github.com/raphaelgruber/turnmark/internal/vocab"
	"github.com/spf13/cobra"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab <intents|slot-keys> [prefix]",
	Short: "Look up the predefined intents and slot keys",
	Long: `Print the entries of a vocabulary that start with prefix
(case-insensitive). Without a prefix all entries are printed.

The lists are read from TURNMARK_INTENTS_FILE and TURNMARK_SLOT_KEYS_FILE:
one entry per line, blank lines and lines starting with # are ignored.

Examples:
  turnmark vocab intents
  turnmark vocab slot-keys acc`,
	Args:        cobra.RangeArgs(1, 2),
	ValidArgs:   []string{"intents", "slot-keys"},
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE:        runVocab,
}

func runVocab(cmd *cobra.Command, args []string) error {
	v, err := vocab.Load(cfg.IntentsFile, cfg.SlotKeysFile)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}

	var list *vocab.List
	switch args[0] {
	case "intents":
		list = v.Intents
	case "slot-keys":
		list = v.SlotKeys
	default:
		return fmt.Errorf("unknown vocabulary %q (use intents or slot-keys)", args[0])
	}

	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}
	matches := list.Suggest(prefix)
	if len(matches) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No matches.")
		return nil
	}
	for _, m := range matches {
		fmt.Fprintln(cmd.OutOrStdout(), m)
	}
	return nil
}
