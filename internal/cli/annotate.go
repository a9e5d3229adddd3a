package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/raphaelgruber/turnmark/internal/corpus"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/service"
	"github.com/raphaelgruber/turnmark/internal/vocab"
	"github.com/spf13/cobra"
)

var (
	annotateDuration float64
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [customer conversation]",
	Short: "Annotate conversations interactively",
	Long: `Start an interactive annotation session.

Conversations are taken from the audio root (TURNMARK_AUDIO_ROOT), laid out
as <customer>/<conversation>.<wav|mp3|flac|ogg|m4a|webm>. Without arguments
the session opens the first conversation; "next" and "prev" move through the
catalog, saving changes before each switch.

A conversation that is not in the catalog can still be annotated by naming it.

Examples:
  turnmark annotate
  turnmark annotate acme call-0042
  turnmark annotate acme call-0042 --duration 183.5`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <customer> <conversation>")
		}
		return nil
	},
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().Float64VarP(&annotateDuration, "duration", "d", 0, "audio duration in seconds (0 = unknown)")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	v, err := vocab.Load(cfg.IntentsFile, cfg.SlotKeysFile)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}

	var key *models.ConversationKey
	if len(args) == 2 {
		k := models.ConversationKey{CustomerID: args[0], ConversationID: args[1]}
		if err := k.Validate(); err != nil {
			return err
		}
		key = &k
		if _, ok := catalog.Lookup(k); !ok {
			catalog = corpus.New(catalog.Root(), append(catalog.All(), models.Conversation{Key: k}))
		}
	}
	if catalog.Len() == 0 {
		return fmt.Errorf("no conversations under %s; name one with: turnmark annotate <customer> <conversation>", cfg.AudioRoot)
	}

	svc := newService(nil)
	nav := service.NewNavigator(svc, catalog, func(models.Conversation) float64 { return annotateDuration })
	r := newREPL(nav, svc, v, cmd.OutOrStdout())

	fmt.Fprintf(r.out, "%d conversations, vocabulary: %d intents, %d slot keys. Type help for commands.\n",
		catalog.Len(), v.Intents.Len(), v.SlotKeys.Len())
	if key != nil {
		err = r.navigate(nav.GotoKey(ctx, *key))
	} else {
		err = r.navigate(nav.Next(ctx))
	}
	if err != nil {
		return err
	}

	return r.run(ctx, os.Stdin)
}
