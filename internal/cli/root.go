// Package cli provides the command-line interface for turnmark.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/turnmark/internal/config"
	"github.com/raphaelgruber/turnmark/internal/corpus"
	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/service"
	"github.com/raphaelgruber/turnmark/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and store
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	st       store.Store
)

// annotationNoStore marks commands that run without opening the store.
const annotationNoStore = "no-store"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "turnmark",
	Short: "Turn and slot annotation for dialogue audio",
	Long: `Turnmark annotates recorded conversations: mark where each turn starts
and ends on the audio timeline, tag it with an intent and slot values, and
export the result as CSV.

Annotations are stored per customer and conversation, either as JSON files
or in SurrealDB (TURNMARK_STORE=surrealdb).`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip store setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg)
		slog.SetDefault(logger)

		// Remote commands talk to a server and never touch the store
		if cmd.Annotations[annotationNoStore] == "true" {
			return nil
		}
		st, err = store.Open(context.Background(), cfg, logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			if err := st.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// newService wires an annotation service over the opened store.
func newService(mc *metrics.Collector) *service.AnnotationService {
	return service.NewAnnotationService(st, mc, logger)
}

// loadCatalog scans the audio root. A missing root yields an empty catalog.
func loadCatalog() (*corpus.Catalog, error) {
	if _, err := os.Stat(cfg.AudioRoot); os.IsNotExist(err) {
		logger.Debug("audio root does not exist", "path", cfg.AudioRoot)
		return corpus.New(cfg.AudioRoot, nil), nil
	}
	catalog, err := corpus.Scan(cfg.AudioRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("scan audio root: %w", err)
	}
	return catalog, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(vocabCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remoteCmd)
}
