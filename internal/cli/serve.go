package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/server"
	"github.com/raphaelgruber/turnmark/internal/service"
	"github.com/raphaelgruber/turnmark/internal/vocab"
	"github.com/spf13/cobra"
)

var (
	servePort string
	serveWipe bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the annotation server",
	Long: `Run the HTTP and WebSocket annotation server.

Endpoints:
  GET /health              liveness check
  GET /stats               operation timings and open sessions
  GET /conversations       catalog with annotation status
  GET /vocab/{kind}        intents or slot-keys, filtered by ?prefix=
  GET /export.csv          all annotations as CSV
  GET /ws                  annotation session (JSON messages)

Examples:
  turnmark serve
  turnmark serve --port 9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default from TURNMARK_SERVER_PORT)")
	serveCmd.Flags().BoolVar(&serveWipe, "wipe", false, "delete all annotations on startup (testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveWipe {
		if err := st.ClearAll(ctx); err != nil {
			return fmt.Errorf("wipe annotations: %w", err)
		}
		logger.Warn("all annotations deleted")
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	v, err := vocab.Load(cfg.IntentsFile, cfg.SlotKeysFile)
	if err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}

	mc := metrics.NewCollector()
	srv := server.New(server.Deps{
		Service:  newService(mc),
		Catalog:  catalog,
		Vocab:    v,
		Sessions: service.NewSessionRegistry(),
		Metrics:  mc,
		Logger:   logger,
	})

	port := servePort
	if port == "" {
		port = cfg.ServerPort
	}
	logger.Info("starting turnmark server", "port", port, "store", cfg.Store, "conversations", catalog.Len())
	return srv.ListenAndServe(ctx, ":"+port)
}
