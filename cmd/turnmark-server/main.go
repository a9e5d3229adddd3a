// Package main provides the annotation server for turnmark.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/turnmark/internal/config"
	"github.com/raphaelgruber/turnmark/internal/corpus"
	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/server"
	"github.com/raphaelgruber/turnmark/internal/service"
	"github.com/raphaelgruber/turnmark/internal/store"
	"github.com/raphaelgruber/turnmark/internal/vocab"
)

func main() {
	// Parse flags
	wipe := flag.Bool("wipe", false, "delete all annotations on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, closeLog := config.SetupLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("starting turnmark-server", "port", cfg.ServerPort, "store", cfg.Store)

	// Open the annotation store
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.Open(ctx, cfg, logger)
	cancel()
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	// Wipe annotations if requested (via flag or env var)
	if *wipe || os.Getenv("TURNMARK_WIPE") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := st.ClearAll(ctx)
		cancel()
		if err != nil {
			slog.Error("failed to wipe annotations", "error", err)
			os.Exit(1)
		}
	}

	catalog, err := corpus.Scan(cfg.AudioRoot, logger)
	if err != nil {
		slog.Warn("audio root not readable, serving stored annotations only", "error", err)
		catalog = nil
	}
	v, err := vocab.Load(cfg.IntentsFile, cfg.SlotKeysFile)
	if err != nil {
		slog.Error("failed to load vocabulary", "error", err)
		os.Exit(1)
	}

	mc := metrics.NewCollector()
	srv := server.New(server.Deps{
		Service:  service.NewAnnotationService(st, mc, logger),
		Catalog:  catalog,
		Vocab:    v,
		Sessions: service.NewSessionRegistry(),
		Metrics:  mc,
		Logger:   logger,
	})

	// Serve until interrupted
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(sigCtx, ":"+cfg.ServerPort); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
