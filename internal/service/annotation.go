// Package service coordinates annotation engines with persistence and the
// conversation catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/turnmark/internal/annotate"
	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/store"
)

// AnnotationService opens, saves and closes engines against a store.
type AnnotationService struct {
	store   store.Store
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewAnnotationService creates a service over st. mc may be nil.
func NewAnnotationService(st store.Store, mc *metrics.Collector, logger *slog.Logger) *AnnotationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnnotationService{store: st, metrics: mc, logger: logger}
}

// Store returns the persistence backend.
func (s *AnnotationService) Store() store.Store {
	return s.store
}

// Open loads the annotation of key into a new engine. A conversation that
// was never saved starts with an empty annotation.
func (s *AnnotationService) Open(ctx context.Context, key models.ConversationKey, duration float64) (*annotate.Engine, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	opts := annotate.Options{Duration: duration, Logger: s.logger, Metrics: s.metrics}

	start := time.Now()
	doc, err := s.store.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.Observe(metrics.OpStoreLoad, start, nil)
		s.logger.Info("starting fresh annotation", "conversation", key.String())
		return annotate.New(key, opts), nil
	}
	s.metrics.Observe(metrics.OpStoreLoad, start, err)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	e, err := annotate.Restore(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	s.logger.Info("annotation loaded", "conversation", key.String(), "turns", len(doc.Turns))
	return e, nil
}

// Save persists the engine's annotation. The engine is marked saved only
// after the store confirmed the write.
func (s *AnnotationService) Save(ctx context.Context, e *annotate.Engine) error {
	start := time.Now()
	err := s.store.Save(ctx, e.Annotation())
	s.metrics.Observe(metrics.OpStoreSave, start, err)
	if err != nil {
		s.logger.Error("save failed", "conversation", e.Key().String(), "error", err)
		return fmt.Errorf("save %s: %w", e.Key(), err)
	}
	e.MarkSaved()
	s.logger.Debug("annotation saved", "conversation", e.Key().String())
	return nil
}

// SaveIfDirty saves only when the engine has unsaved changes.
func (s *AnnotationService) SaveIfDirty(ctx context.Context, e *annotate.Engine) (bool, error) {
	if !e.Dirty() {
		return false, nil
	}
	if err := s.Save(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

// Close saves pending changes before the engine is discarded.
func (s *AnnotationService) Close(ctx context.Context, e *annotate.Engine) error {
	_, err := s.SaveIfDirty(ctx, e)
	return err
}
