package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/raphaelgruber/turnmark/internal/db"
	"github.com/raphaelgruber/turnmark/internal/models"
)

// SurrealStore keeps documents in the SurrealDB annotation table.
type SurrealStore struct {
	client *db.Client
	logger *slog.Logger
}

// NewSurrealStore wraps a connected client and makes sure the schema exists.
func NewSurrealStore(ctx context.Context, client *db.Client, logger *slog.Logger) (*SurrealStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := client.InitSchema(ctx); err != nil {
		return nil, persistErr("open", models.ConversationKey{}, err)
	}
	return &SurrealStore{client: client, logger: logger.With("store", "surrealdb")}, nil
}

// Save upserts the document of a conversation.
func (s *SurrealStore) Save(ctx context.Context, a *models.DialogueAnnotation) error {
	key := a.Key()
	if err := key.Validate(); err != nil {
		return persistErr("save", key, err)
	}

	doc := *a
	doc.Turns = slices.Clone(a.Turns)
	normalize(&doc)
	data, err := json.Marshal(&doc)
	if err != nil {
		return persistErr("save", key, fmt.Errorf("encode: %w", err))
	}

	if _, err := s.client.QueryUpsertAnnotation(ctx, key, string(data), len(doc.Turns)); err != nil {
		return persistErr("save", key, err)
	}
	s.logger.Debug("annotation saved", "conversation", key.String(), "turns", len(doc.Turns))
	return nil
}

// Load reads the document of key, or returns ErrNotFound.
func (s *SurrealStore) Load(ctx context.Context, key models.ConversationKey) (*models.DialogueAnnotation, error) {
	if err := key.Validate(); err != nil {
		return nil, persistErr("load", key, err)
	}

	rec, err := s.client.QueryGetAnnotation(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, persistErr("load", key, err)
	}

	a, err := decodeRecord(key, rec.Document)
	if err != nil {
		return nil, persistErr("load", key, err)
	}
	return a, nil
}

// LoadAll reads every stored document in one query, sorted by key.
func (s *SurrealStore) LoadAll(ctx context.Context) ([]*models.DialogueAnnotation, error) {
	recs, err := s.client.QueryListAnnotations(ctx, true)
	if err != nil {
		return nil, persistErr("load all", models.ConversationKey{}, err)
	}
	docs := make([]*models.DialogueAnnotation, 0, len(recs))
	for _, rec := range recs {
		key, err := rec.Key()
		if err != nil {
			return nil, persistErr("load all", models.ConversationKey{}, err)
		}
		a, err := decodeRecord(key, rec.Document)
		if err != nil {
			return nil, persistErr("load all", key, err)
		}
		docs = append(docs, a)
	}
	return docs, nil
}

// decodeRecord parses a stored document. The record ID is authoritative for
// the key.
func decodeRecord(key models.ConversationKey, document string) (*models.DialogueAnnotation, error) {
	var a models.DialogueAnnotation
	if err := json.Unmarshal([]byte(document), &a); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	a.CustomerID, a.ConversationID = key.CustomerID, key.ConversationID
	normalize(&a)
	return &a, nil
}

// List returns the keys of all stored documents, sorted.
func (s *SurrealStore) List(ctx context.Context) ([]models.ConversationKey, error) {
	recs, err := s.client.QueryListAnnotations(ctx, false)
	if err != nil {
		return nil, persistErr("list", models.ConversationKey{}, err)
	}
	keys := make([]models.ConversationKey, 0, len(recs))
	for _, rec := range recs {
		key, err := rec.Key()
		if err != nil {
			s.logger.Warn("skipping record with malformed id", "error", err)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Delete removes the document of key.
func (s *SurrealStore) Delete(ctx context.Context, key models.ConversationKey) error {
	if err := key.Validate(); err != nil {
		return persistErr("delete", key, err)
	}
	existed, err := s.client.QueryDeleteAnnotation(ctx, key)
	if err != nil {
		return persistErr("delete", key, err)
	}
	if !existed {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.logger.Info("annotation deleted", "conversation", key.String())
	return nil
}

// ClearAll removes every stored document.
func (s *SurrealStore) ClearAll(ctx context.Context) error {
	if err := s.client.WipeData(ctx); err != nil {
		return persistErr("clear", models.ConversationKey{}, err)
	}
	return nil
}

// Ping runs a trivial query.
func (s *SurrealStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return persistErr("ping", models.ConversationKey{}, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SurrealStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
