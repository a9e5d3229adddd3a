package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/raphaelgruber/turnmark/internal/models"
)

const fileExt = ".json"

// FileStore keeps documents at <root>/<customerId>/<conversationId>.json.
// Writes go to a temp file in the same directory and are renamed into place,
// so a crash never leaves a truncated document behind.
type FileStore struct {
	root   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates root if needed.
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, persistErr("open", models.ConversationKey{}, err)
	}
	return &FileStore{root: root, logger: logger.With("store", "file")}, nil
}

// Root returns the data directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(key models.ConversationKey) string {
	return filepath.Join(s.root, key.CustomerID, key.ConversationID+fileExt)
}

// Save writes the document atomically.
func (s *FileStore) Save(ctx context.Context, a *models.DialogueAnnotation) error {
	key := a.Key()
	if err := key.Validate(); err != nil {
		return persistErr("save", key, err)
	}
	if err := ctx.Err(); err != nil {
		return persistErr("save", key, err)
	}

	doc := *a
	doc.Turns = slices.Clone(a.Turns)
	normalize(&doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return persistErr("save", key, err)
	}
	if err := writeJSONAtomic(dst, &doc); err != nil {
		return persistErr("save", key, err)
	}

	s.logger.Debug("annotation saved", "conversation", key.String(), "turns", len(doc.Turns))
	return nil
}

// Load reads the document of key, or returns ErrNotFound.
func (s *FileStore) Load(ctx context.Context, key models.ConversationKey) (*models.DialogueAnnotation, error) {
	if err := key.Validate(); err != nil {
		return nil, persistErr("load", key, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, persistErr("load", key, err)
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, persistErr("load", key, err)
	}

	var a models.DialogueAnnotation
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, persistErr("load", key, fmt.Errorf("decode: %w", err))
	}
	// The path is authoritative for the key.
	a.CustomerID, a.ConversationID = key.CustomerID, key.ConversationID
	normalize(&a)
	return &a, nil
}

// List returns the keys of all stored documents, sorted.
func (s *FileStore) List(ctx context.Context) ([]models.ConversationKey, error) {
	customers, err := os.ReadDir(s.root)
	if err != nil {
		return nil, persistErr("list", models.ConversationKey{}, err)
	}

	keys := []models.ConversationKey{}
	for _, c := range customers {
		if !c.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, persistErr("list", models.ConversationKey{}, err)
		}
		files, err := os.ReadDir(filepath.Join(s.root, c.Name()))
		if err != nil {
			return nil, persistErr("list", models.ConversationKey{}, err)
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
				continue
			}
			keys = append(keys, models.ConversationKey{
				CustomerID:     c.Name(),
				ConversationID: strings.TrimSuffix(name, fileExt),
			})
		}
	}

	slices.SortFunc(keys, compareKeys)
	return keys, nil
}

// LoadAll reads every stored document, sorted by key.
func (s *FileStore) LoadAll(ctx context.Context) ([]*models.DialogueAnnotation, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.DialogueAnnotation, 0, len(keys))
	for _, key := range keys {
		doc, err := s.Load(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes the document of key.
func (s *FileStore) Delete(ctx context.Context, key models.ConversationKey) error {
	if err := key.Validate(); err != nil {
		return persistErr("delete", key, err)
	}
	if err := ctx.Err(); err != nil {
		return persistErr("delete", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return persistErr("delete", key, err)
	}
	s.logger.Info("annotation deleted", "conversation", key.String())
	return nil
}

// ClearAll removes every stored document.
func (s *FileStore) ClearAll(ctx context.Context) error {
	keys, err := s.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return persistErr("clear", key, err)
		}
	}
	s.logger.Warn("all annotations cleared", "count", len(keys))
	return nil
}

// Ping checks that the data directory still exists.
func (s *FileStore) Ping(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return persistErr("ping", models.ConversationKey{}, err)
	}
	if !info.IsDir() {
		return persistErr("ping", models.ConversationKey{}, fmt.Errorf("%s is not a directory", s.root))
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close(context.Context) error {
	return nil
}

func writeJSONAtomic(path string, v any) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func compareKeys(a, b models.ConversationKey) int {
	if c := strings.Compare(a.CustomerID, b.CustomerID); c != 0 {
		return c
	}
	return strings.Compare(a.ConversationID, b.ConversationID)
}
