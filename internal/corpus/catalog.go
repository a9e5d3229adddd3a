// Package corpus discovers the conversations available for annotation from
// an audio directory laid out as <root>/<customerId>/<conversationId>.<ext>.
package corpus

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/raphaelgruber/turnmark/internal/models"
)

// AudioExtensions lists the recognized audio file extensions.
var AudioExtensions = []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".webm"}

// Catalog is an ordered snapshot of the audio directory.
type Catalog struct {
	root          string
	conversations []models.Conversation
	index         map[models.ConversationKey]int
}

// Scan reads the two-level directory tree under root. Files with other
// extensions and keys that fail validation are skipped. When a conversation
// exists in several formats the first extension in AudioExtensions wins.
func Scan(root string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	customers, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	var convs []models.Conversation
	seen := make(map[models.ConversationKey]int)
	for _, c := range customers {
		if !c.IsDir() || strings.HasPrefix(c.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, c.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, f := range files {
			ext := strings.ToLower(filepath.Ext(f.Name()))
			rank := slices.Index(AudioExtensions, ext)
			if f.IsDir() || rank < 0 {
				continue
			}
			key := models.ConversationKey{
				CustomerID:     c.Name(),
				ConversationID: strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())),
			}
			if err := key.Validate(); err != nil {
				logger.Debug("skipping audio file", "file", f.Name(), "error", err)
				continue
			}
			info, err := f.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", f.Name(), err)
			}
			conv := models.Conversation{
				Key:       key,
				AudioPath: filepath.Join(dir, f.Name()),
				Size:      info.Size(),
				Modified:  info.ModTime(),
			}
			if i, dup := seen[key]; dup {
				prev := slices.Index(AudioExtensions, strings.ToLower(filepath.Ext(convs[i].AudioPath)))
				if rank < prev {
					convs[i] = conv
				}
				continue
			}
			seen[key] = len(convs)
			convs = append(convs, conv)
		}
	}

	slices.SortFunc(convs, func(a, b models.Conversation) int {
		if c := strings.Compare(a.Key.CustomerID, b.Key.CustomerID); c != 0 {
			return c
		}
		return strings.Compare(a.Key.ConversationID, b.Key.ConversationID)
	})

	logger.Info("catalog scanned", "root", root, "conversations", len(convs))
	return New(root, convs), nil
}

// New builds a catalog from an already ordered list.
func New(root string, convs []models.Conversation) *Catalog {
	cat := &Catalog{
		root:          root,
		conversations: convs,
		index:         make(map[models.ConversationKey]int, len(convs)),
	}
	for i, c := range convs {
		cat.index[c.Key] = i
	}
	return cat
}

// Root returns the scanned directory.
func (c *Catalog) Root() string { return c.root }

// Len returns the number of conversations.
func (c *Catalog) Len() int { return len(c.conversations) }

// At returns the i-th conversation.
func (c *Catalog) At(i int) (models.Conversation, bool) {
	if i < 0 || i >= len(c.conversations) {
		return models.Conversation{}, false
	}
	return c.conversations[i], true
}

// IndexOf returns the position of key.
func (c *Catalog) IndexOf(key models.ConversationKey) (int, bool) {
	i, ok := c.index[key]
	return i, ok
}

// Lookup returns the conversation for key.
func (c *Catalog) Lookup(key models.ConversationKey) (models.Conversation, bool) {
	i, ok := c.index[key]
	if !ok {
		return models.Conversation{}, false
	}
	return c.conversations[i], true
}

// All returns a copy of the ordered conversations.
func (c *Catalog) All() []models.Conversation {
	return slices.Clone(c.conversations)
}

// Keys returns the ordered conversation keys.
func (c *Catalog) Keys() []models.ConversationKey {
	keys := make([]models.ConversationKey, len(c.conversations))
	for i, conv := range c.conversations {
		keys[i] = conv.Key
	}
	return keys
}
