package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/turnmark/internal/models"
)

// ErrConversationBusy is returned when a conversation already has a live
// editing session.
var ErrConversationBusy = errors.New("conversation is being edited in another session")

// Session is a live claim on one conversation.
type Session struct {
	ID       string                 `json:"id"`
	Key      models.ConversationKey `json:"key"`
	Remote   string                 `json:"remote,omitempty"`
	OpenedAt time.Time              `json:"openedAt"`
}

// SessionRegistry makes sure each conversation is edited by at most one
// session at a time.
type SessionRegistry struct {
	mu    sync.RWMutex
	byID  map[string]*Session
	byKey map[models.ConversationKey]string
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byID:  make(map[string]*Session),
		byKey: make(map[models.ConversationKey]string),
	}
}

// Acquire claims key for a new session.
func (r *SessionRegistry) Acquire(key models.ConversationKey, remote string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, busy := r.byKey[key]; busy {
		return Session{}, fmt.Errorf("%w: %s (session %s)", ErrConversationBusy, key, id)
	}

	s := &Session{
		ID:       uuid.New().String()[:8], // Short ID for logs
		Key:      key,
		Remote:   remote,
		OpenedAt: time.Now(),
	}
	r.byID[s.ID] = s
	r.byKey[key] = s.ID

	slog.Info("session opened", "session_id", s.ID, "conversation", key.String(), "remote", remote)
	return *s, nil
}

// Release drops a session. Unknown IDs are ignored.
func (r *SessionRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byKey, s.Key)
	slog.Info("session closed", "session_id", id, "conversation", s.Key.String(), "duration", time.Since(s.OpenedAt))
}

// Get retrieves a session by ID.
func (r *SessionRegistry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// List returns all sessions, most recent first.
func (r *SessionRegistry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, *s)
	}
	slices.SortFunc(sessions, func(a, b Session) int {
		return b.OpenedAt.Compare(a.OpenedAt)
	})
	return sessions
}
