// Package store persists one DialogueAnnotation document per conversation.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/turnmark/internal/models"
)

var (
	// ErrNotFound means no document exists for the key. Callers treat it as
	// "start fresh".
	ErrNotFound = errors.New("annotation not found")

	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")
)

// Store is the persistence collaborator of the annotation service.
type Store interface {
	Save(ctx context.Context, a *models.DialogueAnnotation) error
	Load(ctx context.Context, key models.ConversationKey) (*models.DialogueAnnotation, error)
	List(ctx context.Context) ([]models.ConversationKey, error)
	// Delete removes one document. It returns ErrNotFound if none exists.
	Delete(ctx context.Context, key models.ConversationKey) error
	ClearAll(ctx context.Context) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SurrealStore)(nil)
)

// PersistenceError reports a failed storage operation on a conversation.
type PersistenceError struct {
	Op  string
	Key models.ConversationKey
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == (models.ConversationKey{}) {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistErr(op string, key models.ConversationKey, err error) error {
	return &PersistenceError{Op: op, Key: key, Err: err}
}

// normalize makes nil slices empty so documents serialize as [] instead of
// null.
func normalize(a *models.DialogueAnnotation) {
	if a.Turns == nil {
		a.Turns = []models.Turn{}
	}
	for i := range a.Turns {
		if a.Turns[i].Segments == nil {
			a.Turns[i].Segments = []models.Segment{}
		}
		if a.Turns[i].Slots == nil {
			a.Turns[i].Slots = []models.SlotValue{}
		}
	}
	if a.DialogueSlots == nil {
		a.DialogueSlots = []models.SlotValue{}
	}
}
