package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/turnmark/internal/annotate"
	"github.com/raphaelgruber/turnmark/internal/corpus"
	"github.com/raphaelgruber/turnmark/internal/models"
)

// ErrNoConversation is returned when navigation leaves the catalog.
var ErrNoConversation = errors.New("no such conversation")

// NavResult reports a completed navigation.
type NavResult struct {
	Conversation models.Conversation
	Engine       *annotate.Engine
	// Saved is true when the previous conversation had changes that were
	// written before switching.
	Saved bool
	// SaveErr is the failed save of the previous conversation. Navigation
	// still happened; the unsaved changes are lost.
	SaveErr error
}

// DurationFunc returns the audio duration of a conversation in seconds, or 0
// if unknown.
type DurationFunc func(models.Conversation) float64

// Navigator walks the catalog one conversation at a time, saving the current
// annotation before switching.
type Navigator struct {
	svc      *AnnotationService
	catalog  *corpus.Catalog
	duration DurationFunc

	pos    int
	engine *annotate.Engine
}

// NewNavigator creates a navigator positioned before the first conversation.
// duration may be nil.
func NewNavigator(svc *AnnotationService, catalog *corpus.Catalog, duration DurationFunc) *Navigator {
	if duration == nil {
		duration = func(models.Conversation) float64 { return 0 }
	}
	return &Navigator{svc: svc, catalog: catalog, duration: duration, pos: -1}
}

// Current returns the open engine and its position.
func (n *Navigator) Current() (*annotate.Engine, int, bool) {
	if n.engine == nil {
		return nil, -1, false
	}
	return n.engine, n.pos, true
}

// Len returns the catalog size.
func (n *Navigator) Len() int {
	return n.catalog.Len()
}

// Next moves to the following conversation.
func (n *Navigator) Next(ctx context.Context) (NavResult, error) {
	return n.Goto(ctx, n.pos+1)
}

// Prev moves to the preceding conversation.
func (n *Navigator) Prev(ctx context.Context) (NavResult, error) {
	return n.Goto(ctx, n.pos-1)
}

// GotoKey moves to the conversation identified by key.
func (n *Navigator) GotoKey(ctx context.Context, key models.ConversationKey) (NavResult, error) {
	i, ok := n.catalog.IndexOf(key)
	if !ok {
		return NavResult{}, fmt.Errorf("%w: %s", ErrNoConversation, key)
	}
	return n.Goto(ctx, i)
}

// Goto saves the current conversation, awaiting the write, then opens the
// i-th one. If opening fails the navigator stays where it was.
func (n *Navigator) Goto(ctx context.Context, i int) (NavResult, error) {
	conv, ok := n.catalog.At(i)
	if !ok {
		return NavResult{}, fmt.Errorf("%w: index %d of %d", ErrNoConversation, i, n.catalog.Len())
	}

	var result NavResult
	if n.engine != nil {
		result.Saved, result.SaveErr = n.svc.SaveIfDirty(ctx, n.engine)
	}

	e, err := n.svc.Open(ctx, conv.Key, n.duration(conv))
	if err != nil {
		return result, err
	}

	n.pos, n.engine = i, e
	result.Conversation = conv
	result.Engine = e
	return result, nil
}

// Close saves the open conversation.
func (n *Navigator) Close(ctx context.Context) error {
	if n.engine == nil {
		return nil
	}
	err := n.svc.Close(ctx, n.engine)
	n.engine, n.pos = nil, -1
	return err
}
