package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/raphaelgruber/turnmark/internal/annotate"
	"github.com/raphaelgruber/turnmark/internal/corpus"
	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory store that records calls and can fail saves.
type memStore struct {
	mu      sync.Mutex
	docs    map[models.ConversationKey]*models.DialogueAnnotation
	calls   []string
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[models.ConversationKey]*models.DialogueAnnotation)}
}

func (m *memStore) Save(_ context.Context, a *models.DialogueAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "save "+a.Key().String())
	if m.saveErr != nil {
		return &store.PersistenceError{Op: "save", Key: a.Key(), Err: m.saveErr}
	}
	m.docs[a.Key()] = a
	return nil
}

func (m *memStore) Load(_ context.Context, key models.ConversationKey) (*models.DialogueAnnotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "load "+key.String())
	if m.loadErr != nil {
		return nil, &store.PersistenceError{Op: "load", Key: key, Err: m.loadErr}
	}
	a, ok := m.docs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (m *memStore) List(context.Context) ([]models.ConversationKey, error) { return nil, nil }
func (m *memStore) ClearAll(context.Context) error                         { return nil }
func (m *memStore) Ping(context.Context) error                             { return nil }
func (m *memStore) Close(context.Context) error                            { return nil }

func (m *memStore) Delete(_ context.Context, key models.ConversationKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[key]; !ok {
		return store.ErrNotFound
	}
	delete(m.docs, key)
	return nil
}

func key(conv string) models.ConversationKey {
	return models.ConversationKey{CustomerID: "acme", ConversationID: conv}
}

func commitTurn(t *testing.T, e *annotate.Engine, start, end float64) {
	t.Helper()
	e.EnterAnnotationMode()
	require.True(t, e.Click(start))
	require.True(t, e.Click(end))
	_, err := e.Commit()
	require.NoError(t, err)
}

func TestOpenFreshAndReload(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	mc := metrics.NewCollector()
	svc := NewAnnotationService(st, mc, nil)

	e, err := svc.Open(ctx, key("c1"), 30)
	require.NoError(t, err)
	assert.Empty(t, e.Turns())
	assert.Equal(t, 30.0, e.Duration())

	commitTurn(t, e, 1, 2)
	require.NoError(t, e.SetIntent(0, "greeting"))
	require.True(t, e.Dirty())

	require.NoError(t, svc.Save(ctx, e))
	assert.False(t, e.Dirty())

	reopened, err := svc.Open(ctx, key("c1"), 30)
	require.NoError(t, err)
	assert.Equal(t, e.Annotation(), reopened.Annotation())

	snap := mc.Snapshot()
	require.NotNil(t, snap.StoreLoad)
	assert.Equal(t, int64(2), snap.StoreLoad.Count)
	assert.Equal(t, int64(0), snap.StoreLoad.Failures)
	require.NotNil(t, snap.StoreSave)
	assert.Equal(t, int64(1), snap.StoreSave.Count)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	svc := NewAnnotationService(st, nil, nil)

	_, err := svc.Open(ctx, models.ConversationKey{CustomerID: "acme"}, 0)
	assert.Error(t, err)

	st.loadErr = errors.New("disk unplugged")
	_, err = svc.Open(ctx, key("c1"), 0)
	assert.ErrorIs(t, err, store.ErrPersistence)
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	mc := metrics.NewCollector()
	svc := NewAnnotationService(st, mc, nil)

	e, err := svc.Open(ctx, key("c1"), 0)
	require.NoError(t, err)
	commitTurn(t, e, 1, 2)

	st.saveErr = errors.New("read-only file system")
	err = svc.Save(ctx, e)
	assert.ErrorIs(t, err, store.ErrPersistence)
	assert.True(t, e.Dirty())
	assert.Equal(t, int64(1), mc.Snapshot().StoreSave.Failures)

	st.saveErr = nil
	saved, err := svc.SaveIfDirty(ctx, e)
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = svc.SaveIfDirty(ctx, e)
	require.NoError(t, err)
	assert.False(t, saved)
}

func testCatalog(convs ...string) *corpus.Catalog {
	list := make([]models.Conversation, len(convs))
	for i, c := range convs {
		list[i] = models.Conversation{Key: key(c), AudioPath: "/audio/acme/" + c + ".wav"}
	}
	return corpus.New("/audio", list)
}

func TestNavigatorSavesBeforeSwitching(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	svc := NewAnnotationService(st, nil, nil)
	nav := NewNavigator(svc, testCatalog("c1", "c2"), func(models.Conversation) float64 { return 60 })

	res, err := nav.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, key("c1"), res.Conversation.Key)
	assert.False(t, res.Saved)
	assert.Equal(t, 60.0, res.Engine.Duration())

	commitTurn(t, res.Engine, 1, 2)

	res, err = nav.Next(ctx)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.NoError(t, res.SaveErr)
	assert.Equal(t, []string{"load acme/c1", "save acme/c1", "load acme/c2"}, st.calls)

	_, pos, ok := nav.Current()
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	res, err = nav.Prev(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Engine.Turns(), 1, "saved turn is reloaded")
}

func TestNavigatorReportsFailedSave(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	svc := NewAnnotationService(st, nil, nil)
	nav := NewNavigator(svc, testCatalog("c1", "c2"), nil)

	res, err := nav.Next(ctx)
	require.NoError(t, err)
	first := res.Engine
	commitTurn(t, first, 1, 2)

	st.saveErr = errors.New("quota exceeded")
	res, err = nav.Next(ctx)
	require.NoError(t, err, "failed save does not block navigation")
	assert.ErrorIs(t, res.SaveErr, store.ErrPersistence)
	assert.False(t, res.Saved)
	assert.True(t, first.Dirty(), "engine is not marked saved")
	assert.Equal(t, key("c2"), res.Conversation.Key)
}

func TestNavigatorBounds(t *testing.T) {
	ctx := context.Background()
	nav := NewNavigator(NewAnnotationService(newMemStore(), nil, nil), testCatalog("c1"), nil)

	_, err := nav.Prev(ctx)
	assert.ErrorIs(t, err, ErrNoConversation)

	_, err = nav.GotoKey(ctx, key("c1"))
	require.NoError(t, err)

	_, err = nav.Next(ctx)
	assert.ErrorIs(t, err, ErrNoConversation)
	_, pos, _ := nav.Current()
	assert.Equal(t, 0, pos, "stays put")

	_, err = nav.GotoKey(ctx, key("nope"))
	assert.ErrorIs(t, err, ErrNoConversation)

	require.NoError(t, nav.Close(ctx))
	_, _, ok := nav.Current()
	assert.False(t, ok)
}

func TestSessionRegistry(t *testing.T) {
	r := NewSessionRegistry()

	s1, err := r.Acquire(key("c1"), "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, s1.ID, 8)

	_, err = r.Acquire(key("c1"), "10.0.0.2")
	assert.ErrorIs(t, err, ErrConversationBusy)

	s2, err := r.Acquire(key("c2"), "")
	require.NoError(t, err)
	assert.Len(t, r.List(), 2)

	got, ok := r.Get(s2.ID)
	require.True(t, ok)
	assert.Equal(t, key("c2"), got.Key)

	r.Release(s1.ID)
	r.Release("unknown")
	_, err = r.Acquire(key("c1"), "")
	assert.NoError(t, err)
}
