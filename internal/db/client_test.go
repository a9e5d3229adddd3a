//go:build integration

package db

import (
	"context"
	"testing"
	"time"

	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, testDB.Ping(ctx))
	assert.NotNil(t, testDB.DB())

	result, err := testDB.Query(ctx, "INFO FOR TABLE annotation", nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestAnnotationQueries(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	k1 := models.ConversationKey{CustomerID: "acme", ConversationID: "call-2"}
	k2 := models.ConversationKey{CustomerID: "acme", ConversationID: "call-1"}

	_, err := testDB.QueryGetAnnotation(ctx, k1)
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := testDB.QueryUpsertAnnotation(ctx, k1, `{"v":1}`, 1)
	require.NoError(t, err)
	assert.Equal(t, "acme", rec.CustomerID)
	assert.Equal(t, `{"v":1}`, rec.Document)

	id, err := models.RecordIDString(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, k1.RecordID(), id)

	_, err = testDB.QueryUpsertAnnotation(ctx, k1, `{"v":2}`, 2)
	require.NoError(t, err)
	_, err = testDB.QueryUpsertAnnotation(ctx, k2, `{}`, 0)
	require.NoError(t, err)

	got, err := testDB.QueryGetAnnotation(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, got.Document)
	assert.Equal(t, 2, got.TurnCount)

	list, err := testDB.QueryListAnnotations(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for i, want := range []models.ConversationKey{k2, k1} {
		got, err := list[i].Key()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Empty(t, list[0].Document)

	existed, err := testDB.QueryDeleteAnnotation(ctx, k2)
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = testDB.QueryDeleteAnnotation(ctx, k2)
	require.NoError(t, err)
	assert.False(t, existed)

	list, err = testDB.QueryListAnnotations(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, `{"v":2}`, list[0].Document)

	require.NoError(t, testDB.WipeData(ctx))
	list, err = testDB.QueryListAnnotations(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, list)
}
