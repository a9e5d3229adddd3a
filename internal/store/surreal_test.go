//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/turnmark/internal/db"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startSurrealStore(t *testing.T) *SurrealStore {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v2.3.7",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	require.NoError(t, err)

	client, err := db.NewClient(ctx, db.Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	require.NoError(t, err)

	s, err := NewSurrealStore(ctx, client, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s
}

func TestSurrealStore(t *testing.T) {
	ctx := context.Background()
	s := startSurrealStore(t)

	want := sampleAnnotation("acme", "call-1")
	require.NoError(t, s.Save(ctx, want))
	require.NoError(t, s.Save(ctx, sampleAnnotation("acme", "call-0")))

	got, err := s.Load(ctx, want.Key())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.Load(ctx, models.ConversationKey{CustomerID: "acme", ConversationID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ConversationKey{
		{CustomerID: "acme", ConversationID: "call-0"},
		{CustomerID: "acme", ConversationID: "call-1"},
	}, keys)

	require.NoError(t, s.Ping(ctx))

	docs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, want, docs[1])

	require.NoError(t, s.Delete(ctx, docs[0].Key()))
	assert.ErrorIs(t, s.Delete(ctx, docs[0].Key()), ErrNotFound)

	require.NoError(t, s.ClearAll(ctx))
	keys, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
