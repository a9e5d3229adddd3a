//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const surrealImage = "surrealdb/surrealdb:v2.3.7"

var testDB *Client

// startSurreal runs an in-memory SurrealDB and returns its RPC URL.
func startSurreal(ctx context.Context) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        surrealImage,
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--user", "root", "--pass", "root", "memory"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		return c, "", fmt.Errorf("container host: %w", err)
	}
	// some docker setups report "null"
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := c.MappedPort(ctx, "8000")
	if err != nil {
		return c, "", fmt.Errorf("mapped port: %w", err)
	}
	return c, fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()), nil
}

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, url, err := startSurreal(ctx)
	if err != nil {
		log.Fatalf("surrealdb: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:        url,
		Namespace:  "turnmark",
		Database:   "test",
		Username:   "root",
		Password:   "root",
		AuthLevel:  "root",
		MaxRetries: 3,
	}, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		log.Fatalf("connect: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		_ = container.Terminate(ctx)
		log.Fatalf("schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}
