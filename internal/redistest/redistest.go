// Package redistest provides Redis clients for integration tests.
package redistest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Client returns a Redis client for integration tests and flushes its database.
//
// PROXIMITY_TEST_REDIS_URL points the tests at an existing server (use a
// dedicated database, it is flushed). PROXIMITY_IT_CONTAINERS=1 starts a
// throwaway redis container instead. Otherwise the test is skipped.
func Client(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("PROXIMITY_TEST_REDIS_URL")
	if url == "" && os.Getenv("PROXIMITY_IT_CONTAINERS") == "1" {
		url = startContainer(ctx, t)
	}
	if url == "" {
		t.Skip("PROXIMITY_TEST_REDIS_URL not set and PROXIMITY_IT_CONTAINERS!=1; skipping redis integration test")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("redis flushdb: %v", err)
	}
	return client
}

func startContainer(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("redis container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis container port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}
