//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pendergraft/dappkit/internal/config"
	"github.com/pendergraft/dappkit/internal/observability/metrics"
	"github.com/pendergraft/dappkit/internal/server"
	"github.com/pendergraft/dappkit/internal/storage"
	"github.com/pendergraft/dappkit/pkg/client"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	RedisContainer    *tcredis.RedisContainer
	Postgres          *storage.PostgresStore
	Redis             *storage.RedisStore
	// Server is backed by Postgres
	Server *httptest.Server
}

func setupEnvironment(ctx context.Context) (*TestContext, error) {
	tc := &TestContext{}

	pg, connStr, err := setupPostgres(ctx)
	if err != nil {
		return nil, err
	}
	tc.PostgresContainer = pg

	rc, redisClient, err := setupRedis(ctx)
	if err != nil {
		tc.teardown(ctx)
		return nil, err
	}
	tc.RedisContainer = rc
	tc.Redis = storage.NewRedisStoreFromClient(redisClient, discardLogger())

	tc.Postgres, err = storage.NewPostgresStore(connStr, discardLogger())
	if err != nil {
		tc.teardown(ctx)
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}
	if err := tc.Postgres.Migrate(ctx); err != nil {
		tc.teardown(ctx)
		return nil, fmt.Errorf("migrating postgres store: %w", err)
	}

	metrics.Init(true, "dappkit-e2e")
	srv := server.New(serverConfig(connStr), tc.Postgres, discardLogger())
	tc.Server = httptest.NewServer(srv.Handler())

	return tc, nil
}

func (tc *TestContext) teardown(ctx context.Context) {
	if tc.Server != nil {
		tc.Server.Close()
	}
	if tc.Postgres != nil {
		_ = tc.Postgres.Close()
	}
	if tc.Redis != nil {
		_ = tc.Redis.Close()
	}
	if tc.PostgresContainer != nil {
		_ = tc.PostgresContainer.Terminate(ctx)
	}
	if tc.RedisContainer != nil {
		_ = tc.RedisContainer.Terminate(ctx)
	}
}

// setupPostgres starts a Postgres container and returns the connection string
func setupPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dappkit"),
		postgres.WithUsername("dappkit"),
		postgres.WithPassword("dappkit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return container, connString, nil
}

// setupRedis starts a Redis container and returns a connected client
func setupRedis(ctx context.Context) (*tcredis.RedisContainer, *redis.Client, error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get redis connection string: %w", err)
	}

	opts, err := redis.ParseURL(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return container, rdb, nil
}

func serverConfig(connStr string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Type:     "postgres",
			Postgres: config.PostgresConfig{URL: connStr},
		},
		Session:   config.SessionConfig{TTL: time.Hour, MaxFields: 50},
		Logging:   config.LoggingConfig{Level: "error", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: true, MaxBodySizeKB: 16},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newClient returns an API client for the shared server
func newClient(t *testing.T) *client.Client {
	t.Helper()
	return client.New(env.Server.URL)
}

// uniqueSession returns a session id no other test uses
func uniqueSession() string {
	return uuid.NewString()
}
