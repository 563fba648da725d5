// Package testutil starts the backing services Radiant's integration tests
// run against: Postgres for the relational store and Redis for the Hot
// tier and the shared rate limiter.
//
// Postgres is started once per package from TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    testDB, _ = tc.NewTestDB(context.Background(), testutil.TestLogger())
//	    code := m.Run()
//	    tc.Terminate()
//	    os.Exit(code)
//	}
//
// Redis is started per test with StartRedis, which registers its own cleanup.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/radiant-ai/radiant/internal/storage"
	"github.com/radiant-ai/radiant/migrations"
)

const startupTimeout = 60 * time.Second

var (
	postgresRequest = testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "radiant",
			"POSTGRES_PASSWORD": "radiant",
			"POSTGRES_DB":       "radiant",
		},
		// The init script restarts the server once, so the ready line shows up twice.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(startupTimeout),
	}
	redisRequest = testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(startupTimeout),
	}
)

// TestContainer is a running Postgres container and the DSN that reaches it.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// startContainer runs req and returns the container with the host:port
// its first exposed port is mapped to.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start %s: %w", req.Image, err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("%s host: %w", req.Image, err)
	}
	port, err := c.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("%s port: %w", req.Image, err)
	}
	return c, net.JoinHostPort(host, port.Port()), nil
}

// MustStartPostgres starts a Postgres container or exits the test binary.
// Meant for TestMain, where there is no *testing.T to fail.
func MustStartPostgres() *TestContainer {
	c, addr, err := startContainer(context.Background(), postgresRequest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: %v\n", err)
		os.Exit(1)
	}
	return &TestContainer{
		Container: c,
		DSN:       fmt.Sprintf("postgres://radiant:radiant@%s/radiant?sslmode=disable", addr),
	}
}

// NewTestDB opens a storage.DB on the container with every migration applied.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, tc.DSN, "", logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: open db: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("testutil: migrate: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// StartRedis starts a Redis container for the calling test and returns its
// host:port. Skipped under -short.
func StartRedis(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container skipped in -short mode")
	}
	c, addr, err := startContainer(context.Background(), redisRequest)
	if err != nil {
		t.Fatalf("testutil: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	return addr
}

// TestLogger returns a text logger that only shows warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
