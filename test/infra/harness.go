package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns a migrated Postgres for one test run: a shared database
// isolated in its own schema, a fresh container, or a local scratch database.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	teardown  func(context.Context) error
	dsn       string
	Source    string
}

// NewHarness resolves a database in order of preference: overrideDSN,
// STRESS_TEST_PG_DSN, a Docker container, then a local server.
func NewHarness(ctx context.Context, overrideDSN string) (*Harness, error) {
	h := &Harness{container: &PGContainer{}}
	shared := true

	switch {
	case overrideDSN != "":
		h.dsn, h.Source = overrideDSN, "flag"
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		h.dsn, h.Source = os.Getenv("STRESS_TEST_PG_DSN"), "env"
	case DockerAvailable(ctx):
		c, dsn, err := StartPostgres(ctx)
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
		h.container, h.dsn, h.Source = c, dsn, "container"
		shared = false
	default:
		dsn, err := InitLocalDatabase(ctx, "inquiry_stress")
		if err != nil {
			return nil, fmt.Errorf("init local database: %w", err)
		}
		h.dsn, h.Source = dsn, "local"
		shared = false
	}

	pool, teardown, err := ApplyMigrations(ctx, h.dsn, shared)
	if err != nil {
		_ = h.container.Terminate(ctx)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	h.pool, h.teardown = pool, teardown
	return h, nil
}

// Pool exposes the migrated pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections.
func (h *Harness) DSN() string {
	return h.dsn
}

// Reset truncates every mutable table.
func (h *Harness) Reset(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, "TRUNCATE TABLE inquiry_events, inquiries, employees RESTART IDENTITY")
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Close releases the pool, then drops the isolated schema or stops the container.
func (h *Harness) Close(ctx context.Context) error {
	var firstErr error
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		firstErr = h.teardown(ctx)
	}
	if err := h.container.Terminate(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// DockerAvailable reports whether a Docker daemon answers.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
