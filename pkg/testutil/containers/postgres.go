//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"racepass/internal/platform/config"
	"racepass/internal/platform/database"
)

const postgresImage = "postgres:18-alpine"

// PostgresContainer is a migrated PostgreSQL instance opened through the
// same pool the server uses.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *database.Pool
	DB        *sql.DB
}

// NewPostgresContainer starts PostgreSQL and opens it with database.New,
// which applies the embedded schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("racepass_test"),
		postgres.WithUsername("racepass"),
		postgres.WithPassword("racepass_test_password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	abort := func(format string, args ...any) {
		_ = container.Terminate(ctx)
		t.Fatalf(format, args...)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		abort("postgres connection string: %v", err)
	}
	pool, err := database.New(ctx, config.DatabaseConfig{
		URL:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, nil)
	if err != nil {
		abort("open postgres pool: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, Pool: pool, DB: pool.DB()}
}

// lifecycleTables lists every table the schema creates.
var lifecycleTables = []string{"attendance", "registrations", "tickets", "subject_states", "activity_log"}

// TruncateAll clears every lifecycle table between tests.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	stmt := "TRUNCATE TABLE " + strings.Join(lifecycleTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("truncate lifecycle tables: %w", err)
	}
	return nil
}
