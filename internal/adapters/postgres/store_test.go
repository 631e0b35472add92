package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/adapters/storetest"
	"github.com/DanielPopoola/payment-orchestrator/internal/config"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type testDatabase struct {
	Container testcontainers.Container
	DB        *DB
}

// startPostgres runs a throwaway PostgreSQL container with the schema applied.
func startPostgres(t *testing.T) *testDatabase {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "orchestrator",
			"POSTGRES_PASSWORD": "orchestrator",
			"POSTGRES_DB":       "payments",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbConfig := &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "orchestrator",
		Password:        "orchestrator",
		Name:            "payments",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	db, err := Connect(ctx, dbConfig, logger)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	// Applying twice must be harmless.
	require.NoError(t, db.Migrate(ctx))

	return &testDatabase{Container: container, DB: db}
}

func (td *testDatabase) Cleanup(t *testing.T) {
	td.DB.Close()
	require.NoError(t, td.Container.Terminate(context.Background()))
}

func (td *testDatabase) CleanTables(t *testing.T) {
	_, err := td.DB.Pool.Exec(context.Background(),
		"TRUNCATE TABLE webhook_events, refunds, payments, customers CASCADE;")
	require.NoError(t, err)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	testDB := startPostgres(t)
	t.Cleanup(func() { testDB.Cleanup(t) })

	suite.Run(t, &storetest.StoreSuite{
		NewStore: func() ports.Store {
			testDB.CleanTables(t)
			return NewStore(testDB.DB)
		},
	})
}
