// Package pgtest поднимает PostgreSQL в testcontainers для интеграционных тестов репозиториев
package pgtest

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	platformpostgres "github.com/shestoi/ordersaga/platform/postgres"
)

// Start поднимает контейнер postgres:15-alpine, накатывает миграции из migrations
// и возвращает pool. Контейнер удаляется в t.Cleanup.
func Start(t *testing.T, migrations fs.FS) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("saga"),
		postgres.WithUsername("saga_user"),
		postgres.WithPassword("saga_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := platformpostgres.Connect(ctx, zap.NewNop(), dsn, 10)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, platformpostgres.Migrate(ctx, dsn, migrations), "Failed to run migrations")
	return pool
}
