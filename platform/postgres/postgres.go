// Package postgres подключение к PostgreSQL и применение встроенных goose миграций
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // драйвер "pgx" для goose
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Connect создаёт pgxpool и ждёт готовности БД (до attempts пингов с паузой 1s)
func Connect(ctx context.Context, logger *zap.Logger, dsn string, attempts int) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if attempts <= 0 {
		attempts = 1
	}

	var pingErr error
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = pool.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			return pool, nil
		}

		logger.Warn("postgres is not ready", zap.Error(pingErr), zap.Int("attempt", i), zap.Int("max_attempts", attempts))
		if i < attempts {
			select {
			case <-ctx.Done():
				pool.Close()
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}

	pool.Close()
	return nil, fmt.Errorf("ping postgres: %w", pingErr)
}

// Migrate применяет миграции из fsys (корень fs содержит *.sql)
func Migrate(ctx context.Context, dsn string, fsys fs.FS) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
