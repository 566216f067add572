package migrations

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// RunPostgresMigrations applies the embedded ledger migrations through pool.
func RunPostgresMigrations(ctx context.Context, pool *pgxpool.Pool, logger *log.Logger) error {
	// Closing db leaves pool open.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return up(ctx, db, PostgresFS, "pgx", "postgres", logger)
}
