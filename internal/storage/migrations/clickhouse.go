package migrations

import (
	"context"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// RunClickhouseMigrations creates the database named in dsn if needed and
// applies the embedded analytics migrations to it.
//
// ClickHouse has no transactions: a migration that fails halfway is retried
// in full on the next start, so its statements must be idempotent.
func RunClickhouseMigrations(ctx context.Context, dsn string, logger *log.Logger) error {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	dbName := opts.Auth.Database
	if dbName == "" {
		return fmt.Errorf("clickhouse dsn missing database")
	}

	if err := createDatabase(ctx, dsn, dbName); err != nil {
		return err
	}

	db := clickhouse.OpenDB(opts)
	defer db.Close()

	return up(ctx, db, ClickhouseFS, "clickhouse", "clickhouse", logger)
}

// createDatabase connects to the server default database and creates dbName.
func createDatabase(ctx context.Context, dsn, dbName string) error {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	opts.Auth.Database = ""

	admin, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}
