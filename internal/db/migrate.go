package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

func withGoose(ctx context.Context, pool *pgxpool.Pool, fn func(db *sql.DB) error) error {
	// goose keeps its version table in our schema, so it has to exist first.
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetTableName(schema + ".goose_db_version")
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return fn(db)
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return withGoose(ctx, pool, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, pool *pgxpool.Pool) error {
	return withGoose(ctx, pool, func(db *sql.DB) error {
		if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("rollback migration: %w", err)
		}
		return nil
	})
}

// MigrationStatus logs the state of every migration through goose's logger.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) error {
	return withGoose(ctx, pool, func(db *sql.DB) error {
		return goose.StatusContext(ctx, db, migrationsDir)
	})
}
