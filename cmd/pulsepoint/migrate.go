package main

import (
	"context"
	"fmt"

	"pulsepoint/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Manage the session database schema",
	Subcommands: []*cli.Command{
		{
			Name:  "up",
			Usage: "Apply pending migrations",
			Action: withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := db.Migrate(ctx, pool); err != nil {
					return err
				}
				logrus.Info("migrations applied")
				return nil
			}),
		},
		{
			Name:  "down",
			Usage: "Roll back the most recent migration",
			Action: withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := db.Rollback(ctx, pool); err != nil {
					return err
				}
				logrus.Info("migration rolled back")
				return nil
			}),
		},
		{
			Name:   "status",
			Usage:  "Print the state of every migration",
			Action: withPool(db.MigrationStatus),
		},
	},
}

func withPool(fn func(ctx context.Context, pool *pgxpool.Pool) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("set DATABASE_URL")
		}

		ctx := c.Context

		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		return fn(ctx, pool)
	}
}
