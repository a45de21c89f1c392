package main

import (
	"fmt"

	"pulsepoint/internal/db"
	"pulsepoint/internal/store"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var sessionCommand = &cli.Command{
	Name:  "session",
	Usage: "Inspect persisted browser sessions",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List recently written sessions (postgres backend)",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:    "limit",
					Aliases: []string{"n"},
					Value:   20,
				},
			},
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if cfg.DatabaseURL == "" {
					return fmt.Errorf("set DATABASE_URL")
				}

				pool, err := db.Connect(c.Context, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()

				sessions, err := store.NewBrowserSessionRepository(pool).Recent(c.Context, c.Uint64("limit"))
				if err != nil {
					return err
				}

				pp.Println(sessions)
				return nil
			},
		},
		{
			Name:      "show",
			Usage:     "Show one session and its recent events",
			ArgsUsage: "<session-id>",
			Action: func(c *cli.Context) error {
				sessionID := c.Args().First()
				if sessionID == "" {
					return fmt.Errorf("session id is required")
				}

				cfg, err := loadConfig()
				if err != nil {
					return err
				}

				if cfg.SessionBackend == sessionBackendRedis {
					client, err := store.ConnectRedis(c.Context, cfg.RedisURL)
					if err != nil {
						return err
					}
					defer client.Close()

					sess, err := store.NewRedisPersister(client, cfg.SessionKeyPrefix, 0).Load(c.Context, sessionID)
					if err != nil {
						return err
					}
					pp.Println(sess)
					return nil
				}

				if cfg.DatabaseURL == "" {
					return fmt.Errorf("set DATABASE_URL")
				}

				pool, err := db.Connect(c.Context, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()

				sess, err := store.NewBrowserSessionRepository(pool).Load(c.Context, sessionID)
				if err != nil {
					return err
				}

				events, err := store.NewSessionEventRepository(pool).EventsBySession(c.Context, sessionID, 50)
				if err != nil {
					return err
				}

				pp.Println(sess)
				pp.Println(events)
				return nil
			},
		},
	},
}
