package main

import (
	"encoding/base64"
	"fmt"

	"pulsepoint/internal/utils"

	"github.com/gorilla/securecookie"
	"github.com/urfave/cli/v2"
)

var nanoidCommand = &cli.Command{
	Name:  "nanoid",
	Usage: "Generate NanoIDs, or cookie keys with --keys",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "Number of IDs to generate",
			Value:   1,
		},
		&cli.BoolFlag{
			Name:  "keys",
			Usage: "Print a COOKIE_HASH_KEY and COOKIE_BLOCK_KEY pair instead",
		},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("keys") {
			fmt.Printf("COOKIE_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(64)))
			fmt.Printf("COOKIE_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)))
			return nil
		}

		count := c.Int("count")
		for range count {
			fmt.Println(utils.NanoID())
		}
		return nil
	},
}
