package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pulsepoint",
		Usage: "Session and access control server for the PulsePoint donation portal",
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			sessionCommand,
			nanoidCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}
