package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "recenttrack",
		Usage: "Show what Last.fm users are listening to",
		Description: `Polls the public recent tracks feed of one or more Last.fm users and
		renders a small widget per user: a link to the profile, a "now playing"
		indicator and the title of the latest track.

		The widgets live in an HTML page served over HTTP. Changes are pushed to
		open browsers with server-sent events.

		Flags can generally be set via environment variables, e.g.:

		--config => RECENTTRACK_CONFIG=recenttrack.toml
		--port => RECENTTRACK_PORT=8080
		--user => RECENTTRACK_USERS=raimon49,rj
		`,
		Commands: []*cli.Command{
			serveCmd(),
			checkCmd(),
			watchCmd(),
			initCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
