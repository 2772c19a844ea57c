package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/color"
	"github.com/urfave/cli/v2"

	"recenttrack/dom"
	"recenttrack/feeds"
	"recenttrack/tracker"
)

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Fetch a user's feed once and print what it shows",
		ArgsUsage: "<user>",
		Description: `Fetches the recent tracks feed of one user, the same way a tracker
does, and prints whether the user is playing something right now.

Exits with an error when the user does not exist, the request times out or
the feed answers with an unexpected status.`,
		Flags: []cli.Flag{
			configFlag(),
			logLevelFlag(),
			timeoutFlag(),
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable coloured output",
			},
		},
		Action: func(ctx *cli.Context) error {
			if err := setLogLevel(ctx.String("log-level")); err != nil {
				return err
			}
			if ctx.Bool("no-color") {
				color.Disable()
			}

			user := dom.Trim(ctx.Args().First())
			if user == "" {
				return errors.New("please specify a user")
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			urls := cfg.Endpoints.For(user)
			color.Println(color.Bold("User:    "), user)
			color.Println(color.Bold("Profile: "), urls.Profile)
			color.Println(color.Bold("Feed:    "), urls.Feed)

			reqCtx, cancel := context.WithTimeout(ctx.Context, cfg.Fetch.Timeout)
			defer cancel()

			start := time.Now()
			resp, err := feedClient(cfg).Fetch(reqCtx, urls.Feed)
			if errors.Is(err, context.DeadlineExceeded) {
				color.Println(color.Red(tracker.TimeoutMessage))
				return fmt.Errorf("no response within %s", cfg.Fetch.Timeout)
			}
			if err != nil {
				color.Println(color.Red(err.Error()))
				return err
			}

			if err := resp.Err(); err != nil {
				if errors.Is(err, feeds.ErrNotFound) {
					color.Println(color.Red(tracker.UserNotFoundMessage))
				} else {
					color.Println(color.Yellow(err.Error()))
				}
				return err
			}

			feed, err := feeds.Parse(resp.Body)
			if err != nil {
				color.Println(color.Yellow(err.Error()))
				return err
			}

			snap := feeds.Snapshot(user, feed, time.Now())
			if snap.Playing {
				color.Println(color.Bold("Status:  "), color.Green("now playing"))
			} else {
				color.Println(color.Bold("Status:  "), color.Grey("last played"))
			}
			color.Println(color.Bold("Track:   "), snap.Title)
			color.Println(color.Bold("Latency: "), time.Since(start).Round(time.Millisecond))

			return nil
		},
	}
}
