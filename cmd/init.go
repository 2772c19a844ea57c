package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"recenttrack/config"
	"recenttrack/dom"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create a configuration file",
		Description: `Asks for the users to track and the server settings and writes them to
a TOML configuration file that serve, check and watch can read.`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Overwrite an existing configuration file",
			},
		},
		Action: func(ctx *cli.Context) error {
			path := ctx.String("config")
			if _, err := os.Stat(path); err == nil && !ctx.Bool("force") {
				return fmt.Errorf("%s already exists, pass --force to overwrite it", path)
			}

			cfg := config.Default()

			users, err := prompt.New().Ask("Last.fm users (comma separated):").Input("raimon49")
			if err != nil {
				return err
			}
			ids := lo.Uniq(lo.FilterMap(strings.Split(users, ","), func(s string, _ int) (string, bool) {
				s = dom.Trim(s)
				return s, s != ""
			}))
			if len(ids) == 0 {
				return errors.New("at least one user is required")
			}

			minutes, err := prompt.New().Ask("Poll interval in minutes:").Choose([]string{"2", "1", "3"})
			if err != nil {
				return err
			}
			interval, err := strconv.ParseFloat(minutes, 64)
			if err != nil {
				return fmt.Errorf("invalid interval %q: %w", minutes, err)
			}

			title, err := prompt.New().Ask("Page title:").Input(cfg.Server.Title)
			if err != nil {
				return err
			}

			port, err := prompt.New().Ask("Port:").Input(strconv.Itoa(cfg.Server.Port), input.WithValidateFunc(validatePort))
			if err != nil {
				return err
			}

			cfg.Server.Title = title
			cfg.Server.Port, _ = strconv.Atoi(strings.TrimSpace(port))
			cfg.Trackers = lo.Map(ids, func(id string, _ int) config.TomlTracker {
				i := interval
				return config.TomlTracker{Id: id, Interval: &i}
			})

			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
}

func validatePort(s string) error {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return errors.New("port must be a number between 1 and 65535")
	}
	return nil
}
