package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"recenttrack/config"
	"recenttrack/feeds"
	"recenttrack/tracker"
)

const defaultConfigPath = "recenttrack.toml"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   defaultConfigPath,
		Usage:   "Path to the TOML configuration file",
		EnvVars: []string{"RECENTTRACK_CONFIG"},
	}
}

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "Log level (trace, debug, info, warn, error)",
		EnvVars: []string{"RECENTTRACK_LOG_LEVEL"},
	}
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "timeout",
		Usage:   "How long a feed request may take before it is reported as timed out",
		EnvVars: []string{"RECENTTRACK_TIMEOUT"},
	}
}

func usersFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Last.fm user to track, can be repeated. Added to the configured trackers",
		EnvVars: []string{"RECENTTRACK_USERS"},
	}
}

func intervalFlag() cli.Flag {
	return &cli.Float64Flag{
		Name:    "interval",
		Aliases: []string{"i"},
		Usage:   "Poll interval in minutes for users given with --user (1 to 3)",
		Value:   tracker.DefaultMinute,
		EnvVars: []string{"RECENTTRACK_INTERVAL"},
	}
}

func setLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}

// loadConfig reads the config file and applies flag overrides. A missing file
// is only an error when the path was given explicitly.
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	path := ctx.String("config")

	var cfg *config.TomlConfig
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		log.WithField("path", path).Info("Loaded config")
	} else if ctx.IsSet("config") {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	} else {
		cfg = config.Default()
	}

	if ctx.IsSet("timeout") && ctx.Duration("timeout") > 0 {
		cfg.Fetch.Timeout = ctx.Duration("timeout")
	}

	if users := ctx.StringSlice("user"); len(users) > 0 {
		interval := ctx.Float64("interval")
		for _, user := range users {
			cfg.Trackers = append(cfg.Trackers, config.TomlTracker{Id: user, Interval: &interval})
		}
	}

	return cfg, nil
}

func feedClient(cfg *config.TomlConfig) *feeds.Client {
	client := feeds.NewClient(&http.Client{
		// The watchdog decides when a request has taken too long, this only
		// stops abandoned connections from lingering
		Timeout: 2 * time.Minute,
	})
	if cfg.Fetch.UserAgent != "" {
		client.UserAgent = cfg.Fetch.UserAgent
	}
	return client
}

// trackerOptions are shared by every tracker of the process
func trackerOptions(cfg *config.TomlConfig, events chan<- interface{}) []tracker.Option {
	return []tracker.Option{
		tracker.WithEndpoints(cfg.Endpoints),
		tracker.WithClient(feedClient(cfg)),
		tracker.WithTimeout(cfg.Fetch.Timeout),
		tracker.WithScrollDelay(cfg.Fetch.ScrollDelay),
		tracker.WithEvents(events),
	}
}
