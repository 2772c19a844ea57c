package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"recenttrack/models"
	"recenttrack/tracker"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print every fetched track to the command line",
		Description: `Runs the trackers without a page and prints each parsed feed as a JSON
object on a single line. Use a tool like jq to process the output.

With --status every settled fetch cycle is printed as well, including
timeouts and users that were not found.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			configFlag(),
			logLevelFlag(),
			timeoutFlag(),
			usersFlag(),
			intervalFlag(),
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Also print the outcome of every fetch cycle",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			if err := setLogLevel(ctx.String("log-level")); err != nil {
				return err
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if len(cfg.Trackers) == 0 {
				return errors.New("no users to watch, pass --user or add [[trackers]] to the config")
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			events := make(chan interface{}, 64)

			// No document, trackers only fetch and report
			reg := tracker.NewRegistry(nil, trackerOptions(cfg, events)...)
			if err := reg.Start(runCtx, cfg.Targets()); err != nil {
				return err
			}
			defer reg.Shutdown()

			return watchTrackers(runCtx, reg, events, ctx.App.Writer, ctx.Bool("status"))
		},
	}
}

// stoppedCheckInterval bounds how long watch keeps running after the last
// tracker stopped when its final status event was dropped
var stoppedCheckInterval = time.Second

// watchTrackers prints events until ctx is done or every tracker stopped
func watchTrackers(ctx context.Context, reg *tracker.Registry, events <-chan interface{}, w io.Writer, printStatus bool) error {
	check := time.NewTicker(stoppedCheckInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping watch")
			return nil
		case <-check.C:
			if allStopped(reg) {
				log.Info("No trackers left")
				return nil
			}
		case event := <-events:
			switch event := event.(type) {
			case models.SnapshotEvent:
				printJSON(w, event.Snapshot)
			case models.StatusEvent:
				if printStatus {
					printJSON(w, event)
				}
				if event.Stopped && allStopped(reg) {
					log.Info("No trackers left")
					return nil
				}
			}
		}
	}
}

func allStopped(reg *tracker.Registry) bool {
	for _, t := range reg.List() {
		if t.State() != tracker.Stopped {
			return false
		}
	}
	return true
}

func printJSON(w io.Writer, v interface{}) {
	// Print as single JSON string on a single line
	data, err := json.Marshal(v)
	if err == nil {
		fmt.Fprintln(w, string(data))
	}
}
