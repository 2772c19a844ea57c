package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"recenttrack/config"
	"recenttrack/dom"
	"recenttrack/server"
	"recenttrack/tracker"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the recent track widgets",
		Description: `Starts the HTTP server and one tracker per configured user.

Each tracker fetches the user's recent tracks feed on start and then every
1 to 3 minutes. The host page is served at / and every change to a widget
is pushed to open pages over the /events stream.`,
		Flags: []cli.Flag{
			configFlag(),
			logLevelFlag(),
			timeoutFlag(),
			usersFlag(),
			intervalFlag(),
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname to listen on",
				EnvVars: []string{"RECENTTRACK_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "The port to listen on",
				EnvVars: []string{"RECENTTRACK_PORT"},
			},
			&cli.StringFlag{
				Name:    "page",
				Usage:   "HTML page to render the widgets into instead of the generated one",
				EnvVars: []string{"RECENTTRACK_PAGE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			if err := setLogLevel(ctx.String("log-level")); err != nil {
				return err
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if ctx.IsSet("hostname") {
				cfg.Server.Hostname = ctx.String("hostname")
			}
			if ctx.IsSet("port") {
				cfg.Server.Port = ctx.Int("port")
			}
			if ctx.IsSet("page") {
				cfg.Server.Page = ctx.String("page")
			}

			if len(cfg.Trackers) == 0 {
				return errors.New("no users to track, pass --user or add [[trackers]] to the config")
			}

			doc, err := hostPage(cfg)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx.Context)
			defer cancel()

			// Channel for tracker events, forwarded to SSE clients
			events := make(chan interface{}, 256)

			bc := server.NewBroadcaster()
			reg := tracker.NewRegistry(doc, trackerOptions(cfg, events)...)

			app := server.Server(&server.ServerConfig{
				Hostname:    cfg.Server.Hostname,
				Document:    doc,
				Registry:    reg,
				Broadcaster: bc,
			})

			// Graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				bc.Run(runCtx, events)
			}()

			if err := reg.Start(runCtx, cfg.Targets()); err != nil {
				cancel()
				wg.Wait()
				return err
			}

			serverErr := make(chan error, 1)
			go func() {
				addr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)
				log.WithFields(log.Fields{
					"address":  addr,
					"trackers": len(cfg.Trackers),
				}).Info("Starting server")
				serverErr <- app.Listen(addr)
			}()

			select {
			case sig := <-sigChan:
				log.WithField("signal", sig).Info("Gracefully shutting down")
			case err = <-serverErr:
				if err != nil {
					log.WithField("error", err).Error("Server stopped")
				}
			}

			reg.Shutdown()
			bc.Shutdown()
			cancel()
			if shutdownErr := app.ShutdownWithTimeout(10 * time.Second); shutdownErr != nil {
				log.WithField("error", shutdownErr).Warn("Server shutdown")
			}
			wg.Wait()

			log.Info("Done")
			return err
		},
	}
}

// hostPage parses the configured page or generates one
func hostPage(cfg *config.TomlConfig) (*dom.Document, error) {
	if cfg.Server.Page == "" {
		return dom.HostPage(cfg.Server.Title, cfg.Ids()), nil
	}

	f, err := os.Open(cfg.Server.Page)
	if err != nil {
		return nil, fmt.Errorf("error opening host page: %w", err)
	}
	defer f.Close()

	doc, err := dom.Parse(f)
	if err != nil {
		return nil, err
	}

	for _, id := range cfg.Ids() {
		if !doc.Has(id) {
			log.WithField("user", id).Warn("Host page has no element with this id, widget will not render")
		}
	}
	return doc, nil
}
