package server

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"recenttrack/dom"
	"recenttrack/models"
	"recenttrack/tracker"
)

//go:embed static/*
var static embed.FS

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// The page the trackers render into
	Document *dom.Document

	// The running trackers
	Registry *tracker.Registry

	// Broadcast channels to pass tracker events to SSE clients
	Broadcaster *Broadcaster

	// How often idle SSE streams get a ping, 15 seconds when zero
	KeepAlive time.Duration
}

type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan interface{}
}

// Constructor
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan interface{}),
	}
}

// Broadcast sends an event to every client without blocking
func (b *Broadcaster) Broadcast(event interface{}) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.clients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping event for client: %v", id)
		}
	}
}

// Run forwards tracker events until ctx is done or events is closed
func (b *Broadcaster) Run(ctx context.Context, events <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			b.Broadcast(event)
		}
	}
}

// Function to add a client to the broadcaster
func (b *Broadcaster) AddClient(key string, client chan interface{}) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

// Function to remove a client from the broadcaster
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Count() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
}

// sseEvent maps a tracker event to its SSE event name
func sseEvent(event interface{}) (string, interface{}, bool) {
	switch event := event.(type) {
	case models.PatchEvent:
		return "patch", event, true
	case models.StatusEvent:
		return "status", event, true
	case models.SnapshotEvent:
		return "snapshot", event.Snapshot, true
	default:
		return "", nil, false
	}
}

// Returns a fiber.App instance serving the host page and its live updates
func Server(config *ServerConfig) *fiber.App {

	bc := config.Broadcaster
	keepAlive := config.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}

	app := fiber.New(fiber.Config{
		AppName: "recenttrack",
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Debug("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	// The host page
	app.Get("/", func(c *fiber.Ctx) error {
		var page bytes.Buffer
		if err := config.Document.Render(&page); err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error rendering host page")
			return c.Status(500).SendString("Error rendering page")
		}
		c.Set("Cache-Control", "no-cache")
		c.Type("html", "utf-8")
		return c.Send(page.Bytes())
	})

	// A single tracker container, for embedding and for clients that missed events
	app.Get("/widgets/:id", func(c *fiber.Ctx) error {
		id, err := url.PathUnescape(c.Params("id"))
		if err != nil {
			return c.Status(400).SendString("Invalid id")
		}
		markup, ok := config.Document.OuterHTML(id)
		if !ok {
			return c.Status(404).SendString("No container for " + dom.EscapeHTML(id))
		}
		c.Set("Cache-Control", "no-cache")
		c.Type("html", "utf-8")
		return c.SendString(markup)
	})

	app.Get("/api/trackers", func(c *fiber.Ctx) error {
		return c.JSON(config.Registry.Statuses())
	})

	app.Get("/api/trackers/:id", func(c *fiber.Ctx) error {
		id, err := url.PathUnescape(c.Params("id"))
		if err != nil {
			return c.Status(400).SendString("Invalid id")
		}
		t, ok := config.Registry.Get(id)
		if !ok {
			return c.Status(404).JSON(fiber.Map{"error": "unknown user"})
		}
		return c.JSON(t.Status())
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Delete("/events", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(200).SendString("OK")
	})

	app.Get("/events", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		events := make(chan interface{}, 32)
		aliveChan := time.NewTicker(keepAlive)

		bc.AddClient(key, events)

		cleanup := func() {
			aliveChan.Stop()
			log.Infof("Cleaning up SSE stream for client: %s", key)
			bc.RemoveClient(key)
		}

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cleanup()

			// Send initial event with client key
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveChan.C:
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case event, ok := <-events:
					if !ok {
						log.Debugf("Event channel closed for client %s", key)
						return
					}
					name, payload, known := sseEvent(event)
					if !known {
						continue
					}
					data, err := json.Marshal(payload)
					if err != nil {
						log.Errorf("Error marshalling %s event for client %s: %v", name, key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
						log.Warnf("Failed to send %s event to client %s: %v", name, key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush %s event for client %s: %v", name, key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	// Serve the live update script
	app.Use("/static", filesystem.New(filesystem.Config{
		Browse:     false,
		Root:       http.FS(static),
		PathPrefix: "static",
	}))

	return app
}
