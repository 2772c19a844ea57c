package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"recenttrack/config"
	"recenttrack/feeds"
	"recenttrack/tracker"
)

const playingFeed = `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>` +
	`<title>Recent tracks</title><link>http://www.last.fm/user/x</link><description>x</description>` +
	`<lastBuildDate>Sat, 10 Jan 2009 12:00:00 +0000</lastBuildDate>` +
	`<item><title>Stereolab – French Disko</title><pubDate>Sat, 10 Jan 2009 12:03:00 +0000</pubDate></item>` +
	`</channel></rss>`

// feedServer answers /{user}/recenttracks.rss from handlers keyed by user
func feedServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
		if h, ok := handlers[user]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig points the feed endpoint at srv
func writeConfig(t *testing.T, srv *httptest.Server, ids ...string) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[endpoints]\nfeed_base = %q\n", srv.URL)
	for _, id := range ids {
		fmt.Fprintf(&b, "\n[[trackers]]\nid = %q\n", id)
	}
	path := filepath.Join(t.TempDir(), "recenttrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

// syncBuffer is written by the watch loop while the test reads it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, command *cli.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &cli.App{
		Name:     "recenttrack",
		Writer:   &out,
		Commands: []*cli.Command{command},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := app.RunContext(ctx, append([]string{"recenttrack", command.Name}, args...))
	return out.String(), err
}

func TestHostPageScaffoldsTrimmedIds(t *testing.T) {
	srv := feedServer(t, map[string]http.HandlerFunc{
		"rj": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(playingFeed))
		},
	})

	cfg := config.Default()
	cfg.Endpoints = feeds.Endpoints{FeedBase: srv.URL}.WithDefaults()
	cfg.Trackers = []config.TomlTracker{{Id: " rj "}}

	doc, err := hostPage(cfg)
	require.NoError(t, err)
	assert.True(t, doc.Has("rj"))

	reg := tracker.NewRegistry(doc, trackerOptions(cfg, nil)...)
	t.Cleanup(reg.Shutdown)
	require.NoError(t, reg.Start(context.Background(), cfg.Targets()))

	tr, ok := reg.Get("rj")
	require.True(t, ok)
	assert.True(t, tr.Scaffolded())
	assert.True(t, doc.Has("rj_track_container"))
}

func TestCheck(t *testing.T) {
	srv := feedServer(t, map[string]http.HandlerFunc{
		"playing": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(playingFeed))
		},
		"down": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		"slow": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	})
	path := writeConfig(t, srv)

	tests := []struct {
		name    string
		user    string
		wantErr error
		errText string
	}{
		{name: "playing", user: "playing"},
		{name: "not found", user: "nobody", wantErr: feeds.ErrNotFound},
		{name: "unexpected status", user: "down", wantErr: feeds.ErrUnexpectedStatus},
		{name: "timeout", user: "slow", errText: "no response within"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, checkCmd(), "--config", path, "--timeout", "100ms", "--no-color", tt.user)
			switch {
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			case tt.errText != "":
				assert.ErrorContains(t, err, tt.errText)
			default:
				assert.NoError(t, err)
			}
		})
	}

	_, err := run(t, checkCmd(), "--config", path, " ")
	assert.ErrorContains(t, err, "please specify a user")
}

func TestWatchReturnsWhenUsersAreNotFound(t *testing.T) {
	srv := feedServer(t, map[string]http.HandlerFunc{})
	path := writeConfig(t, srv, "nobody", "ghost")

	done := make(chan error, 1)
	go func() {
		_, err := run(t, watchCmd(), "--config", path, "--status")
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch kept running after every user was not found")
	}
}

func TestWatchPrintsSnapshots(t *testing.T) {
	srv := feedServer(t, map[string]http.HandlerFunc{
		"rj": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(playingFeed))
		},
	})

	cfg := config.Default()
	cfg.Endpoints = feeds.Endpoints{FeedBase: srv.URL}.WithDefaults()
	cfg.Trackers = []config.TomlTracker{{Id: "rj"}}

	events := make(chan interface{}, 8)
	reg := tracker.NewRegistry(nil, trackerOptions(cfg, events)...)
	t.Cleanup(reg.Shutdown)
	require.NoError(t, reg.Start(context.Background(), cfg.Targets()))

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- watchTrackers(ctx, reg, events, &out, false)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"title":"Stereolab – French Disko"`)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"playing":true`)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchNoticesStoppedTrackersWithoutEvents(t *testing.T) {
	old := stoppedCheckInterval
	stoppedCheckInterval = 10 * time.Millisecond
	t.Cleanup(func() { stoppedCheckInterval = old })

	srv := feedServer(t, map[string]http.HandlerFunc{})
	cfg := config.Default()
	cfg.Endpoints = feeds.Endpoints{FeedBase: srv.URL}.WithDefaults()
	cfg.Trackers = []config.TomlTracker{{Id: "nobody"}}

	// The registry publishes nowhere, as if every event had been dropped
	reg := tracker.NewRegistry(nil, trackerOptions(cfg, nil)...)
	t.Cleanup(reg.Shutdown)
	require.NoError(t, reg.Start(context.Background(), cfg.Targets()))

	done := make(chan error, 1)
	go func() {
		done <- watchTrackers(context.Background(), reg, make(chan interface{}), &bytes.Buffer{}, false)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not notice the stopped tracker")
	}
}
