package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"recenttrack/config"
	"recenttrack/feeds"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recenttrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080

[fetch]
timeout = "3s"

[endpoints]
feed_base = "http://localhost:9000/user"

[[trackers]]
id = "raimon49"

[[trackers]]
id = "rj"
interval = 1.5
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Hostname, "defaults survive partial sections")
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "http://localhost:9000/user", cfg.Endpoints.FeedBase)
	assert.Equal(t, feeds.DefaultEndpoints.ProfileBase, cfg.Endpoints.ProfileBase)

	require.Len(t, cfg.Trackers, 2)
	assert.Nil(t, cfg.Trackers[0].Interval)
	require.NotNil(t, cfg.Trackers[1].Interval)
	assert.Equal(t, 1.5, *cfg.Trackers[1].Interval)

	assert.Equal(t, []string{"raimon49", "rj"}, cfg.Ids())
	targets := cfg.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "rj", targets[1].ID)
	assert.Equal(t, 1.5, *targets[1].Interval)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "error reading config file")

	_, err = config.LoadConfig(writeConfig(t, "[[trackers]\nid = "))
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestSaveRoundTrip(t *testing.T) {
	interval := 3.0
	cfg := config.Default()
	cfg.Trackers = []config.TomlTracker{{Id: "raimon49", Interval: &interval}, {Id: "rj"}}

	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, config.Save(path, cfg))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server, loaded.Server)
	assert.Equal(t, cfg.Fetch.Timeout, loaded.Fetch.Timeout)
	assert.Equal(t, cfg.Endpoints, loaded.Endpoints)
	assert.Equal(t, cfg.Trackers, loaded.Trackers)
}

func TestIdsAreTrimmed(t *testing.T) {
	cfg := config.Default()
	cfg.Trackers = []config.TomlTracker{{Id: " rj "}, {Id: "raimon49"}}

	assert.Equal(t, []string{"rj", "raimon49"}, cfg.Ids())
	targets := cfg.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "rj", targets[0].ID)
}
