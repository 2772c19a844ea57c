package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"recenttrack/config"
)

// runLoad parses args with the shared flags and returns the loaded config
func runLoad(t *testing.T, args ...string) (*config.TomlConfig, error) {
	t.Helper()

	var cfg *config.TomlConfig
	var loadErr error
	app := &cli.App{
		Name:  "test",
		Flags: []cli.Flag{configFlag(), timeoutFlag(), usersFlag(), intervalFlag()},
		Action: func(ctx *cli.Context) error {
			cfg, loadErr = loadConfig(ctx)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	return cfg, loadErr
}

func TestLoadConfigFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recenttrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[fetch]
timeout = "4s"

[[trackers]]
id = "raimon49"
`), 0o600))

	cfg, err := runLoad(t, "--config", path, "--user", "rj", "--interval", "1", "--timeout", "2s")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, []string{"raimon49", "rj"}, cfg.Ids())
	require.NotNil(t, cfg.Trackers[1].Interval)
	assert.Equal(t, 1.0, *cfg.Trackers[1].Interval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	// The default path may be absent
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := runLoad(t, "--user", "raimon49")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Fetch.Timeout, cfg.Fetch.Timeout)
	assert.Equal(t, []string{"raimon49"}, cfg.Ids())

	// An explicit path must exist
	_, err = runLoad(t, "--config", filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, validatePort("3000"))
	assert.NoError(t, validatePort(" 8080 "))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("65536"))
	assert.Error(t, validatePort("http"))
}

func TestHostPage(t *testing.T) {
	cfg := config.Default()
	cfg.Trackers = []config.TomlTracker{{Id: "raimon49"}}

	doc, err := hostPage(cfg)
	require.NoError(t, err)
	assert.True(t, doc.Has("raimon49"))

	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><body><p id="raimon49"></p></body></html>`), 0o600))
	cfg.Server.Page = page

	doc, err = hostPage(cfg)
	require.NoError(t, err)
	assert.True(t, doc.Has("raimon49"))

	cfg.Server.Page = filepath.Join(t.TempDir(), "missing.html")
	_, err = hostPage(cfg)
	assert.Error(t, err)
}
