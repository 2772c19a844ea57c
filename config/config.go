package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"recenttrack/dom"
	"recenttrack/feeds"
	"recenttrack/tracker"
)

// TomlServer holds the HTTP server settings
type TomlServer struct {
	Hostname string `toml:"hostname"`
	Port     int    `toml:"port"`
	Title    string `toml:"title,omitempty"`
	Page     string `toml:"page,omitempty"` // Optional host page, built from the trackers when empty
}

// TomlFetch holds settings shared by every feed request
type TomlFetch struct {
	Timeout     time.Duration `toml:"timeout"`
	UserAgent   string        `toml:"user_agent,omitempty"`
	ScrollDelay time.Duration `toml:"scroll_delay,omitempty"`
}

// TomlTracker represents one monitored user
type TomlTracker struct {
	Id       string   `toml:"id"`
	Interval *float64 `toml:"interval,omitempty"` // Minutes, 2 when omitted
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server    TomlServer      `toml:"server"`
	Fetch     TomlFetch       `toml:"fetch"`
	Endpoints feeds.Endpoints `toml:"endpoints"`
	Trackers  []TomlTracker   `toml:"trackers"`
}

// Default returns the configuration used when no file is given
func Default() *TomlConfig {
	return &TomlConfig{
		Server: TomlServer{
			Hostname: "localhost",
			Port:     3000,
			Title:    "Recent tracks",
		},
		Fetch: TomlFetch{
			Timeout:     tracker.DefaultTimeout,
			UserAgent:   feeds.DefaultUserAgent,
			ScrollDelay: tracker.DefaultScrollDelay,
		},
		Endpoints: feeds.DefaultEndpoints,
	}
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.Endpoints = config.Endpoints.WithDefaults()
	if config.Fetch.Timeout <= 0 {
		config.Fetch.Timeout = tracker.DefaultTimeout
	}

	return config, nil
}

// Save writes config to path as TOML
func Save(path string, config *TomlConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Targets converts the configured trackers, with identities trimmed the
// same way Ids trims them
func (c *TomlConfig) Targets() []tracker.Target {
	targets := make([]tracker.Target, len(c.Trackers))
	for i, t := range c.Trackers {
		targets[i] = tracker.Target{ID: dom.Trim(t.Id), Interval: t.Interval}
	}
	return targets
}

// Ids returns the configured identities in order, trimmed
func (c *TomlConfig) Ids() []string {
	ids := make([]string, len(c.Trackers))
	for i, t := range c.Trackers {
		ids[i] = dom.Trim(t.Id)
	}
	return ids
}
