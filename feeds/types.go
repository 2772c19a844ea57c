// Package feeds fetches and interprets the recent tracks feed of one user
package feeds

import (
	"net/url"
	"strings"
)

// Endpoints are the base locations every per-user URL is derived from
type Endpoints struct {
	FeedBase     string `toml:"feed_base"`
	ProfileBase  string `toml:"profile_base"`
	PlayingIcon  string `toml:"playing_icon"`
	UserIconBase string `toml:"user_icon_base"`
}

var DefaultEndpoints = Endpoints{
	FeedBase:     "http://ws.audioscrobbler.com/1.0/user",
	ProfileBase:  "http://www.last.fm/user",
	PlayingIcon:  "http://cdn.last.fm/flatness/global/icon_eq.gif",
	UserIconBase: "http://usericons.relucks.org/lastfm",
}

// URLs derived for one identity
type URLs struct {
	Feed        string `json:"feed"`
	Profile     string `json:"profile"`
	PlayingIcon string `json:"playingIcon"`
	UserIcon    string `json:"userIcon"`
}

// WithDefaults fills every empty field from DefaultEndpoints
func (e Endpoints) WithDefaults() Endpoints {
	if e.FeedBase == "" {
		e.FeedBase = DefaultEndpoints.FeedBase
	}
	if e.ProfileBase == "" {
		e.ProfileBase = DefaultEndpoints.ProfileBase
	}
	if e.PlayingIcon == "" {
		e.PlayingIcon = DefaultEndpoints.PlayingIcon
	}
	if e.UserIconBase == "" {
		e.UserIconBase = DefaultEndpoints.UserIconBase
	}
	return e
}

// For derives the feed, profile and icon URLs of an identity
func (e Endpoints) For(id string) URLs {
	e = e.WithDefaults()
	escaped := url.PathEscape(id)
	return URLs{
		Feed:        join(e.FeedBase, escaped, "recenttracks.rss"),
		Profile:     join(e.ProfileBase, escaped),
		PlayingIcon: e.PlayingIcon,
		UserIcon:    join(e.UserIconBase, escaped),
	}
}

func join(base string, parts ...string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(parts, "/")
}
