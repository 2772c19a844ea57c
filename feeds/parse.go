package feeds

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"recenttrack/models"
)

// FailedTitle is shown when the feed has no usable item
const FailedTitle = "(Failed...)"

// Parse reads an RSS (or Atom) document
func Parse(body []byte) (*gofeed.Feed, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// IsPlaying reports whether the most recent item was published after the
// feed's lastBuildDate. The provider bumps pubDate of the track being played
// past the build date, so this is only a heuristic for that one provider.
func IsPlaying(feed *gofeed.Feed) bool {
	if feed == nil || feed.UpdatedParsed == nil || len(feed.Items) == 0 {
		return false
	}
	published := feed.Items[0].PublishedParsed
	if published == nil {
		return false
	}
	return published.After(*feed.UpdatedParsed)
}

// LastTrackTitle returns the title of the most recent item
func LastTrackTitle(feed *gofeed.Feed) string {
	if feed == nil || len(feed.Items) == 0 || feed.Items[0] == nil {
		return FailedTitle
	}
	if feed.Items[0].Title == "" {
		return FailedTitle
	}
	return feed.Items[0].Title
}

// Snapshot summarises a parsed feed for one identity
func Snapshot(user string, feed *gofeed.Feed, at time.Time) models.FeedSnapshot {
	return models.FeedSnapshot{
		User:      user,
		Playing:   IsPlaying(feed),
		Title:     LastTrackTitle(feed),
		FetchedAt: at,
	}
}
