package tracker

import (
	"strconv"
	"time"

	"github.com/mattn/go-runewidth"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"recenttrack/dom"
	"recenttrack/models"
)

const (
	// Pixels the title moves per marquee tick
	ScrollAmount = 3
	// Marquee tick duration, the HTML default
	DefaultScrollDelay = 85 * time.Millisecond

	DisplayWidth  = 125
	DisplayHeight = 24
	// Approximate width of one terminal cell of title text at 12px
	GlyphWidth = 7

	userIconSize = "12"
)

func (t *Tracker) playingID() string   { return t.id + "_playing" }
func (t *Tracker) containerID() string { return t.id + "_track_container" }
func (t *Tracker) trackID() string     { return t.id + "_track" }

// ScrollDuration is how long a one pass marquee needs to move title from
// the right edge of the display until it has left on the left side.
func ScrollDuration(title string, delay time.Duration) time.Duration {
	distance := DisplayWidth + runewidth.StringWidth(title)*GlyphWidth
	ticks := (distance + ScrollAmount - 1) / ScrollAmount
	return time.Duration(ticks) * delay
}

// buildScaffold appends the user and track boxes to the container whose id
// is the identity. Returns false when the page has no such container.
func (t *Tracker) buildScaffold() bool {
	if t.doc == nil {
		return false
	}

	built := false
	_ = t.doc.Update(func(tx *dom.Tx) error {
		ticker := tx.ByID(t.id)
		if ticker == nil {
			return nil
		}
		dl := dom.Append(dom.Element("dl"), t.createUser(), t.createTrackContainer())
		ticker.AppendChild(dl)
		built = true
		return nil
	})
	return built
}

func (t *Tracker) createUser() *html.Node {
	icon := dom.Element("img",
		dom.Attr("src", t.urls.UserIcon),
		dom.Attr("alt", t.id),
		dom.Attr("height", userIconSize),
		dom.Attr("width", userIconSize),
	)
	anchor := dom.Append(dom.Element("a", dom.Attr("href", t.urls.Profile)), dom.Text(t.id))
	playing := dom.Element("span", dom.Attr("id", t.playingID()))

	return dom.Append(dom.Element("dt"), icon, anchor, playing)
}

func (t *Tracker) createTrackContainer() *html.Node {
	return dom.Element("dd", dom.Attr("id", t.containerID()))
}

func (t *Tracker) createPlayingIcon() *html.Node {
	return dom.Element("img", dom.Attr("src", t.urls.PlayingIcon), dom.Attr("alt", "now playing"))
}

// createTrackTitle wraps title in a marquee that scrolls across the display
// exactly once
func (t *Tracker) createTrackTitle(title string) *html.Node {
	scrollText := dom.Append(dom.Element("marquee",
		dom.Attr("behavior", "scroll"),
		dom.Attr("scrollamount", strconv.Itoa(ScrollAmount)),
		dom.Attr("scrolldelay", strconv.FormatInt(t.scrollDelay.Milliseconds(), 10)),
		dom.Attr("loop", "1"),
	), dom.Text(title))

	return dom.Append(dom.Element("div", dom.Attr("id", t.trackID())), scrollText)
}

func fitText(title string) *html.Node {
	style := "height: " + strconv.Itoa(DisplayHeight) + "px; width: " +
		strconv.Itoa(DisplayWidth) + "px; overflow: hidden;"
	return dom.Append(dom.Element("p",
		dom.Attr("title", title),
		dom.Attr("style", style),
	), dom.Text(title))
}

// showLocked renders a snapshot and schedules the scrolling title to be
// replaced by the clipped one once its single pass is over
func (t *Tracker) showLocked(snap models.FeedSnapshot) {
	if t.doc == nil {
		return
	}

	rendered := false
	_ = t.doc.Update(func(tx *dom.Tx) error {
		trackContainer := tx.ByID(t.containerID())
		if trackContainer == nil {
			return nil
		}
		tx.ReplaceChildren(trackContainer, t.createTrackTitle(snap.Title))

		if p := tx.ByID(t.playingID()); p != nil {
			if snap.Playing {
				tx.ReplaceChildren(p, t.createPlayingIcon())
			} else {
				tx.ReplaceChildren(p)
			}
		}
		rendered = true
		return nil
	})
	if !rendered {
		return
	}

	renders.WithLabelValues("title").Inc()
	t.emitPatchLocked()
	t.scheduleFitLocked(snap.Title)
}

func (t *Tracker) scheduleFitLocked(title string) {
	t.renderSeq++
	seq := t.renderSeq
	if t.fitTimer != nil {
		t.fitTimer.Stop()
	}
	t.fitTimer = time.AfterFunc(ScrollDuration(title, t.scrollDelay), func() {
		t.fitTrackTitle(seq, title)
	})
}

// fitTrackTitle swaps the marquee for a static, clipped paragraph that keeps
// the full title as its tooltip. The track box is looked up again because a
// newer render may have replaced it in the meantime.
func (t *Tracker) fitTrackTitle(seq uint64, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seq != t.renderSeq || t.doc == nil {
		return
	}
	t.fitTimer = nil

	fitted := false
	_ = t.doc.Update(func(tx *dom.Tx) error {
		container := tx.ByID(t.trackID())
		if container == nil {
			return nil
		}
		tx.ReplaceChild(container, fitText(title), container.FirstChild)
		fitted = true
		return nil
	})
	if !fitted {
		return
	}

	renders.WithLabelValues("fit").Inc()
	t.emitPatchLocked()
}

// showErrorLocked replaces the track box content with a red message
func (t *Tracker) showErrorLocked(msg string) {
	if t.doc == nil {
		return
	}

	// Invalidates a pending fit, the track box it targets is gone
	t.renderSeq++

	shown := false
	err := t.doc.Update(func(tx *dom.Tx) error {
		trackContainer := tx.ByID(t.containerID())
		if trackContainer == nil {
			return nil
		}
		shown = true
		return tx.SetInnerHTML(trackContainer, "<p style='color: red;'>"+dom.EscapeHTML(msg)+"</p>")
	})
	if err != nil {
		log.WithFields(log.Fields{"user": t.id, "error": err}).Error("Failed to render message")
		return
	}
	if !shown {
		return
	}

	renders.WithLabelValues("error").Inc()
	t.emitPatchLocked()
}

func (t *Tracker) emitPatchLocked() {
	if t.doc == nil || t.events == nil {
		return
	}
	markup, ok := t.doc.OuterHTML(t.id)
	if !ok {
		return
	}
	t.emit(models.PatchEvent{Target: t.id, HTML: markup})
}
