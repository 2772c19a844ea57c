// Package tracker polls the recent tracks feed of one user and renders the
// result into that user's container on the host page.
package tracker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"recenttrack/dom"
	"recenttrack/feeds"
	"recenttrack/models"
)

const (
	DefaultTimeout = 5 * time.Second

	UserNotFoundMessage = "User not found."
	TimeoutMessage      = "Request timeout."
)

type State int

const (
	Uninitialized State = iota
	Scaffolded
	Polling
	Rendering
	Stopped
)

func (s State) String() string {
	switch s {
	case Scaffolded:
		return "scaffolded"
	case Polling:
		return "polling"
	case Rendering:
		return "rendering"
	case Stopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

type Option func(*Tracker)

// WithInterval sets the poll interval in minutes, see Interval
func WithInterval(minutes float64) Option {
	return func(t *Tracker) {
		t.interval = Interval(minutes)
	}
}

func WithEndpoints(e feeds.Endpoints) Option {
	return func(t *Tracker) {
		t.endpoints = e.WithDefaults()
	}
}

func WithClient(c *feeds.Client) Option {
	return func(t *Tracker) {
		t.client = c
	}
}

// WithTimeout sets the watchdog duration of every fetch
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithScrollDelay sets the duration of one marquee animation tick
func WithScrollDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.scrollDelay = d
		}
	}
}

// WithEvents makes the tracker publish models.PatchEvent, models.StatusEvent
// and models.SnapshotEvent values on ch. Sends never block.
func WithEvents(ch chan<- interface{}) Option {
	return func(t *Tracker) {
		t.events = ch
	}
}

// withPollInterval bypasses the minute clamping
func withPollInterval(d time.Duration) Option {
	return func(t *Tracker) {
		t.interval = d
	}
}

type Tracker struct {
	id          string
	endpoints   feeds.Endpoints
	urls        feeds.URLs
	interval    time.Duration
	timeout     time.Duration
	scrollDelay time.Duration
	client      *feeds.Client
	doc         *dom.Document
	events      chan<- interface{}
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	scaffolded  bool
	stopped     bool
	cycle       uint64
	inflight    context.CancelFunc
	ticker      *time.Ticker
	tickerDone  chan struct{}
	renderSeq   uint64
	fitTimer    *time.Timer
	snapshot    *models.FeedSnapshot
	lastOutcome models.Outcome
}

// result of one request, before settlement
type result struct {
	outcome  models.Outcome
	status   int
	snapshot models.FeedSnapshot
	err      error
}

// New builds the scaffold inside the element whose id is the identity (if
// the page has one), fetches once and starts polling. doc may be nil for
// headless use.
func New(ctx context.Context, doc *dom.Document, id string, opts ...Option) *Tracker {
	t := &Tracker{
		id:          dom.Trim(id),
		endpoints:   feeds.DefaultEndpoints,
		interval:    Interval(DefaultMinute),
		timeout:     DefaultTimeout,
		scrollDelay: DefaultScrollDelay,
		doc:         doc,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = feeds.NewClient(nil)
	}
	t.urls = t.endpoints.For(t.id)
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.initialize()
	return t
}

func (t *Tracker) initialize() {
	t.mu.Lock()
	t.scaffolded = t.buildScaffold()
	t.state = Scaffolded
	if t.scaffolded {
		t.emitPatchLocked()
	}
	t.mu.Unlock()

	activeTrackers.Inc()
	log.WithFields(log.Fields{
		"user":       t.id,
		"feed":       t.urls.Feed,
		"interval":   t.interval,
		"scaffolded": t.scaffolded,
	}).Info("Watching recent tracks")

	t.getLastTrack()
	t.startWatchingFeed()
}

// startWatchingFeed arms the ticker, replacing any previous one
func (t *Tracker) startWatchingFeed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopTickerLocked()

	ticker := time.NewTicker(t.interval)
	done := make(chan struct{})
	t.ticker = ticker
	t.tickerDone = done

	go t.watch(ticker.C, done)
}

func (t *Tracker) watch(ticks <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-t.ctx.Done():
			return
		case <-ticks:
			t.getLastTrack()
		}
	}
}

func (t *Tracker) stopTickerLocked() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.tickerDone)
	t.ticker = nil
	t.tickerDone = nil
}

// getLastTrack starts one fetch cycle. The request races a watchdog; the
// first of the two to settle wins and the other becomes a no-op. Starting a
// cycle cancels the request of the previous one, and results of any cycle
// that is no longer the latest are discarded in settle.
func (t *Tracker) getLastTrack() {
	t.mu.Lock()
	if t.stopped || t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	if t.inflight != nil {
		t.inflight()
	}
	t.cycle++
	token := t.cycle
	ctx, cancel := context.WithCancel(t.ctx)
	t.inflight = cancel
	t.state = Polling
	t.mu.Unlock()

	var settled atomic.Bool

	watchdog := time.AfterFunc(t.timeout, func() {
		if !settled.CompareAndSwap(false, true) {
			return
		}
		cancel()
		t.settle(token, result{outcome: models.OutcomeTimeout})
	})

	go func() {
		defer cancel()
		res := t.request(ctx)
		if !settled.CompareAndSwap(false, true) {
			return
		}
		watchdog.Stop()
		t.settle(token, res)
	}()
}

func (t *Tracker) request(ctx context.Context) result {
	start := time.Now()
	resp, err := t.client.Fetch(ctx, t.urls.Feed)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return result{outcome: models.OutcomeSuperseded, err: err}
		}
		return result{outcome: models.OutcomeFailed, err: err}
	}
	fetchDuration.Observe(time.Since(start).Seconds())

	switch resp.StatusCode {
	case http.StatusOK:
		feed, err := feeds.Parse(resp.Body)
		if err != nil {
			return result{outcome: models.OutcomeMalformed, status: resp.StatusCode, err: err}
		}
		return result{
			outcome:  models.OutcomeSuccess,
			status:   resp.StatusCode,
			snapshot: feeds.Snapshot(t.id, feed, t.now()),
		}
	case http.StatusNotFound:
		return result{outcome: models.OutcomeNotFound, status: resp.StatusCode}
	default:
		return result{outcome: models.OutcomeStatus, status: resp.StatusCode, err: resp.Err()}
	}
}

func (t *Tracker) settle(token uint64, res result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := log.Fields{
		"user":    t.id,
		"cycle":   token,
		"outcome": res.outcome,
	}

	if token != t.cycle || t.ctx.Err() != nil || res.outcome == models.OutcomeSuperseded {
		log.WithFields(fields).Debug("Discarding result of stale fetch")
		return
	}
	t.inflight = nil
	t.lastOutcome = res.outcome
	fetchCycles.WithLabelValues(string(res.outcome)).Inc()

	switch res.outcome {
	case models.OutcomeSuccess:
		snap := res.snapshot
		t.snapshot = &snap
		t.showLocked(snap)
		t.emit(models.SnapshotEvent{Snapshot: snap})
		log.WithFields(fields).WithFields(log.Fields{
			"playing": snap.Playing,
			"title":   snap.Title,
		}).Debug("Rendered recent track")
	case models.OutcomeNotFound:
		t.showErrorLocked(UserNotFoundMessage)
		t.stopLocked()
		log.WithFields(fields).Warn("User not found, no longer polling")
	case models.OutcomeTimeout:
		t.showErrorLocked(TimeoutMessage)
		log.WithFields(fields).WithField("timeout", t.timeout).Warn("Feed request timed out")
	case models.OutcomeStatus:
		// Nothing is rendered for other statuses
		log.WithFields(fields).WithField("status", res.status).Warn("Unexpected feed status")
	case models.OutcomeMalformed:
		log.WithFields(fields).WithField("error", res.err).Error("Failed to parse feed")
	default:
		log.WithFields(fields).WithField("error", res.err).Warn("Feed request failed")
	}

	if !t.stopped {
		t.state = Rendering
	}
	t.emit(models.StatusEvent{
		User:       t.id,
		Cycle:      token,
		Outcome:    res.outcome,
		StatusCode: res.status,
		Stopped:    t.stopped,
		SettledAt:  t.now(),
	})
}

// Stop cancels all future polls. Rendered content stays on the page and a
// request already in flight still settles. Calling Stop again is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Tracker) stopLocked() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.state = Stopped
	t.stopTickerLocked()
	activeTrackers.Dec()
	log.WithField("user", t.id).Info("Stopped watching recent tracks")
}

// Close stops polling and also abandons the in-flight request and any
// pending title transition. Used on process shutdown.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	// Cancelling the parent context also cancels the in-flight request
	t.cancel()
	t.inflight = nil
	if t.fitTimer != nil {
		t.fitTimer.Stop()
		t.fitTimer = nil
	}
}

func (t *Tracker) emit(event interface{}) {
	if t.events == nil {
		return
	}
	select {
	case t.events <- event:
	default:
		droppedEvents.Inc()
		log.WithField("user", t.id).Warn("Event channel full, dropping event")
	}
}

func (t *Tracker) ID() string {
	return t.id
}

func (t *Tracker) URLs() feeds.URLs {
	return t.urls
}

func (t *Tracker) Interval() time.Duration {
	return t.interval
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Scaffolded reports whether the host page had a container for this user
func (t *Tracker) Scaffolded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scaffolded
}

// Snapshot returns the last successfully rendered snapshot
func (t *Tracker) Snapshot() (models.FeedSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot == nil {
		return models.FeedSnapshot{}, false
	}
	return *t.snapshot, true
}

func (t *Tracker) Status() models.TrackerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := models.TrackerStatus{
		User:        t.id,
		State:       t.state.String(),
		Interval:    t.interval.String(),
		ProfileURL:  t.urls.Profile,
		FeedURL:     t.urls.Feed,
		Scaffolded:  t.scaffolded,
		LastOutcome: t.lastOutcome,
	}
	if t.snapshot != nil {
		snap := *t.snapshot
		status.Snapshot = &snap
	}
	return status
}
