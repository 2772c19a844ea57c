package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"recenttrack/dom"
	"recenttrack/models"
)

// Target describes one tracker to start. A nil Interval uses DefaultMinute.
type Target struct {
	ID       string
	Interval *float64
}

// Registry owns the trackers of one process, keyed by identity
type Registry struct {
	mu       sync.RWMutex
	doc      *dom.Document
	opts     []Option
	trackers map[string]*Tracker
	order    []string
}

// NewRegistry creates a registry whose trackers render into doc and share
// opts
func NewRegistry(doc *dom.Document, opts ...Option) *Registry {
	return &Registry{
		doc:      doc,
		opts:     opts,
		trackers: make(map[string]*Tracker),
	}
}

// Start creates one tracker per target. Targets repeating an identity that is
// already tracked are skipped.
func (r *Registry) Start(ctx context.Context, targets []Target) error {
	for _, target := range targets {
		if dom.Trim(target.ID) == "" {
			return fmt.Errorf("tracker without id")
		}
	}

	targets = lo.UniqBy(targets, func(s Target) string { return dom.Trim(s.ID) })

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, target := range targets {
		id := dom.Trim(target.ID)
		if _, ok := r.trackers[id]; ok {
			log.WithField("user", id).Warn("Already tracking user, skipping")
			continue
		}

		opts := append([]Option{}, r.opts...)
		if target.Interval != nil {
			opts = append(opts, WithInterval(*target.Interval))
		}

		r.trackers[id] = New(ctx, r.doc, id, opts...)
		r.order = append(r.order, id)
	}

	log.WithFields(log.Fields{
		"count": len(r.order),
	}).Info("Trackers started")
	return nil
}

func (r *Registry) Get(id string) (*Tracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[id]
	return t, ok
}

// List returns the trackers in start order
func (r *Registry) List() []*Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(id string, _ int) *Tracker { return r.trackers[id] })
}

func (r *Registry) Statuses() []models.TrackerStatus {
	return lo.Map(r.List(), func(t *Tracker, _ int) models.TrackerStatus { return t.Status() })
}

// Shutdown closes every tracker
func (r *Registry) Shutdown() {
	log.Info("Shutting down trackers")
	for _, t := range r.List() {
		t.Close()
	}
}
