package models

import "time"

// FeedSnapshot is the parsed result of one successful fetch
type FeedSnapshot struct {
	User      string    `json:"user"`
	Playing   bool      `json:"playing"`
	Title     string    `json:"title"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Outcome of a settled fetch cycle
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeStatus     Outcome = "unexpected_status"
	OutcomeFailed     Outcome = "failed"
	OutcomeMalformed  Outcome = "malformed"
	OutcomeSuperseded Outcome = "superseded"
)

// PatchEvent fired when the markup of a tracker's container changed
type PatchEvent struct {
	Target string `json:"target"`
	HTML   string `json:"html"`
}

// SnapshotEvent fired when a fetch produced a new snapshot
type SnapshotEvent struct {
	Snapshot FeedSnapshot
}

// StatusEvent fired when a fetch cycle settled
type StatusEvent struct {
	User       string    `json:"user"`
	Cycle      uint64    `json:"cycle"`
	Outcome    Outcome   `json:"outcome"`
	StatusCode int       `json:"statusCode,omitempty"`
	Stopped    bool      `json:"stopped"`
	SettledAt  time.Time `json:"settledAt"`
}

// TrackerStatus is the JSON view of one tracker
type TrackerStatus struct {
	User        string        `json:"user"`
	State       string        `json:"state"`
	Interval    string        `json:"interval"`
	ProfileURL  string        `json:"profileUrl"`
	FeedURL     string        `json:"feedUrl"`
	Scaffolded  bool          `json:"scaffolded"`
	LastOutcome Outcome       `json:"lastOutcome,omitempty"`
	Snapshot    *FeedSnapshot `json:"snapshot,omitempty"`
}
