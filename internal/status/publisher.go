// Package status holds the externally visible collector state. One writer
// (the collector) swaps in complete states; any number of readers pull the
// current one without blocking.
package status

import (
	"sync/atomic"
	"time"

	"gpuwatch/internal/snapshot"
)

// ServerInfo identifies the remote target for display.
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
}

// PublishedState is the full tuple the presentation layer reads. It is
// immutable once published; the collector builds a fresh value each cycle.
type PublishedState struct {
	// OK is true iff the most recent poll executed the remote command and
	// parsed at least one device.
	OK bool `json:"ok"`

	// State is the collector state name: disconnected, connecting,
	// connected, or retrying.
	State string `json:"state"`

	// Error is the current error string, empty after a successful poll.
	// When Data is still set, the snapshot is stale but shown anyway.
	Error string `json:"error,omitempty"`

	// ConfigErrors lists configuration problems that stop the poll loop.
	ConfigErrors []string `json:"config_errors"`

	// Server is the remote target identity, absent when no target is
	// configured.
	Server *ServerInfo `json:"server,omitempty"`

	// Data is the latest successful snapshot, nil before the first success.
	Data *snapshot.Snapshot `json:"data,omitempty"`

	// LastUpdate is when this state was published.
	LastUpdate time.Time `json:"last_update"`

	// LastSuccess is when the last successful capture happened.
	LastSuccess *time.Time `json:"last_success,omitempty"`

	// PollIntervalSeconds tells the frontend how often data refreshes.
	PollIntervalSeconds float64 `json:"poll_interval"`
}

// Publisher hands complete PublishedState values from the collector to
// concurrent readers via an atomic pointer swap. Readers never block on a
// publish in progress and never observe a partially updated state.
type Publisher struct {
	current atomic.Pointer[PublishedState]
}

// NewPublisher creates a publisher seeded with an empty not-ok state, so
// readers get a well-formed answer before the first poll completes.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.current.Store(&PublishedState{
		State:        "disconnected",
		ConfigErrors: []string{},
		LastUpdate:   time.Now().UTC(),
	})
	return p
}

// Publish atomically replaces the current state. Called only by the
// collector, once per poll cycle.
func (p *Publisher) Publish(state PublishedState) {
	if state.ConfigErrors == nil {
		state.ConfigErrors = []string{}
	}
	if state.LastUpdate.IsZero() {
		state.LastUpdate = time.Now().UTC()
	}
	p.current.Store(&state)
}

// Current returns the most recently published state.
func (p *Publisher) Current() PublishedState {
	return *p.current.Load()
}
