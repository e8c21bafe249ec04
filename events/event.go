// Package events publishes refresh run outcomes to external observers.
//
// A Sink receives one Event per completed refresh run. The log sink is always
// available; kafka and clickhouse sinks are enabled by configuration and
// combined with Multi.
package events

import (
	"context"
	"time"
)

// NameRefreshCompleted is the name of the event emitted after every refresh run
const NameRefreshCompleted = "refresh_completed"

// Event is a structured refresh outcome
type Event struct {
	Name           string        `json:"event"`
	CollectionID   string        `json:"collection_id,omitempty"`
	Attempted      int           `json:"attempted"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Deferred       int           `json:"deferred"`
	RemainingStale bool          `json:"remaining_stale"`
	RateLimited    bool          `json:"rate_limited"`
	Cancelled      bool          `json:"cancelled"`
	Duration       time.Duration `json:"duration_ns"`
	At             time.Time     `json:"at"`
}

// Sink accepts events
// Emit must not block on the network; delivery failures are logged by the sink
type Sink interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

type nopSink struct{}

// Nop returns a sink that drops every event
func Nop() Sink {
	return nopSink{}
}

func (nopSink) Emit(context.Context, Event) error { return nil }
func (nopSink) Close() error                     { return nil }
