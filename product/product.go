// Package product defines the cached product data model shared by the store,
// the fetcher and the refresh coordinator.
package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the product payload returned by the upstream API and served to widgets
type Record struct {
	// Key is the upstream product identifier, e.g. an ASIN
	Key          string          `json:"key"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty"`
	ImageURL     string          `json:"image_url,omitempty"`
	DetailURL    string          `json:"detail_url,omitempty"`
	Availability string          `json:"availability,omitempty"`
	RefreshedAt  time.Time       `json:"refreshed_at"`
}

// Validate reports whether the record carries the fields a widget needs
func (r *Record) Validate() error {
	if r.Key == "" {
		return ErrMalformedRecord("missing key")
	}
	if r.Title == "" {
		return ErrMalformedRecord("missing title")
	}
	if r.Price.IsNegative() {
		return ErrMalformedRecord("negative price")
	}
	return nil
}

// Entry is a cached record plus its freshness metadata
// Record is nil when the key was attempted but never fetched successfully
// LastAttemptAt is never before LastRefreshedAt
type Entry struct {
	Key             string    `json:"key"`
	Record          *Record   `json:"record,omitempty"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	LastAttemptAt   time.Time `json:"last_attempt_at"`
	FailureCount    uint32    `json:"failure_count"`
}

// Fetched returns an entry for a successful fetch at now
func Fetched(key string, r *Record, now time.Time) *Entry {
	rec := *r
	rec.Key = key
	rec.RefreshedAt = now
	return &Entry{
		Key:             key,
		Record:          &rec,
		LastRefreshedAt: now,
		LastAttemptAt:   now,
	}
}

// Failed returns the entry prev becomes after a failed attempt at now
// prev may be nil for a key that was never stored
func Failed(key string, prev *Entry, now time.Time) *Entry {
	e := &Entry{Key: key}
	if prev != nil {
		*e = *prev
	}
	e.LastAttemptAt = now
	e.FailureCount++
	return e
}

// Supersedes reports whether a write at now may replace the stored entry prev
// Writes are last-write-wins ordered by their timestamp
func Supersedes(prev *Entry, now time.Time) bool {
	return prev == nil || !now.Before(prev.LastAttemptAt)
}

// Result is the outcome of fetching a single key
type Result struct {
	Record *Record
	Err    error
}

// OK reports whether the fetch succeeded
func (r Result) OK() bool {
	return r.Err == nil && r.Record != nil
}
