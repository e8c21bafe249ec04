// Package staleness decides which cached product entries must be refreshed.
//
// The policy is pure: the same entry, instant and durations always produce the
// same answer, so every store backend and the refresh coordinator share it.
package staleness

import (
	"slices"
	"time"

	"github.com/michaellenahan/amazon-product-widget/product"
)

// Policy holds the freshness window and the retry backoff for failing keys
type Policy struct {
	// TTL is how long a fetched record stays fresh
	TTL time.Duration
	// RetryBackoff is the quiet period after any attempt before the key is eligible again
	// 0 makes a key eligible again right after an attempt
	RetryBackoff time.Duration
}

// DefaultPolicy returns the default staleness policy
func DefaultPolicy() *Policy {
	return &Policy{
		TTL:          30 * 24 * time.Hour,
		RetryBackoff: time.Hour,
	}
}

// Validate validates the policy
func (p *Policy) Validate() error {
	if p.TTL <= 0 {
		return ErrInvalidTTL(p.TTL)
	}
	if p.RetryBackoff < 0 {
		return ErrInvalidRetryBackoff(p.RetryBackoff)
	}
	return nil
}

// Outdated reports whether e needs a refresh at now
// A nil entry is a key that was never stored and is always outdated
func (p Policy) Outdated(e *product.Entry, now time.Time) bool {
	if e == nil {
		return true
	}
	// keys attempted within the backoff window are left alone, failing or not
	if !e.LastAttemptAt.IsZero() && now.Sub(e.LastAttemptAt) < p.RetryBackoff {
		return false
	}
	if e.Record == nil {
		return true
	}
	return now.Sub(e.LastRefreshedAt) > p.TTL
}

// Filter returns the sorted keys of the outdated entries
func (p Policy) Filter(entries []*product.Entry, now time.Time) []string {
	keys := make([]string, 0)
	for _, e := range entries {
		if e != nil && p.Outdated(e, now) {
			keys = append(keys, e.Key)
		}
	}
	slices.Sort(keys)
	return keys
}

// RefreshedBefore returns the refresh instant before which a fetched record is stale
func (p Policy) RefreshedBefore(now time.Time) time.Time {
	return now.Add(-p.TTL)
}

// AttemptedBefore returns the attempt instant at or before which a key is out of backoff
func (p Policy) AttemptedBefore(now time.Time) time.Time {
	return now.Add(-p.RetryBackoff)
}
