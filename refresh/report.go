package refresh

import (
	"time"

	"github.com/michaellenahan/amazon-product-widget/events"
)

// Report summarizes one refresh run
// Attempted counts every key handed to the fetcher, including the keys of a
// batch refused with a rate limit. Deferred counts candidate keys the run
// stopped before writing: the refused batch, batches never started and the
// unwritten keys of a batch that panicked.
// Deferred keys are left untouched in the store.
type Report struct {
	Attempted      int           `json:"attempted"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Deferred       int           `json:"deferred"`
	RateLimited    bool          `json:"rate_limited"`
	Cancelled      bool          `json:"cancelled"`
	RemainingStale bool          `json:"remaining_stale"`
	Duration       time.Duration `json:"duration"`
}

// Event converts the report to a refresh_completed event
func (r *Report) Event(collectionID string, at time.Time) events.Event {
	return events.Event{
		Name:           events.NameRefreshCompleted,
		CollectionID:   collectionID,
		Attempted:      r.Attempted,
		Succeeded:      r.Succeeded,
		Failed:         r.Failed,
		Deferred:       r.Deferred,
		RemainingStale: r.RemainingStale,
		RateLimited:    r.RateLimited,
		Cancelled:      r.Cancelled,
		Duration:       r.Duration,
		At:             at,
	}
}

// batchOutcome is what one batch contributes to the report
type batchOutcome struct {
	attempted   int
	succeeded   int
	failed      int
	deferred    int
	rateLimited bool
	err         error
}

func (r *Report) add(o batchOutcome) {
	r.Attempted += o.attempted
	r.Succeeded += o.succeeded
	r.Failed += o.failed
	r.Deferred += o.deferred
	if o.rateLimited {
		r.RateLimited = true
	}
}
