package fetcher

import (
	"fmt"

	"github.com/michaellenahan/amazon-product-widget/product"
)

var (
	// ErrBudgetExhausted the local call budget for the current window is used up
	ErrBudgetExhausted = fmt.Errorf("fetcher: call budget exhausted: %w", product.ErrRateLimited)
)

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("fetcher: invalid config: %s", msg)
}

// ErrBatchTooLarge the batch exceeds the per-call key limit
func ErrBatchTooLarge(size, limit int) error {
	return fmt.Errorf("fetcher: batch of %d keys exceeds limit %d: %w", size, limit, product.ErrRateLimited)
}

// ErrUpstreamRateLimited the upstream API answered 429
func ErrUpstreamRateLimited(retryAfter string) error {
	return fmt.Errorf("fetcher: upstream rate limited (retry after %q): %w", retryAfter, product.ErrRateLimited)
}

// ErrRequest the upstream call failed before a response arrived
func ErrRequest(err error) error {
	return fmt.Errorf("fetcher: request failed: %w", err)
}

// ErrStatus the upstream API answered with an unexpected status
func ErrStatus(code int) error {
	return fmt.Errorf("fetcher: unexpected status %d", code)
}

// ErrDecode the response body could not be decoded
func ErrDecode(err error) error {
	return fmt.Errorf("fetcher: decode response: %w", err)
}
