package staleness

import (
	"fmt"
	"time"
)

// ErrInvalidTTL returns an error for an invalid ttl
func ErrInvalidTTL(ttl time.Duration) error {
	return fmt.Errorf("staleness: invalid ttl: %v (must be > 0)", ttl)
}

// ErrInvalidRetryBackoff returns an error for an invalid retry backoff
func ErrInvalidRetryBackoff(backoff time.Duration) error {
	return fmt.Errorf("staleness: invalid retry backoff: %v (must be >= 0)", backoff)
}
