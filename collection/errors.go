package collection

import (
	"fmt"
	"time"
)

// ErrSync wraps a load failure after all retry attempts
func ErrSync(err error) error {
	return fmt.Errorf("collection: sync failed: %w", err)
}

// ErrRead the collections file could not be read
func ErrRead(path string, err error) error {
	return fmt.Errorf("collection: read %s: %w", path, err)
}

// ErrParse the collections file is not valid YAML
func ErrParse(path string, err error) error {
	return fmt.Errorf("collection: parse %s: %w", path, err)
}

// ErrInvalidCollection a loaded collection is unusable
func ErrInvalidCollection(id, msg string) error {
	return fmt.Errorf("collection: invalid collection %q: %s", id, msg)
}

// ErrInvalidSyncInterval returns an error for invalid sync interval
func ErrInvalidSyncInterval(interval time.Duration) error {
	return fmt.Errorf("collection: invalid sync interval: %v (must be > 0)", interval)
}

// ErrInvalidSyncTimeout returns an error for invalid sync timeout
func ErrInvalidSyncTimeout(timeout time.Duration) error {
	return fmt.Errorf("collection: invalid sync timeout: %v (must be > 0)", timeout)
}

// ErrInvalidMaxRetries returns an error for invalid max retries
func ErrInvalidMaxRetries(retries int) error {
	return fmt.Errorf("collection: invalid max retries: %d (must be >= 1)", retries)
}

// ErrMissingSource no load function was given
var ErrMissingSource = fmt.Errorf("collection: load function is required")
