package store

import "fmt"

var (
	// ErrTxnConflict a per-key transaction kept conflicting with concurrent writers
	ErrTxnConflict = fmt.Errorf("store: transaction conflict retries exhausted")
)

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("store: invalid config: %s", msg)
}

// ErrUnknownDriver the configured driver is not supported
func ErrUnknownDriver(driver string) error {
	return fmt.Errorf("store: unknown driver %q, must be one of: badger, redis, mysql", driver)
}

// ErrConnection backend connection error
func ErrConnection(err error) error {
	return fmt.Errorf("store: connection failed: %w", err)
}

// ErrCodec entry encoding error
func ErrCodec(key string, err error) error {
	return fmt.Errorf("store: codec failed for key %q: %w", key, err)
}
