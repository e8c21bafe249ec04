package product

import (
	"errors"
	"fmt"
)

// Fetch error kinds, reported per key
var (
	// ErrNotFound the upstream API does not know the key
	ErrNotFound = fmt.Errorf("product: not found")
	// ErrRateLimited the upstream API or the local call budget refused the request
	ErrRateLimited = fmt.Errorf("product: rate limited")
	// ErrNetwork transport failure or timeout talking to the upstream API
	ErrNetwork = fmt.Errorf("product: network error")
	// ErrMalformed the upstream API returned data that could not be used
	ErrMalformed = fmt.Errorf("product: malformed data")
)

// Run-level errors
var (
	// ErrStoreUnavailable the record store could not complete an operation
	ErrStoreUnavailable = fmt.Errorf("product: store unavailable")
	// ErrInvalidInput empty or malformed key set
	ErrInvalidInput = fmt.Errorf("product: invalid input")
)

// FetchError is the per-key failure reported by a fetcher
type FetchError struct {
	Key  string
	Kind error
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: key %s: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%v: key %s", e.Kind, e.Key)
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewFetchError builds a FetchError of the given kind
func NewFetchError(key string, kind, cause error) *FetchError {
	return &FetchError{Key: key, Kind: kind, Err: cause}
}

// Failure returns a failed Result for key
func Failure(key string, kind, cause error) Result {
	return Result{Err: NewFetchError(key, kind, cause)}
}

// KindOf returns the fetch error kind of err, or ErrNetwork for unclassified errors
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrRateLimited, ErrMalformed, ErrNetwork} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrNetwork
}

// ErrMalformedRecord a record failed validation
func ErrMalformedRecord(msg string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, msg)
}

// ErrStore wraps a backend failure as ErrStoreUnavailable
func ErrStore(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// ErrInvalid wraps an input validation failure as ErrInvalidInput
func ErrInvalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
