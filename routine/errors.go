package routine

import "fmt"

// ErrPanic returns an error wrapping the recovered panic value
func ErrPanic(recovered any) error {
	return fmt.Errorf("routine: panic recovered: %v", recovered)
}

// ErrNotStarted a limited goroutine was abandoned while waiting for a slot
func ErrNotStarted(name string, err error) error {
	return fmt.Errorf("routine: %s not started: %w", name, err)
}
