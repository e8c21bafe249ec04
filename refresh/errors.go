package refresh

import "fmt"

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("refresh: invalid config: %s", msg)
}

// ErrRun a run stopped early on a run-level error; the partial report is still returned
func ErrRun(err error) error {
	return fmt.Errorf("refresh: run aborted: %w", err)
}
