package cron

import "fmt"

var (
	// ErrInvalidSpec is returned when a cron spec string is invalid
	ErrInvalidSpec = fmt.Errorf("cron: invalid cron spec")

	// ErrMissingDependency is returned when a refresh job lacks its source or trigger
	ErrMissingDependency = fmt.Errorf("cron: source and trigger are required")
)

// ErrAddJob wraps a failure to register a job
func ErrAddJob(name, spec string, err error) error {
	return fmt.Errorf("cron: failed to add job %s with spec %s: %w (%w)", name, spec, err, ErrInvalidSpec)
}
