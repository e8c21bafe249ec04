package events

import "fmt"

var (
	// ErrSinkClosed the sink no longer accepts events
	ErrSinkClosed = fmt.Errorf("events: sink is closed")
)

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("events: invalid config: %s", msg)
}

// ErrConnection sink backend connection error
func ErrConnection(sink string, err error) error {
	return fmt.Errorf("events: %s connection failed: %w", sink, err)
}

// ErrEncode event encoding error
func ErrEncode(err error) error {
	return fmt.Errorf("events: encode event: %w", err)
}

// ErrPublish event publishing error
func ErrPublish(sink string, err error) error {
	return fmt.Errorf("events: publish to %s failed: %w", sink, err)
}

// ErrInsert clickhouse insert error
func ErrInsert(table string, err error) error {
	return fmt.Errorf("events: insert to table %s failed: %w", table, err)
}
