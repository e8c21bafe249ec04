package config

import "fmt"

// ErrRead the configuration file could not be read
func ErrRead(path string, err error) error {
	return fmt.Errorf("config: read %s: %w", path, err)
}

// ErrParse the configuration file could not be decoded
func ErrParse(path string, err error) error {
	return fmt.Errorf("config: parse %s: %w", path, err)
}

// ErrEnv the .env file could not be loaded
func ErrEnv(path string, err error) error {
	return fmt.Errorf("config: load env file %s: %w", path, err)
}

// ErrInvalid a section failed validation
func ErrInvalid(err error) error {
	return fmt.Errorf("config: invalid configuration: %w", err)
}
