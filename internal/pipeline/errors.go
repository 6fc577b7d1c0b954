package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("pipeline: invalid config")
	// ErrNotRunning is returned by Run before start or after Close.
	ErrNotRunning = errors.New("pipeline: not running")
	// ErrSourceExhausted means the record source could not supply a record.
	ErrSourceExhausted = errors.New("pipeline: record source exhausted")
)

// ConfigError names the offending field of a rejected Config.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline: invalid config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// BatchError reports a slot that kept failing after all retries.
type BatchError struct {
	Seq      uint64
	Slot     int
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("pipeline: batch %d slot %d failed after %d attempts: %v", e.Seq, e.Slot, e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
