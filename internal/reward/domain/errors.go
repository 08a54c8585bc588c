package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField    = errors.New("missing_field")
	ErrDuplicateRecord = errors.New("duplicate_record")
	ErrInvalidPolicy   = errors.New("invalid_policy")
	ErrEmptyBatch      = errors.New("empty_batch")
	ErrInvalidRunID    = errors.New("invalid_run_id")
	ErrRunNotFound     = errors.New("run_not_found")
	ErrRunLocked       = errors.New("run_locked")
	ErrUnknownTable    = errors.New("unknown_table")
)

// MissingFieldError names the record and field that made a batch invalid.
type MissingFieldError struct {
	Row   int
	Key   string
	Field string
}

func (e *MissingFieldError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: row %d: %s", ErrMissingField, e.Row, e.Field)
	}
	return fmt.Sprintf("%s: row %d (%s): %s", ErrMissingField, e.Row, e.Key, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// DuplicateRecordError names the (period, creator key) pair seen twice.
type DuplicateRecordError struct {
	Period string
	Key    string
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("%s: period %q creator %q", ErrDuplicateRecord, e.Period, e.Key)
}

func (e *DuplicateRecordError) Unwrap() error { return ErrDuplicateRecord }
