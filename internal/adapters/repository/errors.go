package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("project not found")
	ErrConflict       = errors.New("project scores changed concurrently")
	ErrUnknownDriver  = errors.New("unknown store driver")
	ErrUnknownColumn  = errors.New("unknown category column")
	ErrMissingSetting = errors.New("missing store setting")
)

// StorageError carries a failure reported by the backing store. Its message is
// the store's own message so callers can pass it through unchanged.
type StorageError struct {
	Op     string
	Status int
	Err    error
}

func (e *StorageError) Error() string { return e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func storageStatusErr(op string, status int, msg string) error {
	return &StorageError{Op: op, Status: status, Err: fmt.Errorf("%s", msg)}
}
