package service

import "errors"

// ErrValidation marks a submission missing required data.
var ErrValidation = errors.New("validation failed")

// RequestError carries the message returned to the webhook sender while
// keeping the underlying kind reachable through errors.Is.
type RequestError struct {
	Msg string
	Err error
}

func (e *RequestError) Error() string { return e.Msg }

func (e *RequestError) Unwrap() error { return e.Err }

func reject(msg string, err error) error {
	return &RequestError{Msg: msg, Err: err}
}
