package api

import (
	"errors"
	"net/http"

	"github.com/okian/tallyscore/internal/adapters/repository"
	service "github.com/okian/tallyscore/internal/app"
	"github.com/okian/tallyscore/internal/domain/category"
	"github.com/okian/tallyscore/internal/domain/identity"
)

// Sentinel kinds for API errors.
var (
	ErrInFlight   = errors.New("delivery is already being processed")
	ErrBodyTooBig = errors.New("request body too large")
)

// statusFor maps an error kind to its HTTP status. Anything unrecognised,
// undecodable bodies included, is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, identity.ErrIdentityUnresolved),
		errors.Is(err, category.ErrUnknownForm):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrBodyTooBig):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
