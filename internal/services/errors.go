package services

import (
	"errors"
	"net/http"
)

// Error taxonomy shared by every service. NotFound deliberately covers both
// "does not exist" and "exists but belongs to another user" so existence
// never leaks across owners.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
)

// statusForError maps a service error onto an HTTP status code.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
