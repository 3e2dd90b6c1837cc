package services

import "errors"

// Sentinel errors mapped to HTTP status codes by the api package
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
)

// UserError carries a message safe to show to API callers. Kind is one of the
// sentinels above so callers can keep using errors.Is.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Kind }

func userError(kind error, msg string) error {
	return &UserError{Kind: kind, Message: msg}
}
