package auth

import "errors"

var (
	// ErrInvalidCredentials indicates a known account with a mismatched password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidRole        = errors.New("invalid role")
	ErrMissingFields      = errors.New("required fields missing")
)
