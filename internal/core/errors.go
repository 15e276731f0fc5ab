package core

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrInvalidPolicyState = errors.New("invalid policy state")
	ErrStatusConflict     = errors.New("status changed concurrently")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden operation")
	ErrNotConfigured      = errors.New("feature not configured")
)
