// Package common defines shared constants and sentinel errors used across
// the authsync server. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound         = errors.New("not found")
	ErrDuplicateAccount = errors.New("account already exists")

	// Client-fixable input errors.
	ErrValidation = errors.New("validation error")

	// Authentication errors. ErrInvalidCredentials never says which factor failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// Startup misconfiguration, fatal.
	ErrConfiguration = errors.New("configuration fault")

	// Dependency errors. ErrTransient marks failures worth another attempt.
	ErrInternal  = errors.New("internal error")
	ErrTransient = errors.New("transient dependency failure")

	// Event payload that can never be applied.
	ErrMalformedMessage = errors.New("malformed message")
)
