package common

import "time"

const (
	// AuthorizationHeaderName carries the bearer token on inbound HTTP requests.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the token in the Authorization header.
	BearerPrefix = "Bearer "

	// DefaultTokenValidity is the lifetime of an issued access token.
	DefaultTokenValidity = 3 * time.Hour
)
