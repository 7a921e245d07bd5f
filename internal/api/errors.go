package api

import "errors"

// Configuration errors
var (
	// ErrInvalidPort indicates the port number is out of valid range
	ErrInvalidPort = errors.New("port must be between 0 and 65535")

	// ErrInvalidRateLimit indicates a non-positive write rate or burst
	ErrInvalidRateLimit = errors.New("rate limit and burst must be positive")

	// ErrNoUsers indicates no API tokens were configured
	ErrNoUsers = errors.New("at least one API token is required")
)

// Request errors
var (
	// ErrMissingToken indicates a request without a bearer token
	ErrMissingToken = errors.New("missing bearer token")

	// ErrUnknownToken indicates a token that maps to no user
	ErrUnknownToken = errors.New("unknown token")

	// ErrRateLimited indicates the client has exceeded the write rate limit
	ErrRateLimited = errors.New("rate limit exceeded, please try again later")

	// ErrUnknownType indicates an unsupported ?type= or body type
	ErrUnknownType = errors.New("unknown resource type")

	// ErrBadRequest indicates a malformed query or body
	ErrBadRequest = errors.New("bad request")
)
