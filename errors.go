package dispatch

import (
	"errors"
)

// Predefined sentinel errors for common cases.
var (
	// ErrNoActiveServers indicates the tenant has no active sending
	// servers configured.
	ErrNoActiveServers = errors.New("no active sending servers configured")

	// ErrAllServersRateLimited indicates every eligible server has
	// reached its hourly or daily quota.
	ErrAllServersRateLimited = errors.New("all sending servers are rate limited")

	// ErrNoCandidates indicates a selection was attempted over an empty
	// candidate list. This is a programming error on the caller's side;
	// registry results must be checked first.
	ErrNoCandidates = errors.New("cannot select from an empty candidate list")

	// ErrUnknownProvider indicates no adapter is registered for a
	// server's provider type. This is a deployment error, never retried.
	ErrUnknownProvider = errors.New("unknown provider type")

	// ErrUnknownStrategy indicates an unsupported load-balancing strategy.
	ErrUnknownStrategy = errors.New("unknown load balancing strategy")
)

// User-facing failure texts carried in SendResult.Error. Callers and tests
// match on these, so they are fixed strings.
const (
	msgNoActiveServers = "No active sending servers configured"
	msgAllRateLimited  = "All sending servers are rate limited"
)
