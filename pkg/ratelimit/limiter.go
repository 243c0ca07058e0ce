// Package ratelimit provides the sliding-window throttle applied to every
// data operation, keyed by (user, provider). The limit is a soft guard
// against runaway clients, not a security boundary or a billing quota.
package ratelimit

import "context"

// Limiter decides whether one more operation may proceed for a key.
// Implementations must make the check-and-increment atomic.
type Limiter interface {
	// Allow consumes one slot for key and reports whether the operation may
	// proceed. Implementations should fail open on infrastructure errors.
	Allow(ctx context.Context, key string) (bool, error)
}

// Key builds the canonical limiter key for a user and provider.
func Key(userID, provider string) string {
	return userID + ":" + provider
}
