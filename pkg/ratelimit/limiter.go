// Package ratelimit enforces per-credential request-per-minute overrides.
package ratelimit

import "context"

// Limiter admits or denies one request for key at the given requests/minute
// budget. A non-positive perMinute always admits.
type Limiter interface {
	Allow(ctx context.Context, key string, perMinute int) (bool, error)
}

// Unlimited admits every request.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(context.Context, string, int) (bool, error) {
	return true, nil
}
