// Package ratelimit counts issuance attempts per subject in a sliding window.
//
// Every attempt is recorded, including rejected ones, so a client that keeps
// retrying stays limited until it backs off for a full window.
package ratelimit

import (
	"context"
	"time"
)

// Result describes one recorded attempt.
type Result struct {
	Limited bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// Limiter records an attempt for key at now.
type Limiter interface {
	Hit(ctx context.Context, key string, now time.Time) (Result, error)
}

// Policy is the window and the maximum number of attempts it admits.
type Policy struct {
	Window time.Duration
	Max    int
}

// DefaultPolicy admits five attempts per minute.
var DefaultPolicy = Policy{Window: time.Minute, Max: 5}
