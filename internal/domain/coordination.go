package domain

import (
	"context"
	"time"
)

// PlayerCache sits in front of a PlayerDirectory. Get on a miss returns
// ErrNotFound.
type PlayerCache interface {
	Set(ctx context.Context, player Player) error
	Get(ctx context.Context, id string) (Player, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter admits at most limit requests per key within window. Callers
// treat an error as "allow".
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out exclusive leases shared by every replica. Acquire
// returns ErrLockHeld when another holder owns key; the lease lapses after
// ttl if unlock is never called.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus fans offer, notification and market events out to every
// process. Publish is fire-and-forget; StreamAppend keeps a durable,
// length-capped history of offer events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
