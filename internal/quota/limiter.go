// Package quota enforces the anonymous creation quota: a per-IP counter in a
// TTL'd key-value store, bounding how many links an unauthenticated client can
// create per window.
package quota

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CounterStore is the windowed counter backend (Redis in production).
type CounterStore interface {
	// Count returns the current count for a key, zero when absent.
	Count(ctx context.Context, key string) (int64, error)
	// IncrWithTTL increments a key, setting the TTL on first increment,
	// and returns the new count.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

const keyPrefix = "anon_url_count:"

// Limiter tracks anonymous link creations per client identity.
//
// Allow-then-Record is not atomic: concurrent requests from one IP can slip a
// few creations past the limit. The quota is an abuse deterrent, not a hard
// security boundary, so the drift is accepted.
type Limiter struct {
	store  CounterStore
	limit  int64
	window time.Duration
	log    *zap.Logger
}

// NewLimiter creates a quota limiter allowing limit creations per window.
func NewLimiter(store CounterStore, limit int, window time.Duration, log *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limit:  int64(limit),
		window: window,
		log:    log,
	}
}

// Allow reports whether the identity is still under its creation quota.
func (l *Limiter) Allow(ctx context.Context, identity string) (bool, error) {
	count, err := l.store.Count(ctx, keyPrefix+identity)
	if err != nil {
		return false, err
	}
	return count < l.limit, nil
}

// Record counts one creation against the identity, starting a new window if
// none is open.
func (l *Limiter) Record(ctx context.Context, identity string) error {
	count, err := l.store.IncrWithTTL(ctx, keyPrefix+identity, l.window)
	if err != nil {
		return err
	}
	if count > l.limit {
		l.log.Warn("anonymous quota exceeded after record",
			zap.String("identity", identity),
			zap.Int64("count", count))
	}
	return nil
}

// ClientIdentity extracts the client identity for quota accounting: the first
// entry of the X-Forwarded-For header when present, else the peer address
// without its port.
func ClientIdentity(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
