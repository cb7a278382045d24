package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const notifyPrefix = "antarin:notified:"

// NotifyGuard deduplicates one-shot customer notifications ("no courier
// available", "order needs a location") so schedulers re-running over the
// same order never spam the customer. SETNX with a long TTL makes the first
// caller win.
type NotifyGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewNotifyGuard creates a redis-backed notification deduplicator.
func NewNotifyGuard(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *NotifyGuard {
	return &NotifyGuard{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "notify-guard").Logger(),
	}
}

// First reports whether this is the first time the (kind, ref) pair is
// seen within the TTL window. Only the first caller gets true.
func (g *NotifyGuard) First(ctx context.Context, kind, ref string) (bool, error) {
	key := notifyPrefix + kind + ":" + ref

	first, err := g.client.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set notification flag: %w", err)
	}

	if !first {
		g.logger.Debug().Str("kind", kind).Str("ref", ref).Msg("notification suppressed as duplicate")
	}
	return first, nil
}
