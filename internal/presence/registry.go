package presence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const onlineKey = "antarin:couriers:online"

// CourierSource is the durable side of the registry: the courier table.
type CourierSource interface {
	// ListReadyIDs returns the ids of couriers that count as online in
	// the durable store.
	ListReadyIDs(ctx context.Context) ([]int64, error)
}

// Registry tracks which couriers are currently reachable. The redis set is
// only a cache over the courier table; when the cache is empty the registry
// repopulates it from the durable store, so an empty cache is never
// mistaken for "nobody online".
type Registry struct {
	client *redis.Client
	source CourierSource
	logger zerolog.Logger
}

// NewRegistry creates a presence registry over the given cache and source.
func NewRegistry(client *redis.Client, source CourierSource, logger zerolog.Logger) *Registry {
	return &Registry{
		client: client,
		source: source,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// MarkOnline adds the courier to the online set.
func (r *Registry) MarkOnline(ctx context.Context, courierID int64) error {
	if err := r.client.SAdd(ctx, onlineKey, courierID).Err(); err != nil {
		return fmt.Errorf("failed to mark courier online: %w", err)
	}
	r.logger.Debug().Int64("courier_id", courierID).Msg("courier marked online")
	return nil
}

// MarkOffline removes the courier from the online set.
func (r *Registry) MarkOffline(ctx context.Context, courierID int64) error {
	if err := r.client.SRem(ctx, onlineKey, courierID).Err(); err != nil {
		return fmt.Errorf("failed to mark courier offline: %w", err)
	}
	r.logger.Debug().Int64("courier_id", courierID).Msg("courier marked offline")
	return nil
}

// ListOnline returns the set of online courier ids. An empty or unreachable
// cache falls back to the durable store and repopulates the cache.
func (r *Registry) ListOnline(ctx context.Context) (map[int64]bool, error) {
	members, err := r.client.SMembers(ctx, onlineKey).Result()
	if err != nil {
		r.logger.Warn().Err(err).Msg("presence cache unreachable, falling back to durable store")
		members = nil
	}

	if len(members) > 0 {
		online := make(map[int64]bool, len(members))
		for _, m := range members {
			id, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			online[id] = true
		}
		return online, nil
	}

	ids, err := r.source.ListReadyIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list online couriers from durable store: %w", err)
	}

	online := make(map[int64]bool, len(ids))
	for _, id := range ids {
		online[id] = true
		// Best effort repopulation; the durable store already answered.
		if err := r.client.SAdd(ctx, onlineKey, id).Err(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to repopulate presence cache")
			break
		}
	}

	r.logger.Debug().Int("count", len(online)).Msg("presence cache repopulated from durable store")
	return online, nil
}
