package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"antarin/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const draftPrefix = "antarin:draft:"

// DraftStore keeps per-customer draft sessions in redis with a TTL.
// Sessions are keyed by canonical phone; writes are last-write-wins, which
// is safe because no two handlers ever share a customer phone. An abandoned
// draft simply expires.
type DraftStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewDraftStore creates a redis-backed draft session store.
func NewDraftStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *DraftStore {
	return &DraftStore{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "draft-store").Logger(),
	}
}

func (s *DraftStore) key(phone string) string {
	return draftPrefix + phone
}

// Get returns the customer's draft session, or nil when none exists.
func (s *DraftStore) Get(ctx context.Context, phone string) (*model.DraftOrder, error) {
	data, err := s.client.Get(ctx, s.key(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get draft session: %w", err)
	}

	var draft model.DraftOrder
	if err := json.Unmarshal(data, &draft); err != nil {
		// A corrupt session is dropped rather than wedging the customer.
		s.logger.Warn().Err(err).Str("phone", phone).Msg("dropping unreadable draft session")
		s.client.Del(ctx, s.key(phone))
		return nil, nil
	}

	return &draft, nil
}

// Save persists the draft and refreshes its TTL.
func (s *DraftStore) Save(ctx context.Context, draft *model.DraftOrder) error {
	draft.UpdatedAt = time.Now()

	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(draft.CustomerPhone), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft session: %w", err)
	}

	s.logger.Debug().Str("phone", draft.CustomerPhone).Msg("draft session saved")
	return nil
}

// Delete removes the customer's draft session. Deleting a session that does
// not exist is a no-op.
func (s *DraftStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, s.key(phone)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft session: %w", err)
	}
	return nil
}
