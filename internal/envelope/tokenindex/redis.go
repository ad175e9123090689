// Package tokenindex caches the token→envelope-id mapping in Redis so the
// public signing surface resolves tokens without hitting the primary store.
// The index is an optimization only: a miss falls through to the store, and
// correctness never depends on the cache.
package tokenindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "carebridge/pkg/domain"
)

const keyPrefix = "carebridge:signing-token:"

// Redis is the token index. Entries expire with the envelope deadline and
// are removed eagerly on rotation or terminal transition.
type Redis struct {
	client *redis.Client
}

func New(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Put records token→envelope until expiresAt.
func (r *Redis) Put(ctx context.Context, token string, envelopeID id.EnvelopeID, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, keyPrefix+token, envelopeID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("index signing token: %w", err)
	}
	return nil
}

// Lookup resolves a token. ok=false means the index has no answer and the
// caller should consult the store.
func (r *Redis) Lookup(ctx context.Context, token string) (id.EnvelopeID, bool, error) {
	val, err := r.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return id.EnvelopeID{}, false, nil
	}
	if err != nil {
		return id.EnvelopeID{}, false, fmt.Errorf("lookup signing token: %w", err)
	}
	envelopeID, err := id.ParseEnvelopeID(val)
	if err != nil {
		return id.EnvelopeID{}, false, fmt.Errorf("corrupt token index entry: %w", err)
	}
	return envelopeID, true, nil
}

// Invalidate drops a token from the index.
func (r *Redis) Invalidate(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("invalidate signing token: %w", err)
	}
	return nil
}
