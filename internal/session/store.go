package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is the persisted form of a session. It never contains credentials.
type Record struct {
	AccountID    string    `json:"account_id"`
	AuthToken    string    `json:"auth_token"`
	FeedToken    string    `json:"feed_token"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists session tokens so a restarted process can reuse them.
type Store interface {
	Save(ctx context.Context, rec Record, ttl time.Duration) error
	Load(ctx context.Context, accountID string) (Record, bool, error)
	Delete(ctx context.Context, accountID string) error
}

// Compile-time check to ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(accountID string) string {
	return r.prefix + accountID
}

// Save writes rec with the given expiry; ttl <= 0 keeps it until deleted.
func (r *RedisStore) Save(ctx context.Context, rec Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(rec.AccountID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", rec.AccountID, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, accountID string) (Record, bool, error) {
	payload, err := r.client.Get(ctx, r.key(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load session %s: %w", accountID, err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode session %s: %w", accountID, err)
	}
	return rec, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, accountID string) error {
	if err := r.client.Del(ctx, r.key(accountID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", accountID, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
