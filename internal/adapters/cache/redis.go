package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisIdempotencyStore keeps the claim idempotency markers in Redis so the
// first-writer-wins reservation is a single SETNX even when the API runs with
// more than one replica.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

type idempotencyEntry struct {
	RequestHash  string `json:"request_hash"`
	ResponseCode int    `json:"response_code"`
	ResponseBody string `json:"response_body,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

func (s *RedisIdempotencyStore) key(key string) string { return "claims:idem:" + key }

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string, _ time.Time) (*ports.IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry idempotencyEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, err
	}
	out := ports.IdempotencyRecord{
		Key:          key,
		RequestHash:  entry.RequestHash,
		ResponseCode: entry.ResponseCode,
		ExpiresAt:    time.Unix(entry.ExpiresAt, 0).UTC(),
	}
	if entry.ResponseBody != "" {
		out.ResponseBody = []byte(entry.ResponseBody)
	}
	return &out, nil
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, requestHash string, now, expiresAt time.Time) error {
	entry := idempotencyEntry{RequestHash: requestHash, ExpiresAt: expiresAt.Unix()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// Redis evicts the marker itself, so expired keys never conflict here.
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := s.client.SetNX(ctx, s.key(key), string(raw), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrConflict
	}
	return nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	redisKey := s.key(key)
	raw, err := s.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	var entry idempotencyEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return err
	}
	entry.ResponseCode = responseCode
	entry.ResponseBody = string(responseBody)
	updated, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// KEEPTTL preserves the reservation window set by Reserve.
	return s.client.Set(ctx, redisKey, string(updated), redis.KeepTTL).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	redisKey := s.key(key)
	raw, err := s.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var entry idempotencyEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return err
	}
	if entry.ResponseCode != 0 || entry.ResponseBody != "" {
		return nil
	}
	return s.client.Del(ctx, redisKey).Err()
}

// RedisEventDedupStore records processed event ids with the dedup TTL.
type RedisEventDedupStore struct {
	client *redis.Client
}

func NewRedisEventDedupStore(client *redis.Client) *RedisEventDedupStore {
	return &RedisEventDedupStore{client: client}
}

func (s *RedisEventDedupStore) key(eventID string) string { return "claims:dedup:" + eventID }

func (s *RedisEventDedupStore) IsDuplicate(ctx context.Context, eventID string, _ time.Time) (bool, error) {
	count, err := s.client.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *RedisEventDedupStore) MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.client.Set(ctx, s.key(eventID), eventType, ttl).Err()
}
