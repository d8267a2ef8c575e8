package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
)

const keyPrefix = "reminder:sent:"

type sendLogStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewSendLogStore keeps fired keys in redis with a TTL of retention, so
// expiry replaces the retention sweep. The store is durable only as far as
// the redis persistence config allows.
func NewSendLogStore(client *redis.Client, retention time.Duration) repository.SendLogRepository {
	return &sendLogStore{client: client, retention: retention}
}

func redisKey(k model.SendKey) string {
	return keyPrefix + k.String()
}

func (s *sendLogStore) Fired(ctx context.Context, keys []model.SendKey) (map[string]bool, error) {
	fired := make(map[string]bool)
	if len(keys) == 0 {
		return fired, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Exists(ctx, redisKey(k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read send log: %w", err)
	}

	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			fired[keys[i].String()] = true
		}
	}
	return fired, nil
}

func (s *sendLogStore) Claim(ctx context.Context, key model.SendKey) (bool, error) {
	ok, err := s.client.SetNX(ctx, redisKey(key), "0", s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim send: %w", err)
	}
	return ok, nil
}

func (s *sendLogStore) Release(ctx context.Context, key model.SendKey) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release send: %w", err)
	}
	return nil
}

// MarkFired overwrites the claimed value and keeps the claim's TTL.
func (s *sendLogStore) MarkFired(ctx context.Context, key model.SendKey, recipients int) error {
	val := strconv.Itoa(recipients)
	updated, err := s.client.SetXX(ctx, redisKey(key), val, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	if updated {
		return nil
	}
	if err := s.client.SetNX(ctx, redisKey(key), val, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}

// DeleteBefore is a no-op; keys expire on their own.
func (s *sendLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
