package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "supportdesk:session:"

// RedisStore keeps each history in a Redis list.
type RedisStore struct {
	rdb *goredis.Client
	cfg Config
}

func NewRedisStore(rdb *goredis.Client, cfg Config) *RedisStore {
	return &RedisStore{rdb: rdb, cfg: cfg.withDefaults()}
}

func key(userID string) string {
	return keyPrefix + userID
}

func (s *RedisStore) History(ctx context.Context, userID string, n int) ([]domain.ChatMessage, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := s.rdb.LRange(ctx, key(userID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m domain.ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Append pushes messages, trims the list to MaxMessages and refreshes the TTL
// in one pipeline.
func (s *RedisStore) Append(ctx context.Context, userID string, msgs ...domain.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, len(msgs))
	for i, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values[i] = raw
	}

	k := key(userID)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, k, values...)
		p.LTrim(ctx, k, int64(-s.cfg.MaxMessages), -1)
		p.Expire(ctx, k, s.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, key(userID)).Err()
}
