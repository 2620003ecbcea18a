// Package redisstore keeps the relay's ephemeral state in Redis: rate limit
// windows, webhook token results, IMAP ingest bookkeeping, activity counters
// and runtime IMAP settings.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
	now    func() time.Time
}

func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewFromClient(client), nil
}

func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RateLimit counts one hit for key in a fixed window and reports whether
// the caller is still within limit.
func (s *Store) RateLimit(ctx context.Context, key string, action string, limit int, window time.Duration) (bool, error) {
	k := fmt.Sprintf("ratelimit:%s:%s", action, key)

	n, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, k, window).Err(); err != nil {
			return false, err
		}
	}

	return n <= int64(limit), nil
}

func tokenKey(token string) string {
	return "webhook:token:" + token
}

// RecordToken stores the result of a handled webhook. The first result
// recorded for a token wins.
func (s *Store) RecordToken(ctx context.Context, token, result string, ttl time.Duration) error {
	return s.client.SetNX(ctx, tokenKey(token), result, ttl).Err()
}

// TokenResult returns what RecordToken stored for token, if it has not
// expired.
func (s *Store) TokenResult(ctx context.Context, token string) (string, bool, error) {
	val, err := s.client.Get(ctx, tokenKey(token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func uidKey(folder string, uid uint32) string {
	return fmt.Sprintf("imap:uid:%s:%d", folder, uid)
}

func (s *Store) IsUIDProcessed(ctx context.Context, folder string, uid uint32) (bool, error) {
	exists, err := s.client.Exists(ctx, uidKey(folder, uid)).Result()
	return exists > 0, err
}

func (s *Store) MarkUIDProcessed(ctx context.Context, folder string, uid uint32, ttl time.Duration) error {
	return s.client.Set(ctx, uidKey(folder, uid), "1", ttl).Err()
}

func (s *Store) GetFolderLastUID(ctx context.Context, folder string) (uint32, error) {
	key := fmt.Sprintf("imap:last_uid:%s", folder)
	val, err := s.client.Get(ctx, key).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint32(val), nil
}

func (s *Store) SetFolderLastUID(ctx context.Context, folder string, uid uint32) error {
	key := fmt.Sprintf("imap:last_uid:%s", folder)
	return s.client.Set(ctx, key, uid, 0).Err()
}
