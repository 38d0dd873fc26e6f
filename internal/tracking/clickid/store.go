// Package clickid implements the persisted-identifier provider over Redis.
//
// A visitor can land on the campaign page (where the ctwa_clid lives in the
// query string), browse to another page, and only then tap the WhatsApp
// button. The client echoes a stable visitor id on every capture call; this
// store keeps the click ids seen for that visitor so the extractor can
// recover them on later pages.
package clickid

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"wa_attribution_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "clickid:"

// Store persists click identifiers keyed per visitor.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis using the configured URL. Returns nil when Redis is
// not configured; the extractor treats a nil store as "no fallback".
func New(cfg config.ClickIDConfig) (*Store, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Store{
		client: redis.NewClient(opt),
		ttl:    cfg.GetClickIDTTL(),
	}, nil
}

// NewWithClient wraps an existing Redis client (tests).
func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Get returns the stored value for key, or "" when absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s == nil || s.client == nil {
		return "", nil
	}

	value, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores the value under key with the configured TTL.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, keyPrefix+key, value, s.ttl).Err()
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
