// Package sitesettings serves site-wide presentation state (announcement
// banner, feature flags) from Redis. Reads are deduplicated with
// singleflight and cached in-process for a few seconds; the site renders
// these on every page view, and Redis should not see that fan-out.
package sitesettings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	keyBanner = "beacon:settings:banner"
	keyFlags  = "beacon:settings:flags"

	cacheTTL = 5 * time.Second
)

// Banner is the site-wide announcement.
type Banner struct {
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	Variant string `json:"variant,omitempty"`
	Active  bool   `json:"active"`
}

// Store reads and writes site settings.
type Store struct {
	client *redis.Client
	group  singleflight.Group

	mu     sync.Mutex
	cached map[string]cachedValue
}

type cachedValue struct {
	raw       string
	expiresAt time.Time
}

// New creates the store and verifies connectivity.
func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("[SiteSettings] Connected to redis", "addr", addr, "db", db)
	return &Store{client: client, cached: make(map[string]cachedValue)}, nil
}

// NewWithClient wraps an existing client, for tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, cached: make(map[string]cachedValue)}
}

// Ping reports redis liveness for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// get fetches a key through the cache and singleflight. Missing keys return
// redis.Nil, which callers translate to their default.
func (s *Store) get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	if cv, ok := s.cached[key]; ok && time.Now().Before(cv.expiresAt) {
		s.mu.Unlock()
		return cv.raw, nil
	}
	s.mu.Unlock()

	raw, err, _ := s.group.Do(key, func() (interface{}, error) {
		val, err := s.client.Get(ctx, key).Result()
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.cached[key] = cachedValue{raw: val, expiresAt: time.Now().Add(cacheTTL)}
		s.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return raw.(string), nil
}

func (s *Store) invalidate(keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.cached, key)
	}
	s.mu.Unlock()
}

// GetBanner returns the current banner, or an inactive zero banner when none
// is set.
func (s *Store) GetBanner(ctx context.Context) (Banner, error) {
	raw, err := s.get(ctx, keyBanner)
	if errors.Is(err, redis.Nil) {
		return Banner{}, nil
	}
	if err != nil {
		return Banner{}, fmt.Errorf("failed to read banner: %w", err)
	}
	var b Banner
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return Banner{}, fmt.Errorf("banner settings corrupted: %w", err)
	}
	return b, nil
}

// SetBanner replaces the banner.
func (s *Store) SetBanner(ctx context.Context, b Banner) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to serialize banner: %w", err)
	}
	if err := s.client.Set(ctx, keyBanner, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write banner: %w", err)
	}
	s.invalidate(keyBanner)
	return nil
}

// DeleteBanner removes the banner; readers fall back to the inactive default.
func (s *Store) DeleteBanner(ctx context.Context) error {
	if err := s.client.Del(ctx, keyBanner).Err(); err != nil {
		return fmt.Errorf("failed to delete banner: %w", err)
	}
	s.invalidate(keyBanner)
	return nil
}

// GetFlags returns the feature flag map; missing key means no flags.
func (s *Store) GetFlags(ctx context.Context) (map[string]bool, error) {
	raw, err := s.get(ctx, keyFlags)
	if errors.Is(err, redis.Nil) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feature flags: %w", err)
	}
	flags := make(map[string]bool)
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return nil, fmt.Errorf("feature flag settings corrupted: %w", err)
	}
	return flags, nil
}

// SetFlag flips one feature flag.
func (s *Store) SetFlag(ctx context.Context, name string, enabled bool) error {
	flags, err := s.GetFlags(ctx)
	if err != nil {
		return err
	}
	flags[name] = enabled
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to serialize feature flags: %w", err)
	}
	if err := s.client.Set(ctx, keyFlags, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write feature flags: %w", err)
	}
	s.invalidate(keyFlags)
	return nil
}

// Refresh drops the in-process cache so the next read hits Redis. The
// settings webhook calls this after an upstream edit.
func (s *Store) Refresh() {
	s.invalidate(keyBanner, keyFlags)
	slog.Info("[SiteSettings] Cache refreshed")
}
