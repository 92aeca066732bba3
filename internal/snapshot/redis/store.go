// Package redis persists the last-good unified snapshot per category so the
// read path can fall back to it when every upstream platform is offline.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

const (
	snapshotKeyPrefix = "marketfuse:snapshot:"
	categorySetKey    = "marketfuse:snapshot:categories"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Retention bounds how long a stale snapshot stays loadable. Zero
	// means snapshots never expire.
	Retention time.Duration
}

// envelope wraps a category's markets with the time they were produced so
// the fallback path can mark responses as stale.
type envelope struct {
	Category string                 `json:"category"`
	SavedAt  time.Time              `json:"saved_at"`
	Markets  []domain.UnifiedMarket `json:"markets"`
}

// Store implements domain.SnapshotStore on Redis.
type Store struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

var _ domain.SnapshotStore = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("snapshot: redis ping: %w", err)
	}
	return &Store{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "snapshot")),
	}, nil
}

// SaveSnapshot stores the category's unified markets as the new last-good
// snapshot, replacing any previous one.
func (s *Store) SaveSnapshot(ctx context.Context, category string, markets []domain.UnifiedMarket) error {
	env := envelope{
		Category: category,
		SavedAt:  time.Now().UTC(),
		Markets:  markets,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("snapshot: marshal category %q: %w", category, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotKeyPrefix+category, raw, s.cfg.Retention)
	pipe.SAdd(ctx, categorySetKey, category)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot: save category %q: %w", category, err)
	}
	return nil
}

// LoadSnapshot returns the last-good markets for the category and the time
// they were saved. Returns domain.ErrNoSnapshot when no snapshot has ever
// been produced for the category.
func (s *Store) LoadSnapshot(ctx context.Context, category string) ([]domain.UnifiedMarket, time.Time, error) {
	raw, err := s.client.Get(ctx, snapshotKeyPrefix+category).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot: load category %q: %w", category, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot: decode category %q: %w", category, err)
	}
	return env.Markets, env.SavedAt, nil
}

// Categories lists every category a snapshot has been saved for.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.client.SMembers(ctx, categorySetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot: list categories: %w", err)
	}
	return cats, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
