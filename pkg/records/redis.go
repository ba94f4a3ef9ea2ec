package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "nutrilog:records:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "nutrilog:records:").
	Prefix string
}

// RedisStore keeps each record in a hash and indexes live records per
// collection in a sorted set scored by date.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordKey(collection, id string) string {
	return s.prefix + "record:" + collection + ":" + id
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + "index:" + collection
}

func (s *RedisStore) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func dateScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, collection string, rec Record) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordKey(collection, id), map[string]any{
		"name":       rec.Name,
		"calories":   rec.Calories,
		"protein":    rec.Protein,
		"fat":        rec.Fat,
		"carbs":      rec.Carbs,
		"user":       rec.User,
		"note":       rec.Note,
		"date":       rec.Date.Format(time.RFC3339),
		"archived":   "0",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	pipe.ZAdd(ctx, s.indexKey(collection), redis.Z{Score: dateScore(rec.Date), Member: id})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to create record in %s: %w", collection, err)
	}
	return id, nil
}

// QueryBefore implements Store. Archived records are not in the index.
func (s *RedisStore) QueryBefore(ctx context.Context, collection string, before time.Time) ([]Page, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	entries, err := s.client.ZRangeByScoreWithScores(ctx, s.indexKey(collection), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(dateScore(before), 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	pages := make([]Page, 0, len(entries))
	for _, z := range entries {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		pages = append(pages, Page{
			ID:         id,
			Collection: collection,
			Date:       time.UnixMilli(int64(z.Score)),
		})
	}
	return pages, nil
}

// Archive implements Store.
func (s *RedisStore) Archive(ctx context.Context, page Page) error {
	if err := s.check(); err != nil {
		return err
	}

	key := s.recordKey(page.Collection, page.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to archive %s/%s: %w", page.Collection, page.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.indexKey(page.Collection), page.ID)
	if exists > 0 {
		pipe.HSet(ctx, key, "archived", "1", "archived_at", time.Now().UTC().Format(time.RFC3339))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive %s/%s: %w", page.Collection, page.ID, err)
	}
	return nil
}

// load reads a record by ID. Archived reports whether it was swept.
func (s *RedisStore) load(ctx context.Context, collection, id string) (rec Record, archived bool, err error) {
	if err := s.check(); err != nil {
		return Record{}, false, err
	}

	vals, err := s.client.HGetAll(ctx, s.recordKey(collection, id)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
	}
	if len(vals) == 0 {
		return Record{}, false, fmt.Errorf("record %s/%s not found", collection, id)
	}

	rec = Record{
		Name: vals["name"],
		User: vals["user"],
		Note: vals["note"],
	}
	rec.Calories, _ = strconv.ParseFloat(vals["calories"], 64)
	rec.Protein, _ = strconv.ParseFloat(vals["protein"], 64)
	rec.Fat, _ = strconv.ParseFloat(vals["fat"], 64)
	rec.Carbs, _ = strconv.ParseFloat(vals["carbs"], 64)
	if rec.Date, err = time.Parse(time.RFC3339, vals["date"]); err != nil {
		return Record{}, false, fmt.Errorf("invalid date on %s/%s: %w", collection, id, err)
	}
	return rec, vals["archived"] == "1", nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}
