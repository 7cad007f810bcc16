package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore is a Redis-based implementation of SessionStore.
// Suitable for distributed deployments. Snapshots are stored as JSON strings
// with a set indexing every session id.
type RedisSessionStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(config StoreConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisSessionStoreWithClient(client, config.Redis.KeyPrefix)
	store.ownClient = true
	return store, nil
}

// NewRedisSessionStoreWithClient wraps an existing client. The caller keeps
// ownership of the client.
func NewRedisSessionStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisSessionStore {
	if keyPrefix == "" {
		keyPrefix = "stageflow:"
	}
	return &RedisSessionStore{
		client:    client,
		keyPrefix: keyPrefix + "session:",
	}
}

// dataKey returns the Redis key for a session snapshot
func (s *RedisSessionStore) dataKey(sessionID string) string {
	return s.keyPrefix + "data:" + sessionID
}

// indexKey returns the Redis key for the session id index
func (s *RedisSessionStore) indexKey() string {
	return s.keyPrefix + "all"
}

func (s *RedisSessionStore) Save(ctx context.Context, sessionID string, snap *Snapshot) error {
	if err := validateSnapshot(sessionID, snap); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(sessionID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.dataKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &snap, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.dataKey(sessionID))
	pipe.SRem(ctx, s.indexKey(), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the client if the store created it
func (s *RedisSessionStore) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

// Ping checks if the store is healthy
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
