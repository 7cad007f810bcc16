package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/BaSui01/stageflow/types"
)

// Common errors
var (
	ErrNotFound         = errors.New("session not found")
	ErrStoreClosed      = errors.New("store is closed")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFile     StoreType = "file"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
)

// Snapshot is the serialized form of a Session. Timestamp is Unix milliseconds.
type Snapshot struct {
	SessionID     string         `json:"sessionId"`
	CurrentStage  types.Stage    `json:"currentStage"`
	ResearchTopic string         `json:"researchTopic"`
	Data          map[string]any `json:"data"`
	Timestamp     int64          `json:"timestamp"`
}

// SessionStore persists session snapshots. Load returns (nil, nil) when no
// snapshot exists for the id.
type SessionStore interface {
	Save(ctx context.Context, sessionID string, snap *Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)

	// Close closes the store and releases resources
	Close() error
	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the data directory for file-based storage. Sessions are
	// written under BaseDir/sessions.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// Table overrides the table name used by the database backend
	Table string `json:"table" yaml:"table"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data",
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "stageflow:",
		},
		Table: "stageflow_sessions",
	}
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeSessionID replaces every character outside [A-Za-z0-9_-] with '_'
// so the id can be used as a single path or key component.
func SanitizeSessionID(id string) (string, error) {
	if id == "" {
		return "", ErrInvalidSessionID
	}
	return unsafeIDChars.ReplaceAllString(id, "_"), nil
}

func validateSnapshot(sessionID string, snap *Snapshot) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if snap == nil {
		return fmt.Errorf("nil snapshot for session %s", sessionID)
	}
	return nil
}
