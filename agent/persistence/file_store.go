package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileSessionStore 基于文件的会话存储，每个会话一个 JSON 文件。
// 适合单节点部署，文件可直接纳入版本控制同步。
type FileSessionStore struct {
	dataDir     string
	sessionsDir string
	mu          sync.Mutex
	closed      bool
}

// NewFileSessionStore creates the sessions directory under config.BaseDir.
func NewFileSessionStore(config StoreConfig) (*FileSessionStore, error) {
	dataDir := config.BaseDir
	if dataDir == "" {
		dataDir = DefaultStoreConfig().BaseDir
	}
	sessionsDir := filepath.Join(dataDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}
	return &FileSessionStore{dataDir: dataDir, sessionsDir: sessionsDir}, nil
}

// DataDir returns the root data directory.
func (s *FileSessionStore) DataDir() string { return s.dataDir }

func (s *FileSessionStore) sessionPath(sessionID string) (string, error) {
	safe, err := SanitizeSessionID(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.sessionsDir, safe+".json"), nil
}

// Save writes the snapshot as pretty-printed JSON. 原子写: 写入临时文件后重命名
func (s *FileSessionStore) Save(ctx context.Context, sessionID string, snap *Snapshot) error {
	if err := validateSnapshot(sessionID, snap); err != nil {
		return err
	}
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := os.MkdirAll(s.sessionsDir, 0755); err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// Load reads a snapshot. A missing file means no prior session.
func (s *FileSessionStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session file %s: %w", path, err)
	}
	return &snap, nil
}

func (s *FileSessionStore) Delete(ctx context.Context, sessionID string) error {
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the (sanitized) ids of every stored session.
func (s *FileSessionStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileSessionStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *FileSessionStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.sessionsDir)
	return err
}
