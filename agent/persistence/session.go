package persistence

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/stageflow/types"
)

// Session is the mutable key/value state shared by every agent in one run.
// Keys prefixed with "temp:" live in a separate table that ClearTemp wipes
// and Serialize skips. Concurrent writers to the same key are last-write-wins.
type Session struct {
	id string

	mu    sync.RWMutex
	stage types.Stage
	topic string
	data  map[string]any
	temp  map[string]any
}

// NewSession creates an empty session at the first research stage.
func NewSession(id string) *Session {
	return &Session{
		id:    id,
		stage: types.StageIdeaBuilding,
		data:  make(map[string]any),
		temp:  make(map[string]any),
	}
}

// RestoreSession rebuilds a live session from a snapshot.
func RestoreSession(id string, snap *Snapshot) *Session {
	s := NewSession(id)
	if snap == nil {
		return s
	}
	if snap.CurrentStage != "" {
		s.stage = snap.CurrentStage
	}
	s.topic = snap.ResearchTopic
	for k, v := range snap.Data {
		s.data[k] = v
	}
	return s
}

// SessionID returns the stable session identifier.
func (s *Session) SessionID() string { return s.id }

func (s *Session) CurrentStage() types.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

func (s *Session) SetCurrentStage(stage types.Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

func (s *Session) ResearchTopic() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topic
}

func (s *Session) SetResearchTopic(topic string) {
	s.mu.Lock()
	s.topic = topic
	s.mu.Unlock()
}

// route 根据 temp: 前缀选择存储表并返回去掉前缀后的键
func (s *Session) route(key string) (map[string]any, string) {
	if strings.HasPrefix(key, types.TempPrefix) {
		return s.temp, key[len(types.TempPrefix):]
	}
	return s.data, key
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, k := s.route(key)
	v, ok := m[k]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (s *Session) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, k := s.route(key)
	m[k] = value
}

func (s *Session) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (s *Session) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, k := s.route(key)
	_, ok := m[k]
	delete(m, k)
	return ok
}

// Keys returns the persistent keys in sorted order. Temp keys are excluded.
func (s *Session) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// ClearTemp drops all turn-scoped values.
func (s *Session) ClearTemp() {
	s.mu.Lock()
	s.temp = make(map[string]any)
	s.mu.Unlock()
}

// Serialize captures the persistent state with the current timestamp.
func (s *Session) Serialize() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := make(map[string]any, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	return &Snapshot{
		SessionID:     s.id,
		CurrentStage:  s.stage,
		ResearchTopic: s.topic,
		Data:          data,
		Timestamp:     time.Now().UnixMilli(),
	}
}
