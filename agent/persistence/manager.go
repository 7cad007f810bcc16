package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the live sessions of this process and their snapshots in a
// SessionStore.
type Manager struct {
	store    SessionStore
	sessions map[string]*Session
	leases   map[string]*lease
	mu       sync.RWMutex
	logger   *zap.Logger
}

// lease serializes the holders of one session id.
type lease struct {
	slot    chan struct{}
	waiters int
}

// NewManager creates a session manager. A nil store falls back to memory.
func NewManager(store SessionStore, logger *zap.Logger) *Manager {
	if store == nil {
		store = NewMemorySessionStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		sessions: make(map[string]*Session),
		leases:   make(map[string]*lease),
		logger:   logger.With(zap.String("component", "session_manager")),
	}
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() SessionStore { return m.store }

// CreateSession resumes the snapshot stored under sessionID, or starts an
// empty session. An empty sessionID gets a fresh UUID.
func (m *Manager) CreateSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var session *Session
	if snap != nil {
		session = RestoreSession(sessionID, snap)
		m.logger.Debug("session resumed",
			zap.String("session_id", sessionID),
			zap.String("stage", string(session.CurrentStage())))
	} else {
		session = NewSession(sessionID)
		m.logger.Debug("session created", zap.String("session_id", sessionID))
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()
	return session, nil
}

// Acquire gives the caller exclusive use of a session until release is
// called. A second Acquire on the same id blocks until the first holder
// releases, then resumes from the snapshot the holder persisted. release
// drops the live session, so persist before releasing.
func (m *Manager) Acquire(ctx context.Context, sessionID string) (session *Session, release func(), err error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	m.mu.Lock()
	l, ok := m.leases[sessionID]
	if !ok {
		l = &lease{slot: make(chan struct{}, 1)}
		m.leases[sessionID] = l
	}
	l.waiters++
	m.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		m.dropLease(sessionID, l)
		return nil, nil, fmt.Errorf("acquire session %s: %w", sessionID, ctx.Err())
	}

	session, err = m.CreateSession(ctx, sessionID)
	if err != nil {
		<-l.slot
		m.dropLease(sessionID, l)
		return nil, nil, err
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			m.release(sessionID)
			<-l.slot
			m.dropLease(sessionID, l)
		})
	}
	return session, release, nil
}

// release forgets the live session without touching the store.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

func (m *Manager) dropLease(sessionID string, l *lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.waiters--
	if l.waiters == 0 && m.leases[sessionID] == l {
		delete(m.leases, sessionID)
	}
}

// GetSession returns a live session.
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Persist writes the live session to the store.
func (m *Manager) Persist(ctx context.Context, sessionID string) error {
	session, ok := m.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err := m.store.Save(ctx, sessionID, session.Serialize()); err != nil {
		return fmt.Errorf("persist session %s: %w", sessionID, err)
	}
	return nil
}

// DeleteSession forgets the live session and removes its snapshot.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return m.store.Delete(ctx, sessionID)
}

// ListSessions lists the ids known to the store.
func (m *Manager) ListSessions(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
