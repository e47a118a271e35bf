package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager hands out one queue session per user. Sessions are created on
// first use and primed with an initial batch from the supplier.
type Manager struct {
	recorder Recorder
	supplier Supplier
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(recorder Recorder, supplier Supplier, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		recorder: recorder,
		supplier: supplier,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

func (m *Manager) GetOrCreate(ctx context.Context, userID int64) (*Session, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}

	m.mu.Lock()
	session, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		return session, nil
	}

	session = NewSession(userID, m.recorder, m.supplier, m.cfg, m.logger)
	if m.supplier != nil {
		batch, err := m.supplier.NextBatch(ctx, userID, nil, m.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("prime candidate queue: %w", err)
		}
		session.Reset(batch)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[userID]; ok {
		// Another request primed the session first; keep theirs.
		session = existing
	} else {
		m.sessions[userID] = session
	}
	m.mu.Unlock()

	return session, nil
}

// Drop discards a user's session, e.g. on logout or filter change.
func (m *Manager) Drop(userID int64) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}
