package state

import (
	"context"
	"errors"
	"strings"
	"sync"

	contractx "github.com/trenchburger/attendant/agent/contract"
)

// Manager layers the session discipline over a Store: sessions are created
// implicitly on first use, callers only ever see deep copies of history, a
// commit replaces the whole history atomically, and requests for the same
// session serialize on a per-session lock while distinct sessions proceed
// in parallel.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(store Store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	return &Manager{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Acquire takes the per-session lock and returns its release func. Hold it
// across the whole working-copy -> loop -> commit span.
func (m *Manager) Acquire(sessionID string) func() {
	m.mu.Lock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// WorkingCopy returns a deep copy of the session's committed history. An
// unknown session yields an empty history, not an error.
func (m *Manager) WorkingCopy(ctx context.Context, sessionID string) ([]contractx.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	history, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return []contractx.Message{}, nil
		}
		return nil, err
	}
	return contractx.CloneHistory(history), nil
}

// Commit atomically replaces the session's history.
func (m *Manager) Commit(ctx context.Context, sessionID string, history []contractx.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	return m.store.Save(ctx, sessionID, history)
}

// Reset discards the session's history entirely.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	return m.store.Delete(ctx, sessionID)
}
