package signaling

import (
	"context"
	"sync"
)

// Store persists call sessions and their envelopes.
type Store interface {
	// Create stores s, failing with ErrCallInProgress when the pair already
	// has a non-terminal session.
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, callID string) (Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, callID string) error
	List(ctx context.Context) ([]Session, error)

	Append(ctx context.Context, env Envelope) error
	// Envelopes returns a call's envelopes in append order.
	Envelopes(ctx context.Context, callID string) ([]Envelope, error)
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	envelopes map[string][]Envelope
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]Session),
		envelopes: make(map[string][]Envelope),
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if !existing.State.Terminal() && existing.involves(s.CallerID, s.CalleeID) {
			return ErrCallInProgress
		}
	}
	m.sessions[s.CallID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, callID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[callID]
	if !ok {
		return Session{}, ErrCallNotFound
	}
	return s, nil
}

func (m *MemoryStore) Update(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.CallID]; !ok {
		return ErrCallNotFound
	}
	m.sessions[s.CallID] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, callID)
	delete(m.envelopes, callID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[env.CallID]; !ok {
		return ErrCallNotFound
	}
	m.envelopes[env.CallID] = append(m.envelopes[env.CallID], env)
	return nil
}

func (m *MemoryStore) Envelopes(_ context.Context, callID string) ([]Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	envs := m.envelopes[callID]
	out := make([]Envelope, len(envs))
	copy(out, envs)
	return out, nil
}
