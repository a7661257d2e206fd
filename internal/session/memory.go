package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions for the lifetime of the process. Nothing is
// evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*State),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (State, error) {
	m.mu.RLock()
	st, ok := m.sessions[id]
	if ok {
		out := st.copy()
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[id]; ok {
		return st.copy(), nil
	}
	m.sessions[id] = &State{}
	return State{}, nil
}

func (m *MemoryStore) Set(ctx context.Context, id string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		st = &State{}
	}
	next := st.copy()
	if err := next.apply(patch); err != nil {
		return err
	}
	m.sessions[id] = &next
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, id string, keys ...Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil
	}
	st.clear(keys)
	return nil
}

// Len returns the number of sessions held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (s *State) copy() State {
	out := *s
	if s.LatestRemovalAnalysis != nil {
		ra := *s.LatestRemovalAnalysis
		out.LatestRemovalAnalysis = &ra
	}
	return out
}
