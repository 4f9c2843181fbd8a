package session

import "sync"

// Store keeps sessions by participant id. Sessions are created lazily and
// live for the process lifetime.
type Store interface {
	Get(participantID int64) State
	// Update applies fn to the participant's state atomically.
	Update(participantID int64, fn func(*State)) State
	Delete(participantID int64)
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*State)}
}

func (s *MemoryStore) Get(participantID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.lazy(participantID)
}

func (s *MemoryStore) Update(participantID int64, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.lazy(participantID)
	fn(st)
	if st.Mode == nil {
		st.Mode = Idle{}
	}
	return *st
}

func (s *MemoryStore) Delete(participantID int64) {
	s.mu.Lock()
	delete(s.sessions, participantID)
	s.mu.Unlock()
}

func (s *MemoryStore) lazy(participantID int64) *State {
	st, ok := s.sessions[participantID]
	if !ok {
		st = &State{Mode: Idle{}}
		s.sessions[participantID] = st
	}
	return st
}
