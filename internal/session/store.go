package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Store keeps sessions in memory only. Nothing survives a restart.
type Store struct {
	mu    sync.Mutex
	byID  map[string]*Session
	newID func() string
}

func NewStore() *Store {
	return &Store{byID: map[string]*Session{}, newID: randomID}
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Create registers an empty session.
func (st *Store) Create() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	id := st.newID()
	for st.byID[id] != nil {
		id = st.newID()
	}
	s := newSession(id, time.Now())
	st.byID[id] = s
	return s
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byID[id]
	return s, ok
}

// Delete reports whether the session existed.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.byID[id]; !ok {
		return false
	}
	delete(st.byID, id)
	return true
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.byID)
}

// Sweep drops sessions unused for longer than maxIdle and returns how many went.
func (st *Store) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.byID {
		if s.lastUsed().Before(cutoff) {
			delete(st.byID, id)
			n++
		}
	}
	return n
}

// Reset clears every session.
// Intended for tests and dev convenience.
func (st *Store) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for k := range st.byID {
		delete(st.byID, k)
	}
}
