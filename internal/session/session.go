package session

import (
	"errors"
	"sync"
	"time"

	"github.com/pefman/critsim/internal/models"
)

// ErrNoSuchPattern is returned by Remove for an index outside the list.
var ErrNoSuchPattern = errors.New("no such pattern")

// Session owns one user's ordered pattern list and the last finished run.
type Session struct {
	ID      string
	Created time.Time

	mu      sync.Mutex
	updated time.Time
	list    []models.AttackPattern
	last    *models.SimulationResult
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, Created: now, updated: now}
}

// Add validates p and appends it. It returns the 0-based index of the new row.
func (s *Session) Add(p models.AttackPattern) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, p)
	s.updated = time.Now()
	return len(s.list) - 1, nil
}

// Remove deletes the row at index i, shifting later rows up.
func (s *Session) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.list) {
		return ErrNoSuchPattern
	}
	s.list = append(s.list[:i], s.list[i+1:]...)
	s.updated = time.Now()
	return nil
}

// Patterns returns a copy of the list.
func (s *Session) Patterns() []models.AttackPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AttackPattern, len(s.list))
	copy(out, s.list)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
	s.updated = time.Now()
}

func (s *Session) SetLastResult(r models.SimulationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &r
	s.updated = time.Now()
}

// LastResult returns the most recent finished run, if any.
func (s *Session) LastResult() (models.SimulationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.SimulationResult{}, false
	}
	return *s.last, true
}

// Touch marks the session as used without changing it.
func (s *Session) Touch() {
	s.mu.Lock()
	s.updated = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// Summary is the JSON view of a session.
type Summary struct {
	ID         string                   `json:"id"`
	Created    int64                    `json:"created"`
	Updated    int64                    `json:"updated"`
	Patterns   []models.AttackPattern   `json:"patterns"`
	LastResult *models.SimulationResult `json:"last_result,omitempty"`
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Summary{
		ID:       s.ID,
		Created:  s.Created.Unix(),
		Updated:  s.updated.Unix(),
		Patterns: make([]models.AttackPattern, len(s.list)),
	}
	copy(out.Patterns, s.list)
	if s.last != nil {
		r := *s.last
		out.LastResult = &r
	}
	return out
}
