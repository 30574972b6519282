package profile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/assessli/carebot/backend/internal/apperr"
)

// Store exposes profile persistence. Conditions only ever grow.
//
// AppendCondition on an unknown user is a silent no-op.
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, bool, error)
	Create(ctx context.Context, userID, name string, age int) (*Profile, error)
	AppendCondition(ctx context.Context, userID, condition string, at time.Time) error
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	s := &MemoryStore{profiles: make(map[string]*Profile, len(items))}
	for _, item := range items {
		p := clone(item)
		s.profiles[p.UserID] = &p
	}
	return s
}

// Get returns a copy of the stored profile.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, false, nil
	}
	out := clone(*p)
	return &out, true, nil
}

// Create registers a new profile; duplicates fail with ErrAlreadyExists.
func (s *MemoryStore) Create(_ context.Context, userID, name string, age int) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.InvalidInput("user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[userID]; exists {
		return nil, apperr.AlreadyExists("profile %q", userID)
	}

	p := &Profile{UserID: userID, Name: name, Age: age, Conditions: []ConditionEntry{}}
	s.profiles[userID] = p
	out := clone(*p)
	return &out, nil
}

// AppendCondition adds an entry to an existing profile.
func (s *MemoryStore) AppendCondition(_ context.Context, userID, condition string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil
	}
	p.Conditions = append(p.Conditions, ConditionEntry{Condition: condition, Timestamp: at})
	return nil
}

// Len reports how many profiles are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
