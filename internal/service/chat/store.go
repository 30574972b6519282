package chat

import (
	"context"
	"sync"

	"github.com/assessli/carebot/backend/internal/model/chat"
)

// Store is the key-value contract behind conversation memory. Implementations
// keep messages per thread in append order and never rewrite them.
type Store interface {
	Append(ctx context.Context, message chat.Message) error
	ReadLast(ctx context.Context, threadID string, n int) ([]chat.Message, error)
}

// MemoryStore keeps threads in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]chat.Message)}
}

// Append adds a message to the end of its thread.
func (s *MemoryStore) Append(_ context.Context, message chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[message.ThreadID] = append(s.messages[message.ThreadID], message)
	return nil
}

// ReadLast returns up to n of the most recent messages, oldest first.
// Unknown threads yield an empty slice.
func (s *MemoryStore) ReadLast(_ context.Context, threadID string, n int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[threadID]
	start := 0
	if n >= 0 && len(messages) > n {
		start = len(messages) - n
	}

	copied := make([]chat.Message, len(messages)-start)
	copy(copied, messages[start:])
	return copied, nil
}
