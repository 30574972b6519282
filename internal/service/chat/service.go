package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/model/chat"
)

// Service is the conversation memory: per-thread ordered message logs with
// bounded-window reads and a per-thread writer lock.
type Service struct {
	store Store
	locks *threadLocks
	now   func() time.Time
}

// NewService wraps store; a nil store falls back to MemoryStore.
func NewService(store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		store: store,
		locks: newThreadLocks(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Lock serializes work on a thread. The returned func releases the lock and
// is safe to call more than once.
func (s *Service) Lock(ctx context.Context, threadID string) (func(), error) {
	return s.locks.acquire(ctx, threadID)
}

// Append stores a new message at the end of the thread.
func (s *Service) Append(ctx context.Context, threadID string, role chat.Role, content string) (chat.Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return chat.Message{}, apperr.InvalidInput("thread id is required")
	}
	if role != chat.RoleUser && role != chat.RoleAssistant {
		return chat.Message{}, apperr.InvalidInput("unknown role %q", role)
	}

	message := chat.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.Append(ctx, message); err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// ReadLast returns the most recent min(n, len) messages in insertion order.
func (s *Service) ReadLast(ctx context.Context, threadID string, n int) ([]chat.Message, error) {
	if n < 0 {
		return nil, apperr.InvalidInput("window must not be negative")
	}
	if n == 0 {
		return []chat.Message{}, nil
	}
	messages, err := s.store.ReadLast(ctx, threadID, n)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return messages, nil
}

// Thread loads the last n messages as a Thread view.
func (s *Service) Thread(ctx context.Context, threadID string, n int) (chat.Thread, error) {
	messages, err := s.ReadLast(ctx, threadID, n)
	if err != nil {
		return chat.Thread{}, err
	}
	return chat.Thread{ID: threadID, Messages: messages}, nil
}
