package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/assessli/carebot/backend/internal/model/chat"
)

// MessageStore persists conversation threads. It satisfies the chat service's
// Store contract.
type MessageStore struct {
	db *DB
}

func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append inserts a message at the end of its thread.
func (s *MessageStore) Append(ctx context.Context, m chat.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.ThreadID, string(m.Role), m.Content, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ReadLast returns up to n of the newest messages in insertion order.
func (s *MessageStore) ReadLast(ctx context.Context, threadID string, n int) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, content, created_at
		FROM messages WHERE thread_id = ?
		ORDER BY seq DESC LIMIT ?
	`, threadID, n)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			m       chat.Message
			role    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = chat.Role(role)
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []chat.Message{}
	}
	return out, nil
}
