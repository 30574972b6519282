package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/model/profile"
)

// ProfileStore persists user profiles and their condition log.
type ProfileStore struct {
	db  *DB
	now func() time.Time
}

func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get fetches a profile with its conditions in insertion order.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*profile.Profile, bool, error) {
	p := &profile.Profile{UserID: userID}
	err := s.db.QueryRowContext(ctx, `SELECT name, age FROM profiles WHERE user_id = ?`, userID).Scan(&p.Name, &p.Age)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query profile: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT condition, recorded_at FROM conditions
		WHERE user_id = ? ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, false, fmt.Errorf("query conditions: %w", err)
	}
	defer rows.Close()

	p.Conditions = []profile.ConditionEntry{}
	for rows.Next() {
		var (
			entry    profile.ConditionEntry
			recorded int64
		)
		if err := rows.Scan(&entry.Condition, &recorded); err != nil {
			return nil, false, fmt.Errorf("scan condition: %w", err)
		}
		entry.Timestamp = time.Unix(0, recorded).UTC()
		p.Conditions = append(p.Conditions, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Create inserts a new profile; an existing user id yields ErrAlreadyExists.
func (s *ProfileStore) Create(ctx context.Context, userID, name string, age int) (*profile.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.InvalidInput("user id is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, age, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, name, age, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	if affected == 0 {
		return nil, apperr.AlreadyExists("profile %q", userID)
	}

	return &profile.Profile{UserID: userID, Name: name, Age: age, Conditions: []profile.ConditionEntry{}}, nil
}

// AppendCondition records a condition for a known user; unknown users are ignored.
func (s *ProfileStore) AppendCondition(ctx context.Context, userID, condition string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conditions (user_id, condition, recorded_at)
		SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM profiles WHERE user_id = ?)
	`, userID, condition, at.UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("insert condition: %w", err)
	}
	return nil
}

// Seed inserts profiles that do not exist yet, including their conditions.
func (s *ProfileStore) Seed(ctx context.Context, items []profile.Profile) error {
	for _, item := range items {
		if _, err := s.Create(ctx, item.UserID, item.Name, item.Age); err != nil {
			if errors.Is(err, apperr.ErrAlreadyExists) {
				continue
			}
			return err
		}
		for _, c := range item.Conditions {
			if err := s.AppendCondition(ctx, item.UserID, c.Condition, c.Timestamp); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count reports the number of stored profiles.
func (s *ProfileStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n)
	return n, err
}
