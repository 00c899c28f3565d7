package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/fauxpost/internal/types"
)

// QueuedFeedback is a correction that could not be delivered yet
type QueuedFeedback struct {
	ID        string
	Payload   types.FeedbackPayload
	QueuedAt  time.Time
	Attempts  int
	LastError string
}

// Enqueue stores a feedback payload for later delivery and returns its id
func (s *DB) Enqueue(ctx context.Context, p types.FeedbackPayload, cause error) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback_outbox (id, payload, queued_at_ms, attempts, last_error) VALUES (?, ?, ?, 0, ?)`,
		id, string(data), time.Now().UnixMilli(), lastErr)
	if err != nil {
		return "", fmt.Errorf("failed to queue feedback: %w", err)
	}
	return id, nil
}

// Pending returns up to limit queued payloads, oldest first
func (s *DB) Pending(ctx context.Context, limit int) ([]QueuedFeedback, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, queued_at_ms, attempts, last_error FROM feedback_outbox ORDER BY queued_at_ms, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueuedFeedback
	for rows.Next() {
		var (
			q   QueuedFeedback
			raw string
			ms  int64
		)
		if err := rows.Scan(&q.ID, &raw, &ms, &q.Attempts, &q.LastError); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &q.Payload); err != nil {
			return nil, fmt.Errorf("corrupt outbox row %s: %w", q.ID, err)
		}
		q.QueuedAt = time.UnixMilli(ms)
		out = append(out, q)
	}
	return out, rows.Err()
}

// Ack removes a delivered payload
func (s *DB) Ack(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM feedback_outbox WHERE id = ?`, id)
	return err
}

// Retry records a failed delivery attempt
func (s *DB) Retry(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE feedback_outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, msg, id)
	return err
}

// OutboxLen returns how many payloads are waiting
func (s *DB) OutboxLen(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback_outbox`).Scan(&n)
	return n, err
}
