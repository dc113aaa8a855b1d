package distress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sharepairs/pkg/platform/sentinel"
)

// PostgresStore implements Store on a distress_events table. Status
// transitions are conditional UPDATEs: the WHERE clause encodes the legal
// source states, so a replayed transition affects zero rows instead of moving
// a status backward.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, ev *Event) error {
	contextJSON, err := json.Marshal(ev.Context)
	if err != nil {
		return fmt.Errorf("marshal distress context: %w", err)
	}
	query := `
		INSERT INTO distress_events (
			id, user_id, score, message, context, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.UserID, ev.Score, ev.Message, contextJSON, string(ev.Status), ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert distress event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Event, error) {
	query := `
		SELECT id, user_id, score, message, context, status,
		       COALESCE(queue_error, ''), COALESCE(delivery_id, ''),
		       emailed_at, created_at, updated_at
		FROM distress_events
		WHERE id = $1
	`
	var (
		ev          Event
		status      string
		contextJSON []byte
		emailedAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.UserID, &ev.Score, &ev.Message, &contextJSON, &status,
		&ev.QueueError, &ev.DeliveryID, &emailedAt, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan distress event: %w", err)
	}
	ev.Status = Status(status)
	if emailedAt.Valid {
		at := emailedAt.Time
		ev.EmailedAt = &at
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &ev.Context); err != nil {
			return nil, fmt.Errorf("unmarshal distress context: %w", err)
		}
	}
	return &ev, nil
}

func (s *PostgresStore) HasHighScoreSince(ctx context.Context, userID string, threshold int, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM distress_events
			WHERE user_id = $1 AND score >= $2 AND created_at > $3
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, threshold, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("query recent distress events: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SetQueueFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE distress_events
		SET status = $2, queue_error = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query, id, string(StatusQueueFailed), reason, string(StatusQueued))
	if err != nil {
		return fmt.Errorf("mark distress event queue_failed: %w", err)
	}
	return s.transitionOutcome(ctx, res, id)
}

func (s *PostgresStore) MarkSent(ctx context.Context, id, deliveryID string, at time.Time) error {
	query := `
		UPDATE distress_events
		SET status = $2, delivery_id = $3, emailed_at = $4, updated_at = now()
		WHERE id = $1 AND status <> $2
	`
	res, err := s.db.ExecContext(ctx, query, id, string(StatusSent), deliveryID, at)
	if err != nil {
		return fmt.Errorf("mark distress event sent: %w", err)
	}
	return s.transitionOutcome(ctx, res, id)
}

// transitionOutcome distinguishes "no such event" from "transition not legal
// from the current status" when a conditional update touched nothing.
func (s *PostgresStore) transitionOutcome(ctx context.Context, res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM distress_events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check distress event exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}
