package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"sharepairs/pkg/platform/sentinel"
)

// PostgresStore implements Store on a conversations table. Consent and unread
// updates are single UPDATE statements built from commutative array
// operations, so concurrent writers converge without explicit locking.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const convColumns = `
	id, participants, requester, recipient, consent_set, mutual_consent,
	type, closed, last_message_at, last_message_preview, last_sender_id,
	unread_by, seen_at, created_at, updated_at
`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+convColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, conv *Conversation) (*Conversation, bool, error) {
	query := `
		INSERT INTO conversations (
			id, participants, requester, recipient, consent_set, mutual_consent,
			type, closed, unread_by, seen_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, '{}', '{}', now(), now())
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		conv.ID,
		pq.Array(conv.Participants),
		conv.Requester,
		conv.Recipient,
		pq.Array(conv.ConsentSet),
		conv.MutualConsent,
		string(conv.Type),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	created, _ := res.RowsAffected()

	stored, err := s.Get(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, created == 1, nil
}

func (s *PostgresStore) AddConsent(ctx context.Context, id, uid string) (*Conversation, error) {
	// Set union plus mutual recomputation in one statement; replaying the
	// update is a no-op, which is what makes Accept idempotent under retries.
	query := `
		UPDATE conversations SET
			consent_set = (
				SELECT COALESCE(array_agg(DISTINCT x ORDER BY x), '{}')
				FROM unnest(consent_set || $2::text) AS x
			),
			mutual_consent = participants <@ (consent_set || $2::text),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + convColumns
	row := s.db.QueryRowContext(ctx, query, id, uid)
	return scanConversation(row)
}

func (s *PostgresStore) MarkSeen(ctx context.Context, id, uid string, at time.Time) error {
	query := `
		UPDATE conversations SET
			unread_by = array_remove(unread_by, $2),
			seen_at = seen_at || jsonb_build_object($2::text, to_jsonb($3::timestamptz)),
			updated_at = now()
		WHERE id = $1
	`
	return s.mustAffect(ctx, query, id, uid, at)
}

func (s *PostgresStore) SetClosed(ctx context.Context, id string) error {
	query := `UPDATE conversations SET closed = TRUE, updated_at = now() WHERE id = $1`
	return s.mustAffect(ctx, query, id)
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, id string, summary Summary, unreadAdd []string, unreadRemove string) error {
	query := `
		UPDATE conversations SET
			last_message_at = $2,
			last_message_preview = $3,
			last_sender_id = $4,
			unread_by = (
				SELECT COALESCE(array_agg(DISTINCT x), '{}')
				FROM unnest(array_remove(unread_by || $5::text[], $6)) AS x
			),
			updated_at = now()
		WHERE id = $1
	`
	return s.mustAffect(ctx, query, id,
		summary.LastMessageAt, summary.LastMessagePreview, summary.LastSenderID,
		pq.Array(unreadAdd), unreadRemove,
	)
}

func (s *PostgresStore) ListByUser(ctx context.Context, uid string) ([]*Conversation, error) {
	query := `
		SELECT ` + convColumns + `
		FROM conversations
		WHERE $1 = ANY(participants)
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) mustAffect(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c             Conversation
		convType      string
		lastMessageAt sql.NullTime
		lastPreview   sql.NullString
		lastSender    sql.NullString
		seenAt        []byte
	)
	err := row.Scan(
		&c.ID,
		pq.Array(&c.Participants),
		&c.Requester,
		&c.Recipient,
		pq.Array(&c.ConsentSet),
		&c.MutualConsent,
		&convType,
		&c.Closed,
		&lastMessageAt,
		&lastPreview,
		&lastSender,
		pq.Array(&c.UnreadBy),
		&seenAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.Type = Type(convType)
	if lastMessageAt.Valid {
		at := lastMessageAt.Time
		c.LastMessageAt = &at
	}
	c.LastMessagePreview = lastPreview.String
	c.LastSenderID = lastSender.String
	if len(seenAt) > 0 {
		if err := json.Unmarshal(seenAt, &c.SeenAt); err != nil {
			return nil, fmt.Errorf("unmarshal seen_at: %w", err)
		}
	}
	return &c, nil
}
