package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"sharepairs/pkg/platform/sentinel"
	txcontext "sharepairs/pkg/platform/tx"
)

// PostgresStore implements Store on a users table. The match reference is
// flattened into nullable columns plus a JSONB snapshot; contacts are a JSONB
// array deduplicated in SQL-adjacent code, not in triggers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// execer prefers a transaction carried in context so multi-record operations
// (pairing) see and write uncommitted state.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const userColumns = `
	id, display_name, email, photo_url, chat_disabled, support,
	match_partner_id, match_snapshot, match_seen, match_paired_at,
	contacts, created_at, updated_at
`

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	// Inside a transaction the row is locked so concurrent pairings serialize.
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	row := s.execer(ctx).QueryRowContext(ctx, query, id)
	return scanUser(row)
}

func (s *PostgresStore) Put(ctx context.Context, u *User) error {
	snapshot, pairedAt, partnerID, seen, err := matchColumns(u.Match)
	if err != nil {
		return err
	}
	contacts, err := json.Marshal(u.Contacts)
	if err != nil {
		return fmt.Errorf("marshal contacts: %w", err)
	}
	query := `
		INSERT INTO users (
			id, display_name, email, photo_url, chat_disabled, support,
			match_partner_id, match_snapshot, match_seen, match_paired_at,
			contacts, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			photo_url = EXCLUDED.photo_url,
			chat_disabled = EXCLUDED.chat_disabled,
			support = EXCLUDED.support,
			match_partner_id = EXCLUDED.match_partner_id,
			match_snapshot = EXCLUDED.match_snapshot,
			match_seen = EXCLUDED.match_seen,
			match_paired_at = EXCLUDED.match_paired_at,
			contacts = EXCLUDED.contacts,
			updated_at = now()
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		u.ID, u.DisplayName, u.Email, u.PhotoURL, u.ChatDisabled, u.Support,
		partnerID, snapshot, seen, pairedAt, contacts,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetMatch(ctx context.Context, id string, ref MatchRef) error {
	snapshot, err := json.Marshal(ref.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal match snapshot: %w", err)
	}
	query := `
		UPDATE users SET
			match_partner_id = $2,
			match_snapshot = $3,
			match_seen = FALSE,
			match_paired_at = $4,
			updated_at = now()
		WHERE id = $1
	`
	return s.mustAffect(ctx, query, id, ref.PartnerID, snapshot, ref.PairedAt)
}

func (s *PostgresStore) ClearMatch(ctx context.Context, id string) error {
	query := `
		UPDATE users SET
			match_partner_id = NULL,
			match_snapshot = NULL,
			match_seen = FALSE,
			match_paired_at = NULL,
			updated_at = now()
		WHERE id = $1
	`
	return s.mustAffect(ctx, query, id)
}

func (s *PostgresStore) SetMatchSeen(ctx context.Context, id string) error {
	query := `
		UPDATE users SET match_seen = TRUE, updated_at = now()
		WHERE id = $1 AND match_partner_id IS NOT NULL
	`
	// No-op when unmatched, but a missing user is still reported.
	res, err := s.execer(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("set match seen: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

func (s *PostgresStore) SetChatDisabled(ctx context.Context, id string, disabled bool) error {
	query := `UPDATE users SET chat_disabled = $2, updated_at = now() WHERE id = $1`
	return s.mustAffect(ctx, query, id, disabled)
}

func (s *PostgresStore) AddContact(ctx context.Context, id string, contact Contact) error {
	payload, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}
	// Append only when no element shares (id, type); the guard runs inside the
	// UPDATE so concurrent adds of the same contact stay deduplicated.
	query := `
		UPDATE users SET
			contacts = contacts || $2::jsonb,
			updated_at = now()
		WHERE id = $1 AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(contacts) AS c
			WHERE c->>'id' = $3 AND c->>'type' = $4
		)
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, id, "["+string(payload)+"]", contact.ID, string(contact.Type))
	if err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

func (s *PostgresStore) mustAffect(ctx context.Context, query string, args ...any) error {
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func matchColumns(ref *MatchRef) (snapshot []byte, pairedAt *time.Time, partnerID *string, seen bool, err error) {
	if ref == nil {
		return nil, nil, nil, false, nil
	}
	snapshot, err = json.Marshal(ref.Snapshot)
	if err != nil {
		return nil, nil, nil, false, fmt.Errorf("marshal match snapshot: %w", err)
	}
	return snapshot, &ref.PairedAt, &ref.PartnerID, ref.Seen, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		partnerID sql.NullString
		snapshot  []byte
		seen      bool
		pairedAt  sql.NullTime
		contacts  []byte
	)
	err := row.Scan(
		&u.ID, &u.DisplayName, &u.Email, &u.PhotoURL, &u.ChatDisabled, &u.Support,
		&partnerID, &snapshot, &seen, &pairedAt,
		&contacts, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if partnerID.Valid {
		ref := MatchRef{PartnerID: partnerID.String, Seen: seen}
		if pairedAt.Valid {
			ref.PairedAt = pairedAt.Time
		}
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &ref.Snapshot); err != nil {
				return nil, fmt.Errorf("unmarshal match snapshot: %w", err)
			}
		}
		u.Match = &ref
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &u.Contacts); err != nil {
			return nil, fmt.Errorf("unmarshal contacts: %w", err)
		}
	}
	return &u, nil
}

// PostgresTx runs a function inside a serializable transaction spanning the
// user records it touches. Serialization conflicts abort and retry rather than
// interleave, which is what keeps pairing exclusive under concurrency.
type PostgresTx struct {
	db      *sql.DB
	store   *PostgresStore
	timeout time.Duration
	retries int
}

const (
	defaultTxTimeout = 5 * time.Second
	defaultTxRetries = 3

	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, store: NewPostgresStore(db), timeout: defaultTxTimeout, retries: defaultTxRetries}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var err error
	for attempt := 0; attempt <= t.retries; attempt++ {
		err = t.runOnce(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return sentinel.ErrConflict
}

func (t *PostgresTx) runOnce(ctx context.Context, fn func(store Store) error) error {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txCtx := txcontext.WithTx(ctx, tx)
	if err := fn(storeBoundTo(t.store, txCtx)); err != nil {
		return err
	}
	return tx.Commit()
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}

// boundStore pins every call to the transaction context so callers cannot
// accidentally escape the transaction by passing a fresh context.
type boundStore struct {
	inner Store
	ctx   context.Context
}

func storeBoundTo(inner Store, ctx context.Context) Store {
	return &boundStore{inner: inner, ctx: ctx}
}

func (b *boundStore) Get(_ context.Context, id string) (*User, error) { return b.inner.Get(b.ctx, id) }
func (b *boundStore) Put(_ context.Context, u *User) error            { return b.inner.Put(b.ctx, u) }
func (b *boundStore) SetMatch(_ context.Context, id string, ref MatchRef) error {
	return b.inner.SetMatch(b.ctx, id, ref)
}
func (b *boundStore) ClearMatch(_ context.Context, id string) error {
	return b.inner.ClearMatch(b.ctx, id)
}
func (b *boundStore) SetMatchSeen(_ context.Context, id string) error {
	return b.inner.SetMatchSeen(b.ctx, id)
}
func (b *boundStore) SetChatDisabled(_ context.Context, id string, disabled bool) error {
	return b.inner.SetChatDisabled(b.ctx, id, disabled)
}
func (b *boundStore) AddContact(_ context.Context, id string, contact Contact) error {
	return b.inner.AddContact(b.ctx, id, contact)
}
