package user

import "context"

// Store persists user records. Implementations return sentinel.ErrNotFound for
// missing users. Mutating methods are narrow and typed on purpose: the core
// never builds ad hoc field/value update maps.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
	Put(ctx context.Context, u *User) error

	// SetMatch writes the matchedWith variant and resets the seen flag so the
	// "new match" indicator shows again.
	SetMatch(ctx context.Context, id string, ref MatchRef) error
	// ClearMatch writes the none variant.
	ClearMatch(ctx context.Context, id string) error
	// SetMatchSeen acknowledges the current match. No-op when unmatched.
	SetMatchSeen(ctx context.Context, id string) error

	// SetChatDisabled is an unconditional idempotent flag set.
	SetChatDisabled(ctx context.Context, id string, disabled bool) error

	// AddContact appends a contact unless one with the same (ID, Type) is
	// already present.
	AddContact(ctx context.Context, id string, contact Contact) error
}

// StoreTx provides a transactional boundary spanning multiple user records.
// The store handed to fn sees uncommitted writes; fn returning an error aborts
// the whole transaction. Implementations retry serialization conflicts, so fn
// must be safe to re-run.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}
