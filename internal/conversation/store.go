package conversation

import (
	"context"
	"time"
)

// Summary is the denormalized tail-of-conversation metadata maintained on
// every send.
type Summary struct {
	LastMessageAt      time.Time
	LastMessagePreview string
	LastSenderID       string
}

// Store persists conversations. Consent and unread updates are commutative
// merge operations (set union / set removal) so concurrent calls from either
// participant converge without locks.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)

	// CreateIfAbsent inserts conv unless a record with the same id exists, and
	// returns the stored record either way. created is false on the idempotent
	// path.
	CreateIfAbsent(ctx context.Context, conv *Conversation) (stored *Conversation, created bool, err error)

	// AddConsent unions uid into the consent set and recomputes the mutual
	// flag in the same write. Returns the updated record.
	AddConsent(ctx context.Context, id, uid string) (*Conversation, error)

	// MarkSeen removes uid's unread marker and records the seen timestamp.
	MarkSeen(ctx context.Context, id, uid string, at time.Time) error

	// SetClosed marks the conversation closed. The record is never deleted.
	SetClosed(ctx context.Context, id string) error

	// UpdateSummary applies the post-send metadata: summary fields, unread
	// markers for unreadAdd, and unread clearing for the sender.
	UpdateSummary(ctx context.Context, id string, summary Summary, unreadAdd []string, unreadRemove string) error

	ListByUser(ctx context.Context, uid string) ([]*Conversation, error)
}
