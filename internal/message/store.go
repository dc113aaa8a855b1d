package message

import "context"

// Store persists messages. Append must be durable before any conversation
// summary update the caller performs afterwards; the two writes are causally
// ordered, not atomic.
type Store interface {
	// Append inserts the message. When the conversation already holds a
	// message with the same non-empty client token, implementations return
	// sentinel.ErrDuplicate without inserting.
	Append(ctx context.Context, msg *Message) error

	Get(ctx context.Context, id string) (*Message, error)

	// FindByToken resolves a client token within a conversation. Returns
	// sentinel.ErrNotFound when absent.
	FindByToken(ctx context.Context, conversationID, token string) (*Message, error)

	// ListBefore returns up to limit messages strictly older than the cursor
	// (all messages when cursor is nil), newest first, ordered by
	// (created_at, id) descending.
	ListBefore(ctx context.Context, conversationID string, cursor *Cursor, limit int) ([]*Message, error)

	// SetHidden flips the moderation flag, the only permitted post-write
	// mutation.
	SetHidden(ctx context.Context, id string, hidden bool) error
}
