package distress

import (
	"context"
	"time"
)

// Store persists distress events. Status transitions are conditional writes so
// the forward-only invariant holds even under concurrent workers.
type Store interface {
	Insert(ctx context.Context, ev *Event) error
	Get(ctx context.Context, id string) (*Event, error)

	// HasHighScoreSince reports whether the user has an event with
	// score >= threshold created after since. Backs the rate window.
	HasHighScoreSince(ctx context.Context, userID string, threshold int, since time.Time) (bool, error)

	// SetQueueFailed transitions queued -> queue_failed, recording the reason.
	SetQueueFailed(ctx context.Context, id, reason string) error

	// MarkSent transitions to sent with the provider delivery id. Returns
	// sentinel.ErrInvalidState when the event is already sent, leaving the
	// original delivery id untouched.
	MarkSent(ctx context.Context, id, deliveryID string, at time.Time) error
}

// Queue is the at-least-once delivery queue for notification jobs.
type Queue interface {
	Enqueue(ctx context.Context, rec QueueRecord) error
}

// WindowGuard is an optional fast-path rate limiter in front of the store
// query. Implementations may lose state (cache semantics); the store check
// remains the source of truth.
type WindowGuard interface {
	// Recent reports whether a high-score marker exists for the user.
	Recent(ctx context.Context, userID string) (bool, error)
	// Mark records a high-score submission for the window duration.
	Mark(ctx context.Context, userID string) error
}
