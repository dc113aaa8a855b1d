package audit

import "context"

// Store persists audit entries. Append is the only mutation; there is no
// update or delete by design.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
