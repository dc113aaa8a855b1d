package audit

import (
	"context"

	"github.com/google/uuid"

	"sharepairs/pkg/requestcontext"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
//
// Emit returns the storage error unfiltered; callers decide whether audit
// failure blocks their operation. For this core it never does: services log
// the failure to the operational channel and carry on.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.UserID == "" {
		entry.UserID = entry.ActorID
	}
	return p.store.Append(ctx, entry)
}

func (p *Publisher) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	return p.store.ListByUser(ctx, userID)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	return p.store.ListRecent(ctx, limit)
}
