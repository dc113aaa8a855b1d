package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharepairs/pkg/requestcontext"
)

func TestEmit_StampsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	pinned := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), pinned)

	require.NoError(t, pub.Emit(ctx, Entry{
		EventType:    EventMatchPaired,
		ActorID:      "admin-1",
		ResourceType: "match",
		ResourceID:   "alice+bob",
	}))

	entries := store.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, pinned, e.CreatedAt)
	assert.Equal(t, "admin-1", e.UserID, "affected user defaults to the actor")
}

func TestEmit_PreservesExplicitFields(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	at := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), Entry{
		ID:           "fixed-id",
		EventType:    EventConsentGranted,
		ActorID:      "alice",
		UserID:       "bob",
		ResourceType: "conversation",
		CreatedAt:    at,
	}))

	e := store.All()[0]
	assert.Equal(t, "fixed-id", e.ID)
	assert.Equal(t, "bob", e.UserID)
	assert.Equal(t, at, e.CreatedAt)
}

func TestListByUser_MatchesActorAndAffected(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	ctx := context.Background()

	require.NoError(t, pub.Emit(ctx, Entry{EventType: EventMessageSent, ActorID: "alice", UserID: "alice"}))
	require.NoError(t, pub.Emit(ctx, Entry{EventType: EventMessageHidden, ActorID: "moderator", UserID: "alice"}))
	require.NoError(t, pub.Emit(ctx, Entry{EventType: EventMessageSent, ActorID: "bob", UserID: "bob"}))

	entries, err := pub.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	recent, err := pub.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, EventMessageSent, recent[0].EventType)
	assert.Equal(t, "bob", recent[0].ActorID)
}
