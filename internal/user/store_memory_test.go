package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharepairs/pkg/platform/sentinel"
)

func seedUser(t *testing.T, store *InMemoryStore, id, name string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), &User{ID: id, DisplayName: name}))
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_SetAndClearMatch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedUser(t, store, "alice", "Alice")

	ref := MatchRef{
		PartnerID: "bob",
		Snapshot:  PublicProfile{ID: "bob", DisplayName: "Bob"},
		Seen:      true, // must be reset on write
		PairedAt:  time.Now(),
	}
	require.NoError(t, store.SetMatch(ctx, "alice", ref))

	u, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, u.Matched())
	assert.Equal(t, "bob", u.Match.PartnerID)
	assert.False(t, u.Match.Seen, "a fresh match starts unseen")

	require.NoError(t, store.ClearMatch(ctx, "alice"))
	u, err = store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, u.Matched())
}

func TestInMemoryStore_SetMatchSeen(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedUser(t, store, "alice", "Alice")

	// No-op while unmatched.
	require.NoError(t, store.SetMatchSeen(ctx, "alice"))

	require.NoError(t, store.SetMatch(ctx, "alice", MatchRef{PartnerID: "bob"}))
	require.NoError(t, store.SetMatchSeen(ctx, "alice"))

	u, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.Match.Seen)
}

func TestInMemoryStore_AddContact_Dedupes(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedUser(t, store, "alice", "Alice")

	contact := Contact{ID: "bob", Type: ContactTypeMatch, DisplayName: "Bob"}
	require.NoError(t, store.AddContact(ctx, "alice", contact))
	require.NoError(t, store.AddContact(ctx, "alice", contact))

	// Same id, different type is a distinct entry.
	require.NoError(t, store.AddContact(ctx, "alice", Contact{ID: "bob", Type: ContactTypeSupport}))

	u, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, u.Contacts, 2)
}

func TestInMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedUser(t, store, "alice", "Alice")
	require.NoError(t, store.SetMatch(ctx, "alice", MatchRef{PartnerID: "bob"}))

	u, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	u.DisplayName = "Mallory"
	u.Match.PartnerID = "mallory"

	fresh, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", fresh.DisplayName)
	assert.Equal(t, "bob", fresh.Match.PartnerID)
}

func TestUser_Profile_Whitelist(t *testing.T) {
	u := &User{
		ID:          "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		PhotoURL:    "https://cdn/alice.png",
		Contacts:    []Contact{{ID: "bob"}},
		Match:       &MatchRef{PartnerID: "bob"},
	}
	p := u.Profile()
	assert.Equal(t, PublicProfile{ID: "alice", DisplayName: "Alice", PhotoURL: "https://cdn/alice.png"}, p)
}
