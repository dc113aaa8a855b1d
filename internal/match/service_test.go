package match

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharepairs/internal/audit"
	"sharepairs/internal/user"
	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/requestcontext"
)

type fixture struct {
	svc      *Service
	users    *user.InMemoryStore
	auditLog *audit.InMemoryStore
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	users := user.NewInMemoryStore()
	auditLog := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(users, users, audit.NewPublisher(auditLog), logger)

	for _, id := range ids {
		require.NoError(t, users.Put(context.Background(), &user.User{ID: id, DisplayName: "User " + id}))
	}
	return &fixture{svc: svc, users: users, auditLog: auditLog}
}

func (f *fixture) mustGet(t *testing.T, id string) *user.User {
	t.Helper()
	u, err := f.users.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestPairUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")

	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))

	alice := f.mustGet(t, "alice")
	bob := f.mustGet(t, "bob")
	assert.True(t, alice.MatchedWith("bob"))
	assert.True(t, bob.MatchedWith("alice"))
	assert.Equal(t, "User bob", alice.Match.Snapshot.DisplayName)
	assert.False(t, alice.Match.Seen)
	assert.True(t, alice.HasContact("bob", user.ContactTypeMatch))
	assert.True(t, bob.HasContact("alice", user.ContactTypeMatch))

	entries := f.auditLog.All()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventMatchPaired, entries[0].EventType)
}

func TestPairUsers_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice")

	err := f.svc.PairUsers(ctx, "alice", "alice")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = f.svc.PairUsers(ctx, "", "alice")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestPairUsers_MissingUser(t *testing.T) {
	f := newFixture(t, "alice")
	err := f.svc.PairUsers(context.Background(), "alice", "ghost")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// The aborted pairing left alice untouched.
	assert.False(t, f.mustGet(t, "alice").Matched())
}

func TestPairUsers_AlreadyMatched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))

	err := f.svc.PairUsers(ctx, "alice", "carol")
	require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyMatched))
	assert.Equal(t, "bob", dErrors.Field(err, "conflictId"))

	// Carol remains unmatched; the existing pair is intact.
	assert.False(t, f.mustGet(t, "carol").Matched())
	assert.True(t, f.mustGet(t, "alice").MatchedWith("bob"))
}

func TestPairUsers_RepairingSameCoupleRefreshesSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))

	// Bob renames himself; re-pairing refreshes alice's embedded snapshot.
	bob := f.mustGet(t, "bob")
	bob.DisplayName = "Robert"
	require.NoError(t, f.users.Put(ctx, bob))

	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))
	assert.Equal(t, "Robert", f.mustGet(t, "alice").Match.Snapshot.DisplayName)
}

func TestUnpairUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))

	require.NoError(t, f.svc.UnpairUsers(ctx, "alice", "bob"))
	assert.False(t, f.mustGet(t, "alice").Matched())
	assert.False(t, f.mustGet(t, "bob").Matched())
}

func TestUnpairUsers_NotPaired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))

	err := f.svc.UnpairUsers(ctx, "alice", "carol")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotPaired))

	err = f.svc.UnpairUsers(ctx, "carol", "bob")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotPaired))

	assert.True(t, f.mustGet(t, "alice").MatchedWith("bob"))
}

func TestToggleChatAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice")

	require.NoError(t, f.svc.ToggleChatAccess(ctx, "alice", true))
	assert.True(t, f.mustGet(t, "alice").ChatDisabled)

	// Idempotent.
	require.NoError(t, f.svc.ToggleChatAccess(ctx, "alice", true))
	assert.True(t, f.mustGet(t, "alice").ChatDisabled)

	require.NoError(t, f.svc.ToggleChatAccess(ctx, "alice", false))
	assert.False(t, f.mustGet(t, "alice").ChatDisabled)
}

func TestMarkMatchSeen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))

	require.NoError(t, f.svc.MarkMatchSeen(ctx, "alice"))
	assert.True(t, f.mustGet(t, "alice").Match.Seen)
	assert.False(t, f.mustGet(t, "bob").Match.Seen)
}

func TestEnsureSupportContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "support")

	require.NoError(t, f.svc.EnsureSupportContact(ctx, "alice", "support"))
	require.NoError(t, f.svc.EnsureSupportContact(ctx, "alice", "support"))

	alice := f.mustGet(t, "alice")
	assert.True(t, alice.HasContact("support", user.ContactTypeSupport))
	assert.Len(t, alice.Contacts, 1, "repeat provisioning does not duplicate")
	assert.Equal(t, "User support", alice.Contacts[0].DisplayName)

	err := f.svc.EnsureSupportContact(ctx, "", "support")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestEnsureSupportContact_MissingSupportUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice")

	require.NoError(t, f.svc.EnsureSupportContact(ctx, "alice", "support"))

	alice := f.mustGet(t, "alice")
	require.Len(t, alice.Contacts, 1)
	assert.Equal(t, "Support", alice.Contacts[0].DisplayName)
}

func TestPairUsers_UsesRequestClock(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	pinned := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), pinned)

	require.NoError(t, f.svc.PairUsers(ctx, "alice", "bob"))
	assert.Equal(t, pinned, f.mustGet(t, "alice").Match.PairedAt)
}
