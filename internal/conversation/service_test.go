package conversation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharepairs/internal/audit"
	dErrors "sharepairs/pkg/domainerrors"
)

const supportID = "support"

func newTestService(t *testing.T) (*Service, *audit.InMemoryStore) {
	t.Helper()
	auditLog := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(NewInMemoryStore(), audit.NewPublisher(auditLog), supportID, logger)
	return svc, auditLog
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "alice+bob", CanonicalID("alice", "bob"))
	assert.Equal(t, "alice+bob", CanonicalID("bob", "alice"))
	assert.Equal(t, "a+b", CanonicalID("b", "a"))
}

func TestCreate_RequestedState(t *testing.T) {
	ctx := context.Background()
	svc, auditLog := newTestService(t)

	conv, err := svc.Create(ctx, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice+bob", conv.ID)
	assert.Equal(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, "bob", conv.Requester)
	assert.Equal(t, "alice", conv.Recipient)
	assert.Equal(t, []string{"bob"}, conv.ConsentSet)
	assert.False(t, conv.MutualConsent)
	assert.Equal(t, StateRequested, conv.State())
	assert.Equal(t, TypePeer, conv.Type)

	entries := auditLog.All()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventConversationCreated, entries[0].EventType)
}

func TestCreate_IdempotentAcrossArgumentOrder(t *testing.T) {
	ctx := context.Background()
	svc, auditLog := newTestService(t)

	first, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	second, err := svc.Create(ctx, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// The second call returned the stored record; bob did not become requester.
	assert.Equal(t, "alice", second.Requester)
	assert.Equal(t, []string{"alice"}, second.ConsentSet)
	assert.Len(t, auditLog.All(), 1, "only the creating call audits")
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "alice", "alice")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Create(context.Background(), "alice", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCreate_SupportChannelIsAutoMutual(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	conv, err := svc.Create(ctx, "alice", supportID)
	require.NoError(t, err)
	assert.Equal(t, TypeSupport, conv.Type)
	assert.True(t, conv.MutualConsent)
	assert.Equal(t, StateMutual, conv.State())
	assert.True(t, svc.Writable(conv))
}

func TestEnsureSupportConversation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	conv, err := svc.EnsureSupportConversation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, TypeSupport, conv.Type)

	again, err := svc.EnsureSupportConversation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	_, err = svc.EnsureSupportConversation(ctx, supportID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAccept_ReachesMutual(t *testing.T) {
	ctx := context.Background()
	svc, auditLog := newTestService(t)

	conv, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, svc.Writable(conv))

	updated, err := svc.Accept(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, updated.MutualConsent)
	assert.Equal(t, StateMutual, updated.State())
	assert.True(t, svc.Writable(updated))

	var consentEvents int
	for _, e := range auditLog.All() {
		if e.EventType == audit.EventConsentGranted {
			consentEvents++
		}
	}
	assert.Equal(t, 1, consentEvents)
}

func TestAccept_IdempotentAndMonotonic(t *testing.T) {
	ctx := context.Background()
	svc, auditLog := newTestService(t)

	conv, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	for range 3 {
		updated, err := svc.Accept(ctx, conv.ID, "bob")
		require.NoError(t, err)
		assert.True(t, updated.MutualConsent, "mutual never regresses")
		assert.ElementsMatch(t, []string{"alice", "bob"}, updated.ConsentSet)
	}

	var consentEvents int
	for _, e := range auditLog.All() {
		if e.EventType == audit.EventConsentGranted {
			consentEvents++
		}
	}
	assert.Equal(t, 1, consentEvents, "repeat accepts do not re-audit")
}

func TestAccept_ConcurrentCallsConverge(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	conv, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		for _, uid := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(uid string) {
				defer wg.Done()
				_, err := svc.Accept(ctx, conv.ID, uid)
				assert.NoError(t, err)
			}(uid)
		}
	}
	wg.Wait()

	final, err := svc.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, final.MutualConsent)
	assert.ElementsMatch(t, []string{"alice", "bob"}, final.ConsentSet)
}

func TestAccept_NonParticipant(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	conv, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, conv.ID, "mallory")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAccept_MissingConversation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Accept(context.Background(), "nope+nothere", "nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	conv, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, conv.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, conv.ID, "alice"))

	closed, err := svc.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	assert.Equal(t, StateClosed, closed.State())
	assert.False(t, svc.Writable(closed), "closed conversations reject writes")

	// Replaying close is a no-op.
	require.NoError(t, svc.Close(ctx, conv.ID, "bob"))

	err = svc.Close(ctx, conv.ID, "mallory")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func TestMarkSeen(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	conv, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, svc.MarkSeen(ctx, conv.ID, "bob"))

	err = svc.MarkSeen(ctx, conv.ID, "mallory")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGet_ParticipantOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	conv, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.Get(ctx, conv.ID, "mallory")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePermissionDenied))
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", "carol")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", "carol")
	require.NoError(t, err)

	convs, err := svc.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	convs, err = svc.ListForUser(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, convs)
}
