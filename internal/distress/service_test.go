package distress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"sharepairs/internal/audit"
	"sharepairs/internal/platform/metrics"
	"sharepairs/internal/user"
	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/email"
	"sharepairs/pkg/email/mocks"
	"sharepairs/pkg/requestcontext"
)

// Prometheus metrics register once per process.
var testMetrics = metrics.New()

type stubQueue struct {
	records []QueueRecord
	err     error
}

func (q *stubQueue) Enqueue(_ context.Context, rec QueueRecord) error {
	if q.err != nil {
		return q.err
	}
	q.records = append(q.records, rec)
	return nil
}

type fixture struct {
	svc      *Service
	store    *InMemoryStore
	queue    *stubQueue
	sender   *mocks.MockSender
	users    *user.InMemoryStore
	auditLog *audit.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	store := NewInMemoryStore()
	queue := &stubQueue{}
	users := user.NewInMemoryStore()
	auditLog := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, users.Put(context.Background(), &user.User{
		ID:          "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
	}))

	svc := NewService(
		Config{From: "alerts@sharepairs.local", Recipients: []string{"oncall@sharepairs.local"}},
		store, queue, nil, users, sender, audit.NewPublisher(auditLog), testMetrics, logger,
	)
	return &fixture{svc: svc, store: store, queue: queue, sender: sender, users: users, auditLog: auditLog}
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, score := range []int{-1, 101, 500} {
		_, err := f.svc.Submit(ctx, "alice", score, "", nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), score)
	}

	_, err := f.svc.Submit(ctx, "", 50, "", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestSubmit_BelowThresholdIsRecordedOnly(t *testing.T) {
	f := newFixture(t)

	ev, err := f.svc.Submit(context.Background(), "alice", 40, "rough day", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusRecorded, ev.Status)
	assert.Empty(t, f.queue.records, "no alert job for low scores")

	stored, err := f.store.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, stored.Status)
}

func TestSubmit_BoundaryScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Submit(ctx, "alice", 69, "", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, ev.Status)

	ev, err = f.svc.Submit(ctx, "alice", 70, "", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, ev.Status)
	assert.Len(t, f.queue.records, 1)
}

func TestSubmit_HighScoreQueuesAlertJob(t *testing.T) {
	f := newFixture(t)

	ev, err := f.svc.Submit(context.Background(), "alice", 90, "please help", map[string]string{"screen": "home"})
	require.NoError(t, err)

	assert.Equal(t, StatusQueued, ev.Status)
	require.Len(t, f.queue.records, 1)
	rec := f.queue.records[0]
	assert.Equal(t, ev.ID, rec.EventID)
	assert.Equal(t, "alice", rec.UserID)
	assert.Equal(t, 90, rec.Score)

	var submitted bool
	for _, e := range f.auditLog.All() {
		if e.EventType == audit.EventDistressSubmitted {
			submitted = true
			assert.Equal(t, "queued", e.Metadata["status"])
		}
	}
	assert.True(t, submitted)
}

func TestSubmit_RateWindowBlocksSecondEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "alice", 90, "", nil)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "alice", 95, "", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
	assert.Len(t, f.queue.records, 1, "second escalation not queued")

	// Low scores are unaffected by the window.
	ev, err := f.svc.Submit(ctx, "alice", 30, "", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, ev.Status)

	// Another user escalates independently.
	require.NoError(t, f.users.Put(ctx, &user.User{ID: "bob"}))
	_, err = f.svc.Submit(ctx, "bob", 90, "", nil)
	assert.NoError(t, err)
}

func TestSubmit_WindowExpires(t *testing.T) {
	f := newFixture(t)

	past := time.Now().Add(-20 * time.Minute)
	_, err := f.svc.Submit(requestcontext.WithTime(context.Background(), past), "alice", 90, "", nil)
	require.NoError(t, err)

	// 20 minutes later the 15-minute window has passed.
	ev, err := f.svc.Submit(context.Background(), "alice", 90, "", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, ev.Status)
}

func TestSubmit_EnqueueFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("broker unreachable")

	ev, err := f.svc.Submit(context.Background(), "alice", 90, "please help", nil)
	require.NoError(t, err, "the submission itself succeeds")

	assert.Equal(t, StatusQueueFailed, ev.Status)
	assert.Contains(t, ev.QueueError, "broker unreachable")

	stored, err := f.store.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueueFailed, stored.Status)

	var queueFailed bool
	for _, e := range f.auditLog.All() {
		if e.EventType == audit.EventDistressQueueFailed {
			queueFailed = true
		}
	}
	assert.True(t, queueFailed)
}

func TestProcessQueueRecord_DispatchesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Submit(ctx, "alice", 90, "please help", nil)
	require.NoError(t, err)
	rec := f.queue.records[0]

	f.sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg email.Message) (string, error) {
			assert.Equal(t, "alerts@sharepairs.local", msg.From)
			assert.Equal(t, []string{"oncall@sharepairs.local"}, msg.To)
			assert.Contains(t, msg.Subject, "Alice")
			assert.Contains(t, msg.Subject, "90")
			assert.Contains(t, msg.TextBody, "please help")
			return "delivery-123", nil
		}).
		Times(1)

	require.NoError(t, f.svc.ProcessQueueRecord(ctx, rec))

	stored, err := f.store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Status)
	assert.Equal(t, "delivery-123", stored.DeliveryID)
	require.NotNil(t, stored.EmailedAt)

	// Redelivery of the same record is a no-op: Times(1) above would fail the
	// test if the sender were called again.
	require.NoError(t, f.svc.ProcessQueueRecord(ctx, rec))

	stored, err = f.store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "delivery-123", stored.DeliveryID, "first delivery id survives redelivery")
}

func TestProcessQueueRecord_DispatchFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.svc.Submit(ctx, "alice", 90, "", nil)
	require.NoError(t, err)

	f.sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return("", errors.New("smtp timeout"))

	err = f.svc.ProcessQueueRecord(ctx, f.queue.records[0])
	require.Error(t, err, "the consumer needs the error to retry")

	stored, err := f.store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, stored.Status, "status untouched until dispatch succeeds")
}

func TestProcessQueueRecord_MissingEvent(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ProcessQueueRecord(context.Background(), QueueRecord{EventID: "ghost"})
	assert.Error(t, err)
}

func TestProcessQueueRecord_FallsBackToDerivedName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.Put(ctx, &user.User{ID: "bob", Email: "bob.marley@example.com"}))
	_, err := f.svc.Submit(ctx, "bob", 90, "", nil)
	require.NoError(t, err)

	f.sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg email.Message) (string, error) {
			assert.Contains(t, msg.Subject, "Bob Marley")
			return "delivery-9", nil
		})

	require.NoError(t, f.svc.ProcessQueueRecord(ctx, f.queue.records[0]))
}

type stubGuard struct {
	recent bool
	marked int
}

func (g *stubGuard) Recent(context.Context, string) (bool, error) { return g.recent, nil }
func (g *stubGuard) Mark(context.Context, string) error           { g.marked++; return nil }

func TestSubmit_GuardFastPath(t *testing.T) {
	f := newFixture(t)
	guard := &stubGuard{}
	f.svc.guard = guard
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "alice", 90, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, guard.marked)

	guard.recent = true
	_, err = f.svc.Submit(ctx, "bob", 90, "", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited),
		"guard hit short-circuits without a store query")
}
