// Package distress implements the escalation pipeline for self-reported
// distress scores. Submissions are durable before anything else happens; the
// notification path is asynchronous and at-least-once, with the stored event
// status making redelivery safe.
package distress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sharepairs/internal/audit"
	"sharepairs/internal/platform/metrics"
	"sharepairs/internal/user"
	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/email"
	"sharepairs/pkg/platform/sentinel"
	"sharepairs/pkg/requestcontext"
)

const (
	// DefaultThreshold is the score at or above which a submission escalates.
	DefaultThreshold = 70
	// DefaultRateWindow suppresses repeat escalations per user.
	DefaultRateWindow = 15 * time.Minute

	maxMessageRunes = 2000
)

// Config tunes the escalation pipeline.
type Config struct {
	// Threshold at or above which an event is queued for notification.
	Threshold int
	// RateWindow within which a second high-score submission is rejected.
	RateWindow time.Duration
	// From is the sender address on outbound alerts.
	From string
	// Recipients receive the alert emails (the on-call support inbox).
	Recipients []string
}

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.RateWindow == 0 {
		c.RateWindow = DefaultRateWindow
	}
	return c
}

// Service is the distress escalation pipeline. Submit is the synchronous half
// run in the API process; ProcessQueueRecord is the worker half consuming the
// alert queue.
type Service struct {
	cfg     Config
	store   Store
	queue   Queue
	guard   WindowGuard
	users   user.Store
	sender  email.Sender
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewService(
	cfg Config,
	store Store,
	queue Queue,
	guard WindowGuard,
	users user.Store,
	sender email.Sender,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:     cfg.withDefaults(),
		store:   store,
		queue:   queue,
		guard:   guard,
		users:   users,
		sender:  sender,
		audit:   auditPub,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("sharepairs/distress"),
	}
}

// Submit records a distress event and, for scores at or above the threshold,
// enqueues a notification job. The event is durable before enqueueing: an
// enqueue failure downgrades the event to queue_failed but the submission
// still succeeds.
//
// One escalation per user per rate window; a second high-score submission
// inside the window fails RATE_LIMITED without recording anything.
func (s *Service) Submit(ctx context.Context, userID string, score int, message string, submissionContext map[string]string) (*Event, error) {
	ctx, span := s.tracer.Start(ctx, "distress.Submit",
		trace.WithAttributes(attribute.Int("distress.score", score)))
	defer span.End()

	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if score < 0 || score > 100 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "score must be between 0 and 100, got %d", score)
	}
	if len([]rune(message)) > maxMessageRunes {
		return nil, dErrors.New(dErrors.CodeValidation, "message is too long")
	}

	now := requestcontext.Now(ctx)
	escalate := score >= s.cfg.Threshold

	if escalate {
		limited, err := s.withinWindow(ctx, userID, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "distress store failure")
		}
		if limited {
			s.metrics.DistressRateLimited.Inc()
			return nil, dErrors.New(dErrors.CodeRateLimited, "a recent distress alert is already being handled")
		}
	}

	ev := &Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Score:     score,
		Message:   message,
		Context:   submissionContext,
		Status:    StatusRecorded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if escalate {
		ev.Status = StatusQueued
	}

	if err := s.store.Insert(ctx, ev); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not record distress event")
	}

	s.emit(ctx, audit.Entry{
		EventType:    audit.EventDistressSubmitted,
		ActorID:      userID,
		ResourceType: "distress_event",
		ResourceID:   ev.ID,
		UserID:       userID,
		Metadata: map[string]string{
			"score":  strconv.Itoa(score),
			"status": string(ev.Status),
		},
	})

	if escalate {
		s.markWindow(ctx, userID)
		if err := s.queue.Enqueue(ctx, QueueRecord{
			EventID:    ev.ID,
			UserID:     userID,
			Score:      score,
			Message:    message,
			OccurredAt: now,
		}); err != nil {
			// The event is already durable. Downgrade it so operators can
			// re-drive the alert, and report success to the submitter.
			s.logger.ErrorContext(ctx, "distress alert enqueue failed",
				"eventId", ev.ID, "error", err)
			if ferr := s.store.SetQueueFailed(ctx, ev.ID, err.Error()); ferr != nil {
				s.logger.ErrorContext(ctx, "could not mark distress event queue_failed",
					"eventId", ev.ID, "error", ferr)
			} else {
				ev.Status = StatusQueueFailed
				ev.QueueError = err.Error()
			}
			s.emit(ctx, audit.Entry{
				EventType:    audit.EventDistressQueueFailed,
				ActorID:      userID,
				ResourceType: "distress_event",
				ResourceID:   ev.ID,
				UserID:       userID,
				Metadata:     map[string]string{"error": err.Error()},
			})
		}
	}

	s.metrics.DistressSubmitted.WithLabelValues(string(ev.Status)).Inc()
	return ev, nil
}

// Get returns a single distress event.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	ev, err := s.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "distress event not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "distress store failure")
	}
	return ev, nil
}

// ProcessQueueRecord handles one alert job from the queue. Safe under
// redelivery: the stored status is re-checked and an already-sent event is a
// no-op, so duplicate deliveries never produce duplicate notifications.
//
// Dispatch errors propagate to the caller so the consumer can retry and
// eventually dead-letter the record.
func (s *Service) ProcessQueueRecord(ctx context.Context, rec QueueRecord) error {
	ctx, span := s.tracer.Start(ctx, "distress.ProcessQueueRecord",
		trace.WithAttributes(attribute.String("distress.event_id", rec.EventID)))
	defer span.End()

	ev, err := s.store.Get(ctx, rec.EventID)
	if err != nil {
		return fmt.Errorf("load distress event %s: %w", rec.EventID, err)
	}
	if ev.Status == StatusSent {
		s.logger.InfoContext(ctx, "distress alert already dispatched, skipping",
			"eventId", ev.ID, "deliveryId", ev.DeliveryID)
		return nil
	}

	msg := s.composeAlert(ctx, ev)

	start := time.Now()
	deliveryID, err := s.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("dispatch distress alert %s: %w", ev.ID, err)
	}
	s.metrics.DistressDispatchTime.Observe(time.Since(start).Seconds())

	sentAt := requestcontext.Now(ctx)
	if err := s.store.MarkSent(ctx, ev.ID, deliveryID, sentAt); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// A concurrent worker won the race. Its delivery id stands.
			s.logger.WarnContext(ctx, "distress alert dispatched twice, keeping first delivery id",
				"eventId", ev.ID)
			return nil
		}
		return fmt.Errorf("mark distress event %s sent: %w", ev.ID, err)
	}

	s.metrics.DistressAlertsSent.Inc()
	s.emit(ctx, audit.Entry{
		EventType:    audit.EventDistressAlertSent,
		ActorID:      "system",
		ResourceType: "distress_event",
		ResourceID:   ev.ID,
		UserID:       ev.UserID,
		Metadata:     map[string]string{"deliveryId": deliveryID},
	})
	return nil
}

// composeAlert builds the notification email. The user lookup is best effort:
// a missing or unreadable record falls back to the raw user id so an alert is
// never blocked on profile data.
func (s *Service) composeAlert(ctx context.Context, ev *Event) email.Message {
	name := ev.UserID
	address := ""
	if u, err := s.users.Get(ctx, ev.UserID); err == nil {
		address = u.Email
		switch {
		case u.DisplayName != "":
			name = u.DisplayName
		case u.Email != "":
			first, last := email.DeriveNameFromEmail(u.Email)
			name = first + " " + last
		}
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "user lookup for distress alert failed",
			"userId", ev.UserID, "error", err)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s reported a distress score of %d.\r\n\r\n", name, ev.Score)
	if ev.Message != "" {
		fmt.Fprintf(&body, "Their message:\r\n%s\r\n\r\n", ev.Message)
	}
	if address != "" {
		fmt.Fprintf(&body, "Contact: %s\r\n", address)
	}
	fmt.Fprintf(&body, "Reported at: %s\r\nEvent: %s\r\n", ev.CreatedAt.UTC().Format(time.RFC3339), ev.ID)

	return email.Message{
		From:     s.cfg.From,
		To:       s.cfg.Recipients,
		Subject:  fmt.Sprintf("Distress alert: %s (score %d)", name, ev.Score),
		TextBody: body.String(),
	}
}

// withinWindow consults the fast-path guard first, then the store. The guard
// may lose state; the store query is the authority.
func (s *Service) withinWindow(ctx context.Context, userID string, now time.Time) (bool, error) {
	if s.guard != nil {
		recent, err := s.guard.Recent(ctx, userID)
		if err != nil {
			s.logger.WarnContext(ctx, "distress window guard unavailable, falling back to store",
				"userId", userID, "error", err)
		} else if recent {
			return true, nil
		}
	}
	return s.store.HasHighScoreSince(ctx, userID, s.cfg.Threshold, now.Add(-s.cfg.RateWindow))
}

func (s *Service) markWindow(ctx context.Context, userID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Mark(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "could not mark distress window",
			"userId", userID, "error", err)
	}
}

// emit writes an audit entry, logging failures to the operational channel.
func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Emit(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			"event", string(entry.EventType),
			"resource", entry.ResourceID,
			"error", err,
		)
	}
}
