// Package message implements the append-only message log. Records are
// immutable after creation; the conversation summary is updated after the
// message is durable, in that order, without a spanning transaction.
package message

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"sharepairs/internal/audit"
	"sharepairs/internal/conversation"
	"sharepairs/internal/platform/metrics"
	"sharepairs/internal/user"
	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/platform/sentinel"
	"sharepairs/pkg/requestcontext"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Conversations is the slice of the conversation store the message log needs.
type Conversations interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	UpdateSummary(ctx context.Context, id string, summary conversation.Summary, unreadAdd []string, unreadRemove string) error
}

// Gate decides whether a conversation currently accepts messages. Implemented
// by the conversation service (mutual consent or support channel, not closed).
type Gate interface {
	Writable(conv *conversation.Conversation) bool
}

// UserReader is the slice of the user store needed for the chat-disabled check.
type UserReader interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

// Page is one slice of a conversation's history, newest first.
type Page struct {
	Messages   []*Message
	NextCursor string
}

// Service owns message persistence, idempotent retry, and pagination.
type Service struct {
	store   Store
	convs   Conversations
	gate    Gate
	users   UserReader
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(store Store, convs Conversations, gate Gate, users UserReader, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, convs: convs, gate: gate, users: users, audit: auditPub, metrics: m, logger: logger}
}

// Send appends a message after checking participation, the consent gate, and
// the sender's chat access. A retry carrying the same clientToken resolves to
// the already-stored record instead of creating a duplicate.
func (s *Service) Send(ctx context.Context, conversationID, senderID, body, clientToken string) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message body is required")
	}
	if len([]rune(body)) > MaxBodyRunes {
		return nil, dErrors.Newf(dErrors.CodeValidation, "message body exceeds %d characters", MaxBodyRunes)
	}

	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "conversation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "conversation store failure")
	}
	if !conv.IsParticipant(senderID) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "sender is not a participant of this conversation")
	}
	if !s.gate.Writable(conv) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "conversation is not open for messages")
	}

	sender, err := s.users.Get(ctx, senderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "sender not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "user store failure")
	}
	if sender.ChatDisabled {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "chat access is disabled for this user")
	}

	// Idempotent retry fast path.
	if clientToken != "" {
		if existing, err := s.store.FindByToken(ctx, conversationID, clientToken); err == nil {
			return existing, nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "message store failure")
		}
	}

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		ClientToken:    clientToken,
		CreatedAt:      requestcontext.Now(ctx),
	}
	if err := s.store.Append(ctx, msg); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			// Lost the race against our own retry; the first insert won.
			existing, findErr := s.store.FindByToken(ctx, conversationID, clientToken)
			if findErr != nil {
				return nil, dErrors.Wrap(findErr, dErrors.CodeDependency, "message store failure")
			}
			return existing, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "message store failure")
	}

	// The message is durable; the summary update is causally after it. A
	// failure here leaves the summary stale, not the log inconsistent, so the
	// send still succeeds.
	summary := conversation.Summary{
		LastMessageAt:      msg.CreatedAt,
		LastMessagePreview: Preview(body),
		LastSenderID:       senderID,
	}
	unreadAdd := make([]string, 0, 1)
	for _, p := range conv.Participants {
		if p != senderID {
			unreadAdd = append(unreadAdd, p)
		}
	}
	if err := s.convs.UpdateSummary(ctx, conversationID, summary, unreadAdd, senderID); err != nil {
		s.logger.ErrorContext(ctx, "conversation summary update failed",
			"conversation", conversationID,
			"message", msg.ID,
			"error", err,
		)
	}

	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}
	s.emit(ctx, audit.Entry{
		EventType:    audit.EventMessageSent,
		ActorID:      senderID,
		ResourceType: "message",
		ResourceID:   msg.ID,
		Metadata:     map[string]string{"conversationId": conversationID},
	})
	return msg, nil
}

// Fetch returns one page of history in reverse-chronological order together
// with the cursor for the next (older) page. Successive pages reconstruct the
// full history with no gaps and no duplicates, regardless of inserts at the
// head between calls.
func (s *Service) Fetch(ctx context.Context, conversationID, uid, cursorToken string, pageSize int) (*Page, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "conversation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "conversation store failure")
	}
	if !conv.IsParticipant(uid) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "user is not a participant of this conversation")
	}

	cursor, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	msgs, err := s.store.ListBefore(ctx, conversationID, cursor, pageSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "message store failure")
	}

	page := &Page{Messages: msgs}
	if len(msgs) == pageSize {
		last := msgs[len(msgs)-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

// Hide sets the moderation flag on a message. This is the only mutation a
// stored message ever sees.
func (s *Service) Hide(ctx context.Context, messageID, actorID string) error {
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "message not found")
		}
		return dErrors.Wrap(err, dErrors.CodeDependency, "message store failure")
	}
	if err := s.store.SetHidden(ctx, messageID, true); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "message store failure")
	}
	s.emit(ctx, audit.Entry{
		EventType:    audit.EventMessageHidden,
		ActorID:      actorID,
		ResourceType: "message",
		ResourceID:   messageID,
		UserID:       msg.SenderID,
		Metadata:     map[string]string{"conversationId": msg.ConversationID},
	})
	return nil
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Emit(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			"event", string(entry.EventType),
			"resource", entry.ResourceID,
			"error", err,
		)
	}
}
