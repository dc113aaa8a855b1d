// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; business rules never live here.
package httptransport

import (
	"context"
	"log/slog"

	"sharepairs/internal/audit"
	"sharepairs/internal/conversation"
	"sharepairs/internal/distress"
	"sharepairs/internal/message"
)

// MatchService is the slice of the matching engine the transport needs.
type MatchService interface {
	PairUsers(ctx context.Context, a, b string) error
	UnpairUsers(ctx context.Context, a, b string) error
	ToggleChatAccess(ctx context.Context, uid string, disabled bool) error
	MarkMatchSeen(ctx context.Context, uid string) error
	EnsureSupportContact(ctx context.Context, uid, supportID string) error
}

// ConversationService is the slice of the consent state machine the transport
// needs.
type ConversationService interface {
	SupportID() string
	Create(ctx context.Context, initiator, other string) (*conversation.Conversation, error)
	EnsureSupportConversation(ctx context.Context, uid string) (*conversation.Conversation, error)
	Accept(ctx context.Context, id, uid string) (*conversation.Conversation, error)
	MarkSeen(ctx context.Context, id, uid string) error
	Close(ctx context.Context, id, uid string) error
	Get(ctx context.Context, id, uid string) (*conversation.Conversation, error)
	ListForUser(ctx context.Context, uid string) ([]*conversation.Conversation, error)
}

// MessageService is the slice of the message log the transport needs.
type MessageService interface {
	Send(ctx context.Context, conversationID, senderID, body, clientToken string) (*message.Message, error)
	Fetch(ctx context.Context, conversationID, uid, cursorToken string, pageSize int) (*message.Page, error)
	Hide(ctx context.Context, messageID, actorID string) error
}

// DistressService is the slice of the escalation pipeline the transport needs.
type DistressService interface {
	Submit(ctx context.Context, userID string, score int, message string, submissionContext map[string]string) (*distress.Event, error)
	Get(ctx context.Context, id string) (*distress.Event, error)
}

// AuditLog exposes the read side of the audit trail to back-office routes.
type AuditLog interface {
	ListByUser(ctx context.Context, userID string) ([]audit.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Handler holds every domain dependency of the HTTP surface.
type Handler struct {
	logger        *slog.Logger
	matches       MatchService
	conversations ConversationService
	messages      MessageService
	distress      DistressService
	auditLog      AuditLog
}

func NewHandler(
	matches MatchService,
	conversations ConversationService,
	messages MessageService,
	distressSvc DistressService,
	auditLog AuditLog,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:        logger,
		matches:       matches,
		conversations: conversations,
		messages:      messages,
		distress:      distressSvc,
		auditLog:      auditLog,
	}
}
