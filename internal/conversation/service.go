// Package conversation implements the consent state machine that gates
// messaging between two users. Conversations are created idempotently from a
// canonical id, consent is a commutative set union, and nothing here requires
// a cross-record transaction.
package conversation

import (
	"context"
	"errors"
	"log/slog"

	"sharepairs/internal/audit"
	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/platform/sentinel"
	"sharepairs/pkg/requestcontext"
)

// Service owns conversation records and the writability gate.
type Service struct {
	store Store
	audit *audit.Publisher
	// supportID is the reserved support account. Conversations involving it
	// bypass the consent handshake entirely.
	supportID string
	logger    *slog.Logger
}

func NewService(store Store, auditPub *audit.Publisher, supportID string, logger *slog.Logger) *Service {
	return &Service{store: store, audit: auditPub, supportID: supportID, logger: logger}
}

// SupportID returns the reserved support account id.
func (s *Service) SupportID() string { return s.supportID }

// Create returns the conversation between initiator and other, creating it in
// REQUESTED state (consent set = {initiator}) when absent. Both argument
// orders converge on the same record; repeat calls return it unchanged.
func (s *Service) Create(ctx context.Context, initiator, other string) (*Conversation, error) {
	if initiator == "" || other == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "both participant ids are required")
	}
	if initiator == other {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot start a conversation with yourself")
	}

	a, b := SortPair(initiator, other)
	now := requestcontext.Now(ctx)

	conv := &Conversation{
		ID:           CanonicalID(initiator, other),
		Participants: []string{a, b},
		Requester:    initiator,
		Recipient:    other,
		ConsentSet:   []string{initiator},
		Type:         TypePeer,
		CreatedAt:    now,
	}
	// The support channel skips the handshake: both sides are consented from
	// the start.
	if initiator == s.supportID || other == s.supportID {
		conv.Type = TypeSupport
		conv.ConsentSet = []string{a, b}
	}
	conv.MutualConsent = conv.ComputeMutual()

	stored, created, err := s.store.CreateIfAbsent(ctx, conv)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "conversation store failure")
	}
	if created {
		s.emit(ctx, audit.Entry{
			EventType:    audit.EventConversationCreated,
			ActorID:      initiator,
			ResourceType: "conversation",
			ResourceID:   stored.ID,
			UserID:       other,
			Metadata:     map[string]string{"type": string(stored.Type)},
		})
	}
	return stored, nil
}

// EnsureSupportConversation creates the auto-mutual support conversation for
// uid if it does not exist yet.
func (s *Service) EnsureSupportConversation(ctx context.Context, uid string) (*Conversation, error) {
	if uid == s.supportID {
		return nil, dErrors.New(dErrors.CodeValidation, "support account has no support conversation")
	}
	return s.Create(ctx, uid, s.supportID)
}

// Accept adds uid to the consent set and recomputes the mutual flag. The
// update is a set union, so repeated or concurrent calls from either
// participant converge: once mutual, never back.
func (s *Service) Accept(ctx context.Context, id, uid string) (*Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStore(err)
	}
	if !conv.IsParticipant(uid) {
		return nil, dErrors.New(dErrors.CodeValidation, "user is not a participant of this conversation")
	}

	alreadyConsented := conv.HasConsented(uid)
	updated, err := s.store.AddConsent(ctx, id, uid)
	if err != nil {
		return nil, translateStore(err)
	}

	if !alreadyConsented {
		s.emit(ctx, audit.Entry{
			EventType:    audit.EventConsentGranted,
			ActorID:      uid,
			ResourceType: "conversation",
			ResourceID:   id,
			Metadata:     map[string]string{"mutualConsent": boolString(updated.MutualConsent)},
		})
	}
	return updated, nil
}

// MarkSeen clears uid's unread marker and records a seen timestamp. No-op if
// there was nothing unread.
func (s *Service) MarkSeen(ctx context.Context, id, uid string) error {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return translateStore(err)
	}
	if !conv.IsParticipant(uid) {
		return dErrors.New(dErrors.CodeValidation, "user is not a participant of this conversation")
	}
	if err := s.store.MarkSeen(ctx, id, uid, requestcontext.Now(ctx)); err != nil {
		return translateStore(err)
	}
	return nil
}

// Close marks the conversation closed. Participant-only; the record and its
// messages remain readable.
func (s *Service) Close(ctx context.Context, id, uid string) error {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return translateStore(err)
	}
	if !conv.IsParticipant(uid) {
		return dErrors.New(dErrors.CodePermissionDenied, "only a participant may close a conversation")
	}
	if conv.Closed {
		return nil
	}
	if err := s.store.SetClosed(ctx, id); err != nil {
		return translateStore(err)
	}
	s.emit(ctx, audit.Entry{
		EventType:    audit.EventConversationClosed,
		ActorID:      uid,
		ResourceType: "conversation",
		ResourceID:   id,
	})
	return nil
}

// Get loads a conversation for a participant.
func (s *Service) Get(ctx context.Context, id, uid string) (*Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStore(err)
	}
	if !conv.IsParticipant(uid) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "user is not a participant of this conversation")
	}
	return conv, nil
}

// ListForUser returns every conversation uid participates in.
func (s *Service) ListForUser(ctx context.Context, uid string) ([]*Conversation, error) {
	convs, err := s.store.ListByUser(ctx, uid)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "conversation store failure")
	}
	return convs, nil
}

// Writable is the gate the message log consults: messages flow only with
// mutual consent or through the support channel, and never once closed.
func (s *Service) Writable(conv *Conversation) bool {
	if conv.Closed {
		return false
	}
	if conv.MutualConsent {
		return true
	}
	return conv.IsParticipant(s.supportID)
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

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func translateStore(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "conversation not found")
	}
	return dErrors.Wrap(err, dErrors.CodeDependency, "conversation store failure")
}
