// Package match implements exclusive pairwise matching between users. All
// multi-record mutations run inside a single transaction so a pairing either
// fully applies or fully aborts.
package match

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sharepairs/internal/audit"
	"sharepairs/internal/user"
	dErrors "sharepairs/pkg/domainerrors"
	"sharepairs/pkg/platform/sentinel"
	"sharepairs/pkg/requestcontext"
)

// Service is the matching engine. It owns the match reference and the
// chat-disabled flag on user records; nothing else writes them.
type Service struct {
	store  user.Store
	tx     user.StoreTx
	audit  *audit.Publisher
	logger *slog.Logger
}

func NewService(store user.Store, tx user.StoreTx, auditPub *audit.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, tx: tx, audit: auditPub, logger: logger}
}

// PairUsers atomically matches a and b. Fails ALREADY_MATCHED (carrying the
// conflicting partner id) when either side is matched to a third party.
// Re-pairing an existing couple refreshes both embedded snapshots and
// succeeds.
func (s *Service) PairUsers(ctx context.Context, a, b string) error {
	if a == "" || b == "" {
		return dErrors.New(dErrors.CodeValidation, "both user ids are required")
	}
	if a == b {
		return dErrors.New(dErrors.CodeValidation, "cannot match a user with themselves")
	}

	now := requestcontext.Now(ctx)

	err := s.tx.RunInTx(ctx, func(store user.Store) error {
		ua, err := store.Get(ctx, a)
		if err != nil {
			return translateStore(err, "user "+a)
		}
		ub, err := store.Get(ctx, b)
		if err != nil {
			return translateStore(err, "user "+b)
		}

		if ua.Matched() && !ua.MatchedWith(b) {
			return dErrors.Newf(dErrors.CodeAlreadyMatched, "user %s is already matched", a).
				With("conflictId", ua.Match.PartnerID)
		}
		if ub.Matched() && !ub.MatchedWith(a) {
			return dErrors.Newf(dErrors.CodeAlreadyMatched, "user %s is already matched", b).
				With("conflictId", ub.Match.PartnerID)
		}

		// Embed the whitelist projection of the partner, never the raw record.
		if err := store.SetMatch(ctx, a, user.MatchRef{PartnerID: b, Snapshot: ub.Profile(), PairedAt: now}); err != nil {
			return translateStore(err, "user "+a)
		}
		if err := store.SetMatch(ctx, b, user.MatchRef{PartnerID: a, Snapshot: ua.Profile(), PairedAt: now}); err != nil {
			return translateStore(err, "user "+b)
		}

		if err := store.AddContact(ctx, a, contactFor(ub, now)); err != nil {
			return translateStore(err, "user "+a)
		}
		if err := store.AddContact(ctx, b, contactFor(ua, now)); err != nil {
			return translateStore(err, "user "+b)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "pairing aborted by a concurrent transaction")
		}
		return err
	}

	s.emit(ctx, audit.Entry{
		EventType:    audit.EventMatchPaired,
		ActorID:      actor(ctx),
		ResourceType: "match",
		ResourceID:   a + "+" + b,
		UserID:       a,
		Metadata:     map[string]string{"partnerId": b},
	})
	return nil
}

// UnpairUsers clears both match references. Fails NOT_PAIRED unless the two
// sides currently reference each other.
func (s *Service) UnpairUsers(ctx context.Context, a, b string) error {
	if a == "" || b == "" || a == b {
		return dErrors.New(dErrors.CodeValidation, "two distinct user ids are required")
	}

	err := s.tx.RunInTx(ctx, func(store user.Store) error {
		ua, err := store.Get(ctx, a)
		if err != nil {
			return translateStore(err, "user "+a)
		}
		ub, err := store.Get(ctx, b)
		if err != nil {
			return translateStore(err, "user "+b)
		}

		if !ua.MatchedWith(b) || !ub.MatchedWith(a) {
			return dErrors.New(dErrors.CodeNotPaired, "users are not paired with each other")
		}

		if err := store.ClearMatch(ctx, a); err != nil {
			return translateStore(err, "user "+a)
		}
		if err := store.ClearMatch(ctx, b); err != nil {
			return translateStore(err, "user "+b)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "unpairing aborted by a concurrent transaction")
		}
		return err
	}

	s.emit(ctx, audit.Entry{
		EventType:    audit.EventMatchUnpaired,
		ActorID:      actor(ctx),
		ResourceType: "match",
		ResourceID:   a + "+" + b,
		UserID:       a,
		Metadata:     map[string]string{"partnerId": b},
	})
	return nil
}

// ToggleChatAccess sets the chat-disabled flag. Idempotent and independent of
// matching state, so safety escalations never depend on pairing.
func (s *Service) ToggleChatAccess(ctx context.Context, uid string, disabled bool) error {
	if uid == "" {
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if err := s.store.SetChatDisabled(ctx, uid, disabled); err != nil {
		return translateStore(err, "user "+uid)
	}

	state := "enabled"
	if disabled {
		state = "disabled"
	}
	s.emit(ctx, audit.Entry{
		EventType:    audit.EventChatAccessToggled,
		ActorID:      actor(ctx),
		ResourceType: "user",
		ResourceID:   uid,
		UserID:       uid,
		Metadata:     map[string]string{"chat": state},
	})
	return nil
}

// EnsureSupportContact provisions the support account on uid's contact list.
// Idempotent; the contact list dedupes on (id, type).
func (s *Service) EnsureSupportContact(ctx context.Context, uid, supportID string) error {
	if uid == "" || supportID == "" {
		return dErrors.New(dErrors.CodeValidation, "user id and support id are required")
	}

	contact := user.Contact{
		ID:          supportID,
		Type:        user.ContactTypeSupport,
		DisplayName: "Support",
		AddedAt:     requestcontext.Now(ctx),
	}
	if sup, err := s.store.Get(ctx, supportID); err == nil {
		contact.DisplayName = sup.DisplayName
		contact.PhotoURL = sup.PhotoURL
	}

	if err := s.store.AddContact(ctx, uid, contact); err != nil {
		return translateStore(err, "user "+uid)
	}
	return nil
}

// MarkMatchSeen acknowledges the "new match" indicator for uid.
func (s *Service) MarkMatchSeen(ctx context.Context, uid string) error {
	if uid == "" {
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if err := s.store.SetMatchSeen(ctx, uid); err != nil {
		return translateStore(err, "user "+uid)
	}
	return nil
}

func contactFor(partner *user.User, now time.Time) user.Contact {
	return user.Contact{
		ID:          partner.ID,
		Type:        user.ContactTypeMatch,
		DisplayName: partner.DisplayName,
		PhotoURL:    partner.PhotoURL,
		AddedAt:     now,
	}
}

func actor(ctx context.Context) string {
	if uid := requestcontext.UserID(ctx); uid != "" {
		return uid
	}
	return "system"
}

// emit writes an audit entry, logging failures to the operational channel.
// Audit is a compliance side-channel; it never rolls back or blocks the
// business action that triggered it.
func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Emit(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			"event", string(entry.EventType),
			"resource", entry.ResourceID,
			"error", err,
		)
	}
}

func translateStore(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeDependency, "user store failure")
}
