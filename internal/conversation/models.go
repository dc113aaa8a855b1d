package conversation

import (
	"sort"
	"time"
)

// State of the consent handshake. REQUESTED is one-sided; MUTUAL means both
// participants consented; CLOSED is terminal for writing but the record is
// never deleted.
type State string

const (
	StateRequested State = "requested"
	StateMutual    State = "mutual"
	StateClosed    State = "closed"
)

// Type distinguishes peer conversations from the reserved support channel.
type Type string

const (
	TypePeer    Type = "peer"
	TypeSupport Type = "support"
)

// CanonicalID derives the conversation id from the sorted participant pair,
// so either creation order converges on the same record.
func CanonicalID(a, b string) string {
	x, y := SortPair(a, b)
	return x + "+" + y
}

// SortPair returns the two ids in ascending order.
func SortPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Conversation is the consent-gated channel between exactly two participants.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"` // always sorted, always len 2
	Requester    string   `json:"requester"`
	Recipient    string   `json:"recipient"`
	// ConsentSet holds the participants who have accepted. MutualConsent is a
	// pure function of ConsentSet and Participants; it is stored denormalized
	// for querying but recomputed on every consent change.
	ConsentSet    []string `json:"consentSet"`
	MutualConsent bool     `json:"mutualConsent"`
	Type          Type     `json:"type"`
	Closed        bool     `json:"closed"`

	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
	LastMessagePreview string     `json:"lastMessagePreview,omitempty"`
	LastSenderID       string     `json:"lastSenderId,omitempty"`

	UnreadBy []string             `json:"unreadBy"`
	SeenAt   map[string]time.Time `json:"seenAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsParticipant reports whether uid is one of the two participants.
func (c *Conversation) IsParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// HasConsented reports whether uid is in the consent set.
func (c *Conversation) HasConsented(uid string) bool {
	for _, u := range c.ConsentSet {
		if u == uid {
			return true
		}
	}
	return false
}

// ComputeMutual derives the mutual flag: true iff every participant is in the
// consent set.
func (c *Conversation) ComputeMutual() bool {
	for _, p := range c.Participants {
		if !c.HasConsented(p) {
			return false
		}
	}
	return len(c.Participants) > 0
}

// State reduces the stored fields to the handshake state.
func (c *Conversation) State() State {
	switch {
	case c.Closed:
		return StateClosed
	case c.MutualConsent:
		return StateMutual
	default:
		return StateRequested
	}
}

// HasUnread reports whether uid has the unread marker set.
func (c *Conversation) HasUnread(uid string) bool {
	for _, u := range c.UnreadBy {
		if u == uid {
			return true
		}
	}
	return false
}

// normalizeSet sorts and deduplicates a participant id set in place.
func normalizeSet(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	var prev string
	for i, id := range ids {
		if i == 0 || id != prev {
			out = append(out, id)
		}
		prev = id
	}
	return out
}
