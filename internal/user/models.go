package user

import "time"

// ContactType distinguishes how a contact ended up on a user's list.
type ContactType string

const (
	ContactTypeMatch   ContactType = "match"
	ContactTypeSupport ContactType = "support"
)

// Contact is a lightweight pointer to another user. The list is deduplicated
// by (ID, Type).
type Contact struct {
	ID          string      `json:"id"`
	Type        ContactType `json:"type"`
	DisplayName string      `json:"displayName"`
	PhotoURL    string      `json:"photoUrl,omitempty"`
	AddedAt     time.Time   `json:"addedAt"`
}

// PublicProfile is the whitelist projection of a user that is safe to embed
// inside a partner's match reference. Fields are copied explicitly so bulky or
// recursive data (contacts, the match reference itself, credentials) can never
// leak in through a new User field.
type PublicProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// MatchRef is the matchedWith variant of a user's match reference. A nil
// *MatchRef on User is the none variant.
type MatchRef struct {
	PartnerID string        `json:"partnerId"`
	Snapshot  PublicProfile `json:"snapshot"`
	// Seen is cleared when a new match is written so clients can show a
	// "new match" banner until the user acknowledges it.
	Seen     bool      `json:"seen"`
	PairedAt time.Time `json:"pairedAt"`
}

// User is the account record the core operates on. Registration and profile
// CRUD are external; this core only mutates the match reference, the
// chat-disabled flag, the seen flag, and the contact list.
type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email,omitempty"`
	PhotoURL     string    `json:"photoUrl,omitempty"`
	ChatDisabled bool      `json:"chatDisabled"`
	Support      bool      `json:"support"`
	Match        *MatchRef `json:"match,omitempty"`
	Contacts     []Contact `json:"contacts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Matched reports whether the user currently has an active match.
func (u *User) Matched() bool { return u.Match != nil }

// MatchedWith reports whether the user's active match points at partnerID.
func (u *User) MatchedWith(partnerID string) bool {
	return u.Match != nil && u.Match.PartnerID == partnerID
}

// HasContact reports whether a contact with the given id and type is already
// on the list.
func (u *User) HasContact(id string, typ ContactType) bool {
	for _, c := range u.Contacts {
		if c.ID == id && c.Type == typ {
			return true
		}
	}
	return false
}

// Profile returns the whitelist projection used for embedding.
func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
	}
}
