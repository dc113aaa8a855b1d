package message

import (
	"encoding/base64"
	"encoding/json"
	"time"

	dErrors "sharepairs/pkg/domainerrors"
)

// Cursor is the keyset position for reverse-chronological pagination. Paging
// on (CreatedAt, ID) instead of offsets keeps traversal gap-free and
// duplicate-free even while new messages land at the head.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

// Encode serializes the cursor into the opaque token handed to clients.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a client-supplied cursor token. An empty token means
// "start from the newest message".
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed cursor")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed cursor")
	}
	if c.CreatedAt.IsZero() || c.ID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "malformed cursor")
	}
	return &c, nil
}
