package message

import "time"

// MaxBodyRunes caps a single message body.
const MaxBodyRunes = 4000

// PreviewRunes is the length of the conversation summary preview.
const PreviewRunes = 140

// Message is an append-only record. After creation nothing mutates it except
// the Hidden moderation flag; there is no edit and no delete.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Body           string    `json:"body"`
	// ClientToken is the caller-supplied idempotency token. A retried send
	// carrying the same token resolves to the original record.
	ClientToken string    `json:"clientToken,omitempty"`
	Hidden      bool      `json:"hidden"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Preview truncates the body for the conversation summary.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= PreviewRunes {
		return body
	}
	return string(runes[:PreviewRunes])
}
