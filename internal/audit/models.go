package audit

import "time"

// EventType classifies audit entries. The set is closed on purpose: adding a
// type means deciding its retention story, not just inventing a string.
type EventType string

const (
	// Matching events
	EventMatchPaired       EventType = "match_paired"
	EventMatchUnpaired     EventType = "match_unpaired"
	EventChatAccessToggled EventType = "chat_access_toggled"

	// Conversation events
	EventConversationCreated EventType = "conversation_created"
	EventConsentGranted      EventType = "consent_granted"
	EventConversationClosed  EventType = "conversation_closed"

	// Message events
	EventMessageSent   EventType = "message_sent"
	EventMessageHidden EventType = "message_hidden"

	// Distress events
	EventDistressSubmitted   EventType = "distress_submitted"
	EventDistressAlertSent   EventType = "distress_alert_sent"
	EventDistressQueueFailed EventType = "distress_queue_failed"
)

// Entry is a write-once audit record. Immutability after Append is a
// compliance invariant: no component updates or deletes entries.
type Entry struct {
	ID           string            `json:"id"`
	EventType    EventType         `json:"eventType"`
	ActorID      string            `json:"actorId"`
	ResourceType string            `json:"resourceType"`
	ResourceID   string            `json:"resourceId,omitempty"`
	// UserID is the affected user when different from the actor.
	UserID    string            `json:"userId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
