package distress

import "time"

// Status of a distress event. Transitions only move forward:
// recorded is terminal; queued goes to sent or queue_failed; nothing ever
// moves backward or resets.
type Status string

const (
	// StatusRecorded: score below threshold, stored for the record only.
	StatusRecorded Status = "recorded"
	// StatusQueued: high score, notification job enqueued.
	StatusQueued Status = "queued"
	// StatusSent: the worker dispatched the notification.
	StatusSent Status = "sent"
	// StatusQueueFailed: the event is durable but enqueueing the notification
	// job failed. The submission itself still succeeded.
	StatusQueueFailed Status = "queue_failed"
)

// Event is one self-reported distress submission. Created on submit; only the
// worker transitions its status afterwards; never deleted.
type Event struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Score   int    `json:"score"`
	Message string `json:"message,omitempty"`
	// Context carries optional free-form submission context (screen, locale).
	Context    map[string]string `json:"context,omitempty"`
	Status     Status            `json:"status"`
	QueueError string            `json:"queueError,omitempty"`
	DeliveryID string            `json:"deliveryId,omitempty"`
	EmailedAt  *time.Time        `json:"emailedAt,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// QueueRecord is the notification job payload placed on the alert queue. The
// worker treats it as a hint and re-fetches the event by id; the stored status
// is what makes redelivery safe.
type QueueRecord struct {
	EventID    string    `json:"eventId"`
	UserID     string    `json:"userId"`
	Score      int       `json:"score"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
