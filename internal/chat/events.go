package chat

import (
	"context"

	"talentchat/backend/internal/models"
)

// EventType names what changed for a session.
type EventType string

const (
	EventMessage          EventType = "message"
	EventState            EventType = "state"
	EventUnread           EventType = "unread"
	EventSubscriptionLost EventType = "subscription_lost"
	EventNotification     EventType = "notification"
)

// Event is pushed to a user's live stream.
type Event struct {
	Type    EventType       `json:"type"`
	Channel string          `json:"channel,omitempty"`
	State   string          `json:"state,omitempty"`
	Message *models.Message `json:"message,omitempty"`
	Unread  int             `json:"unread"`
	Error   string          `json:"error,omitempty"`
}

// Notification tells a recipient a new message is waiting. It carries no
// content; the recipient loads the transcript.
type Notification struct {
	RecipientID string         `json:"recipient_id"`
	SenderID    string         `json:"sender_id"`
	Channel     models.Channel `json:"channel"`
	MessageID   string         `json:"message_id"`
}

// Notifier delivers new-message notifications. Delivery is best effort.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, n Notification) error
}
