package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errMissingChannelRef = errors.New("models: message must reference exactly one of booking or event request")

// Message is one append-only chat line inside a booking or event request
// conversation. Rows are never updated by the chat subsystem.
type Message struct {
	// ID is a time-ordered UUID (v7); it breaks ties between equal CreatedAt values.
	ID string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	// BookingID is set when the conversation belongs to a booking.
	BookingID *string `gorm:"index:idx_chat_booking" json:"booking_id,omitempty"`
	// EventRequestID is set when the conversation belongs to an event request.
	EventRequestID *string `gorm:"index:idx_chat_event_request" json:"event_request_id,omitempty"`
	// SenderID is the auth user id of the author.
	SenderID string `gorm:"type:text;not null" json:"sender_id"`
	// Content is the message text exactly as it was accepted.
	Content string `gorm:"type:text;not null" json:"content"`
	// CreatedAt is assigned by the store on insert.
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName keeps the table name shared with the rest of the marketplace.
func (Message) TableName() string {
	return "chat_messages"
}

// BeforeCreate assigns a v7 UUID when the caller did not supply one.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id.String()
	}
	return nil
}

// NewMessage builds an unsaved message for the given channel.
func NewMessage(ch Channel, senderID, content string) Message {
	msg := Message{SenderID: senderID, Content: content}
	id := ch.ID
	switch ch.Kind {
	case ChannelKindBooking:
		msg.BookingID = &id
	case ChannelKindEventRequest:
		msg.EventRequestID = &id
	}
	return msg
}

// Channel derives the conversation the message belongs to.
func (m Message) Channel() Channel {
	if m.BookingID != nil {
		return Channel{Kind: ChannelKindBooking, ID: *m.BookingID}
	}
	if m.EventRequestID != nil {
		return Channel{Kind: ChannelKindEventRequest, ID: *m.EventRequestID}
	}
	return Channel{}
}

// Validate checks the row shape before it crosses into domain code.
func (m Message) Validate() error {
	if (m.BookingID == nil) == (m.EventRequestID == nil) {
		return errMissingChannelRef
	}
	if _, err := NewChannel(m.Channel().Kind, m.Channel().ID); err != nil {
		return err
	}
	if m.ID == "" || m.SenderID == "" {
		return errors.New("models: message id and sender id are required")
	}
	return nil
}

// Before reports whether m sorts strictly before other in transcript order.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
