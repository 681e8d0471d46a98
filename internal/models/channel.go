package models

import (
	"errors"
	"fmt"
	"strings"
)

// ChannelKind names the domain record a conversation hangs off.
type ChannelKind string

const (
	// ChannelKindBooking is a conversation attached to a booking row.
	ChannelKindBooking ChannelKind = "booking"
	// ChannelKindEventRequest is a conversation attached to an event request row.
	ChannelKindEventRequest ChannelKind = "event_request"
)

const maxChannelIDLength = 190

var (
	// ErrInvalidChannelKind indicates a kind other than booking or event_request.
	ErrInvalidChannelKind = errors.New("models: invalid channel kind")
	// ErrInvalidChannel indicates an empty or oversized channel identifier.
	ErrInvalidChannel = errors.New("models: invalid channel")
)

// ParseChannelKind validates raw input and returns a ChannelKind.
func ParseChannelKind(raw string) (ChannelKind, error) {
	switch kind := ChannelKind(strings.TrimSpace(strings.ToLower(raw))); kind {
	case ChannelKindBooking, ChannelKindEventRequest:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChannelKind, raw)
	}
}

// Channel identifies one conversation. It is derived from the booking or
// event request it belongs to and is never persisted on its own.
type Channel struct {
	Kind ChannelKind `json:"kind"`
	ID   string      `json:"id"`
}

// NewChannel validates its inputs and returns an immutable Channel value.
func NewChannel(kind ChannelKind, id string) (Channel, error) {
	parsed, err := ParseChannelKind(string(kind))
	if err != nil {
		return Channel{}, err
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Channel{}, fmt.Errorf("%w: empty id", ErrInvalidChannel)
	}
	if len(trimmed) > maxChannelIDLength {
		return Channel{}, fmt.Errorf("%w: id exceeds %d characters", ErrInvalidChannel, maxChannelIDLength)
	}
	return Channel{Kind: parsed, ID: trimmed}, nil
}

// Key returns the "{kind}_{id}" form used by viewed sets and broker topics.
func (c Channel) Key() string {
	return string(c.Kind) + "_" + c.ID
}

// IsZero reports whether the channel is unset.
func (c Channel) IsZero() bool {
	return c.Kind == "" && c.ID == ""
}

func (c Channel) String() string {
	return c.Key()
}
