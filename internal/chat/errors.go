package chat

import "errors"

var (
	// ErrValidation marks requests rejected before any store call.
	ErrValidation = errors.New("chat: validation failed")
	// ErrBlankMessage is returned for empty or whitespace-only text.
	ErrBlankMessage = wrapError(ErrValidation, "message is blank")
	// ErrNoOpenChannel is returned when sending without an open channel.
	ErrNoOpenChannel = wrapError(ErrValidation, "no channel is open")
	// ErrStoreUnavailable wraps message and risk store failures.
	ErrStoreUnavailable = errors.New("chat: store unavailable")
	// ErrSubscriptionLost is reported while live updates are not arriving.
	ErrSubscriptionLost = errors.New("chat: subscription lost")
	// ErrForbidden is returned when the user is not a participant in the
	// channel they tried to open.
	ErrForbidden = errors.New("chat: not a participant in this channel")
	// ErrStaleChannel is returned when the open channel changed while an
	// operation was in flight; its result was discarded.
	ErrStaleChannel = errors.New("chat: channel changed")
)

type chatError struct {
	kind error
	msg  string
}

func wrapError(kind error, msg string) error {
	return &chatError{kind: kind, msg: msg}
}

func (e *chatError) Error() string {
	return "chat: " + e.msg
}

func (e *chatError) Unwrap() error {
	return e.kind
}
