// Package tier decides whether a conversation is gated by the content filter.
package tier

import (
	"context"
	"errors"
	"time"

	"talentchat/backend/internal/filter"
	"talentchat/backend/internal/models"
	"talentchat/backend/internal/session"
	"talentchat/backend/internal/storage"

	"go.uber.org/zap"
)

var errMissingDirectory = errors.New("participant directory is required")

// Config wires a Resolver.
type Config struct {
	Directory storage.ParticipantDirectory
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Resolver looks up subscription status for both sides of an exchange.
type Resolver struct {
	directory storage.ParticipantDirectory
	clock     func() time.Time
	logger    *zap.Logger
}

// NewResolver validates cfg and returns a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Directory == nil {
		return nil, errMissingDirectory
	}
	r := &Resolver{directory: cfg.Directory, clock: cfg.Clock, logger: cfg.Logger}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r, nil
}

// Participant reports whether sess may read and write in ch. Admins see every
// channel. A booking belongs to its booker and the booked talent; an event
// request belongs to its owner and is open to any talent responding to it.
// Unknown channels are not an error, nobody participates in them.
func (r *Resolver) Participant(ctx context.Context, sess *session.Context, ch models.Channel) (bool, error) {
	if sess.Role == models.RoleAdmin {
		return true, nil
	}
	switch ch.Kind {
	case models.ChannelKindBooking:
		bookerID, talent, err := r.directory.BookingParticipants(ctx, ch.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return bookerID == sess.UserID || (talent != nil && talent.UserID == sess.UserID), nil
	case models.ChannelKindEventRequest:
		ownerID, err := r.directory.EventRequestOwner(ctx, ch.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return ownerID == sess.UserID || sess.IsTalent(), nil
	default:
		return false, models.ErrInvalidChannelKind
	}
}

// Restricted returns the gate for a message sess sends in ch.
//
// A free-tier talent sender is always gated. A booker is gated only when the
// booking's talent is free-tier; event requests have no single talent on the
// booker side. Lookup failures leave the exchange open.
func (r *Resolver) Restricted(ctx context.Context, sess *session.Context, ch models.Channel) filter.Gate {
	switch sess.Role {
	case models.RoleAdmin:
		return filter.GateOpen
	case models.RoleTalent:
		if r.senderIsPro(ctx, sess) {
			return filter.GateOpen
		}
		return filter.GateSenderRestricted
	}

	if ch.Kind != models.ChannelKindBooking {
		return filter.GateOpen
	}
	bookerID, talent, err := r.directory.BookingParticipants(ctx, ch.ID)
	if err != nil {
		r.logger.Warn("recipient tier lookup failed, leaving chat unfiltered",
			zap.String("channel", ch.Key()),
			zap.Error(err))
		return filter.GateOpen
	}
	if bookerID != sess.UserID || talent == nil {
		return filter.GateOpen
	}
	if talent.IsPro(r.clock()) {
		return filter.GateOpen
	}
	return filter.GateRecipientRestricted
}

// Recipient returns the user a message from sess in ch is addressed to. An
// empty id means there is no single recipient, as when a booker writes in an
// event request.
func (r *Resolver) Recipient(ctx context.Context, sess *session.Context, ch models.Channel) (string, error) {
	switch ch.Kind {
	case models.ChannelKindBooking:
		bookerID, talent, err := r.directory.BookingParticipants(ctx, ch.ID)
		if err != nil {
			return "", err
		}
		if talent == nil {
			return "", nil
		}
		if bookerID == sess.UserID {
			return talent.UserID, nil
		}
		return bookerID, nil
	case models.ChannelKindEventRequest:
		ownerID, err := r.directory.EventRequestOwner(ctx, ch.ID)
		if err != nil {
			return "", err
		}
		if ownerID == sess.UserID {
			return "", nil
		}
		return ownerID, nil
	default:
		return "", models.ErrInvalidChannelKind
	}
}

// senderIsPro trusts a Pro claim in the token and otherwise rechecks the
// profile, so an upgrade takes effect before the token is reissued.
func (r *Resolver) senderIsPro(ctx context.Context, sess *session.Context) bool {
	if sess.IsPro {
		return true
	}
	profile, err := r.directory.TalentProfileByUser(ctx, sess.UserID)
	if err != nil {
		r.logger.Warn("sender tier lookup failed, leaving chat unfiltered",
			zap.String("user_id", sess.UserID),
			zap.Error(err))
		return true
	}
	return profile != nil && profile.IsPro(r.clock())
}
