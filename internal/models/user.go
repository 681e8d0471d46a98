package models

import "time"

// Role is the marketplace role carried by a session.
type Role string

const (
	RoleBooker Role = "booker"
	RoleTalent Role = "talent"
	RoleAdmin  Role = "admin"
)

// Booking is the subset of the bookings table the chat subsystem reads.
type Booking struct {
	ID string `gorm:"primaryKey;type:varchar(64)"`
	// UserID is the booker.
	UserID     string `gorm:"index;not null"`
	BookerName string
	// TalentID references TalentProfile.ID and is empty for open gig requests.
	TalentID *string `gorm:"index"`
}

// EventRequest is the subset of the event_requests table the chat subsystem reads.
type EventRequest struct {
	ID         string `gorm:"primaryKey;type:varchar(64)"`
	UserID     string `gorm:"index;not null"`
	BookerName string
}

// TalentProfile carries the subscription fields used for tier gating.
type TalentProfile struct {
	ID                   string `gorm:"primaryKey;type:varchar(64)"`
	UserID               string `gorm:"uniqueIndex;not null"`
	ArtistName           string
	IsProSubscriber      bool
	SubscriptionStatus   string
	ManualGrantExpiresAt *time.Time
}

// IsPro reports whether the talent currently has Pro access, either through
// an active subscription, an unexpired admin grant, or the explicit flag.
func (p TalentProfile) IsPro(now time.Time) bool {
	if p.SubscriptionStatus == "active" {
		return true
	}
	if p.ManualGrantExpiresAt != nil && p.ManualGrantExpiresAt.After(now) {
		return true
	}
	return p.IsProSubscriber
}
