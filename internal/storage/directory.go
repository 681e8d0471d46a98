package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talentchat/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChannelsForUser lists bookings the user made or was booked for through a
// talent profile, or the event requests the user owns.
func (s *Service) ChannelsForUser(ctx context.Context, userID string, kind models.ChannelKind) ([]models.Channel, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ids []string
	var err error
	switch kind {
	case models.ChannelKindBooking:
		talentProfiles := s.db.Model(&models.TalentProfile{}).Select("id").Where("user_id = ?", userID)
		err = s.db.WithContext(ctx).Model(&models.Booking{}).
			Where("user_id = ?", userID).
			Or("talent_id IN (?)", talentProfiles).
			Order("id").
			Pluck("id", &ids).Error
	case models.ChannelKindEventRequest:
		err = s.db.WithContext(ctx).Model(&models.EventRequest{}).
			Where("user_id = ?", userID).
			Order("id").
			Pluck("id", &ids).Error
	default:
		return nil, newServiceError(opChannelsForUser, "invalid_kind", models.ErrInvalidChannelKind)
	}
	if err != nil {
		return nil, newServiceError(opChannelsForUser, "query_failed", err)
	}

	channels := make([]models.Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := models.NewChannel(kind, id)
		if err != nil {
			s.logger.Warn("skipping invalid channel id", zap.String("channel_id", id), zap.Error(err))
			continue
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func (s *Service) BookingParticipants(ctx context.Context, bookingID string) (string, *models.TalentProfile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var booking models.Booking
	if err := s.db.WithContext(ctx).Where("id = ?", bookingID).Take(&booking).Error; err != nil {
		return "", nil, notFoundOr(fmt.Sprintf("booking %s", bookingID), err)
	}
	if booking.TalentID == nil || *booking.TalentID == "" {
		return booking.UserID, nil, nil
	}

	var profile models.TalentProfile
	if err := s.db.WithContext(ctx).Where("id = ?", *booking.TalentID).Take(&profile).Error; err != nil {
		return "", nil, notFoundOr(fmt.Sprintf("talent profile %s", *booking.TalentID), err)
	}
	return booking.UserID, &profile, nil
}

func (s *Service) EventRequestOwner(ctx context.Context, eventRequestID string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var request models.EventRequest
	if err := s.db.WithContext(ctx).Where("id = ?", eventRequestID).Take(&request).Error; err != nil {
		return "", notFoundOr(fmt.Sprintf("event request %s", eventRequestID), err)
	}
	return request.UserID, nil
}

func (s *Service) TalentProfileByUser(ctx context.Context, userID string) (*models.TalentProfile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var profile models.TalentProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newServiceError(opParticipants, "query_failed", err)
	}
	return &profile, nil
}

// GrantPro sets a manual Pro grant on the user's talent profile until the
// given time. A zero time revokes the grant.
func (s *Service) GrantPro(ctx context.Context, userID string, until time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var expires *time.Time
	if !until.IsZero() {
		utc := until.UTC()
		expires = &utc
	}
	result := s.db.WithContext(ctx).Model(&models.TalentProfile{}).
		Where("user_id = ?", userID).
		Update("manual_grant_expires_at", expires)
	if result.Error != nil {
		return newServiceError(opGrantPro, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("talent profile for %s: %w", userID, ErrNotFound)
	}
	return nil
}

// SenderNames maps the given senders to display names. The booker falls back
// to "Booker" and talents to "Talent"; ids that match neither are omitted.
func (s *Service) SenderNames(ctx context.Context, ch models.Channel, senderIDs []string) (map[string]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names := make(map[string]string, len(senderIDs))
	var bookerID, bookerName string
	switch ch.Kind {
	case models.ChannelKindBooking:
		var booking models.Booking
		if err := s.db.WithContext(ctx).Where("id = ?", ch.ID).Take(&booking).Error; err != nil {
			return nil, notFoundOr(fmt.Sprintf("booking %s", ch.ID), err)
		}
		bookerID, bookerName = booking.UserID, booking.BookerName
	case models.ChannelKindEventRequest:
		var request models.EventRequest
		if err := s.db.WithContext(ctx).Where("id = ?", ch.ID).Take(&request).Error; err != nil {
			return nil, notFoundOr(fmt.Sprintf("event request %s", ch.ID), err)
		}
		bookerID, bookerName = request.UserID, request.BookerName
	default:
		return nil, newServiceError(opParticipants, "invalid_kind", models.ErrInvalidChannelKind)
	}
	names[bookerID] = nameOr(bookerName, "Booker")

	talentIDs := make([]string, 0, len(senderIDs))
	for _, id := range senderIDs {
		if id != bookerID {
			talentIDs = append(talentIDs, id)
		}
	}
	if len(talentIDs) == 0 {
		return names, nil
	}
	var profiles []models.TalentProfile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", talentIDs).Find(&profiles).Error; err != nil {
		return nil, newServiceError(opParticipants, "query_failed", err)
	}
	for _, profile := range profiles {
		names[profile.UserID] = nameOr(profile.ArtistName, "Talent")
	}
	return names, nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func notFoundOr(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return newServiceError(opParticipants, "query_failed", err)
}
