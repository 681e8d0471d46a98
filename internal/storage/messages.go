package storage

import (
	"context"
	"errors"
	"slices"

	"talentchat/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) ListMessages(ctx context.Context, ch models.Channel) ([]models.Message, error) {
	column, err := channelColumn(ch.Kind)
	if err != nil {
		return nil, newServiceError(opListMessages, "invalid_channel", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []models.Message
	if err := s.db.WithContext(ctx).
		Where(column+" = ?", ch.ID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, newServiceError(opListMessages, "query_failed", err)
	}
	return s.validRows(opListMessages, rows), nil
}

func (s *Service) RecentMessages(ctx context.Context, ch models.Channel, senderID string, n int) ([]models.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	column, err := channelColumn(ch.Kind)
	if err != nil {
		return nil, newServiceError(opRecentMessages, "invalid_channel", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).Where(column+" = ?", ch.ID)
	if senderID != "" {
		query = query.Where("sender_id = ?", senderID)
	}
	var rows []models.Message
	if err := query.Order("created_at DESC, id DESC").Limit(n).Find(&rows).Error; err != nil {
		return nil, newServiceError(opRecentMessages, "query_failed", err)
	}
	slices.Reverse(rows)
	return s.validRows(opRecentMessages, rows), nil
}

func (s *Service) LatestMessage(ctx context.Context, ch models.Channel) (*models.Message, error) {
	column, err := channelColumn(ch.Kind)
	if err != nil {
		return nil, newServiceError(opLatestMessage, "invalid_channel", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var row models.Message
	err = s.db.WithContext(ctx).
		Where(column+" = ?", ch.ID).
		Order("created_at DESC, id DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newServiceError(opLatestMessage, "query_failed", err)
	}
	return &row, nil
}

// InsertMessage persists the message and then publishes it. A publish
// failure is logged; the insert itself already succeeded.
func (s *Service) InsertMessage(ctx context.Context, ch models.Channel, senderID, content string) (models.Message, error) {
	if _, err := models.NewChannel(ch.Kind, ch.ID); err != nil {
		return models.Message{}, newServiceError(opInsertMessage, "invalid_channel", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg := models.NewMessage(ch, senderID, content)
	msg.CreatedAt = s.now()
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		s.logger.Error("message insert failed",
			zap.String("channel", ch.Key()),
			zap.String("sender_id", senderID),
			zap.Error(err))
		return models.Message{}, newServiceError(opInsertMessage, "create_failed", err)
	}

	if err := s.broker.Publish(ctx, ch.Key(), msg); err != nil {
		s.logger.Warn("message publish failed",
			zap.String("channel", ch.Key()),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
	return msg, nil
}

// Subscribe delivers inserts for ch. Payloads that do not belong to ch or
// fail validation are dropped.
func (s *Service) Subscribe(ctx context.Context, ch models.Channel, handler MessageHandler) (Subscription, error) {
	if ch.IsZero() {
		return nil, newServiceError(opSubscribe, "invalid_channel", models.ErrInvalidChannel)
	}
	sub, err := s.broker.Subscribe(ctx, ch.Key(), func(msg models.Message) {
		if err := msg.Validate(); err != nil || msg.Channel() != ch {
			s.logger.Warn("dropping malformed insert", zap.String("channel", ch.Key()), zap.Error(err))
			return
		}
		handler(msg)
	})
	if err != nil {
		return nil, newServiceError(opSubscribe, "subscribe_failed", err)
	}
	return sub, nil
}

func (s *Service) validRows(op string, rows []models.Message) []models.Message {
	valid := rows[:0]
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			s.logger.Warn("skipping malformed message row",
				zap.String("operation", op),
				zap.String("message_id", row.ID),
				zap.Error(err))
			continue
		}
		valid = append(valid, row)
	}
	return valid
}
