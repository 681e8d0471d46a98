package storage

import (
	"context"
	"errors"

	"talentchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var riskKeyColumns = []clause.Column{{Name: "channel_id"}, {Name: "channel_type"}, {Name: "sender_id"}}

func (s *Service) ReadRisk(ctx context.Context, ch models.Channel, senderID string) (*models.RiskRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec models.RiskRecord
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND channel_type = ? AND sender_id = ?", ch.ID, string(ch.Kind), senderID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newServiceError(opReadRisk, "query_failed", err)
	}
	return &rec, nil
}

// WriteRisk upserts rec on its (channel, sender) key.
func (s *Service) WriteRisk(ctx context.Context, rec *models.RiskRecord) error {
	if rec == nil {
		return newServiceError(opWriteRisk, "missing_record", errors.New("risk record is required"))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   riskKeyColumns,
		DoUpdates: clause.AssignmentColumns([]string{"risk_score", "detected_patterns", "last_updated"}),
	}).Create(rec).Error
	if err != nil {
		return newServiceError(opWriteRisk, "upsert_failed", err)
	}
	return nil
}

func (s *Service) UpdateRisk(ctx context.Context, ch models.Channel, senderID string, fn func(rec *models.RiskRecord) error) (*models.RiskRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated models.RiskRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := models.NewRiskRecord(ch, senderID, s.now())
		if err := tx.Clauses(clause.OnConflict{Columns: riskKeyColumns, DoNothing: true}).Create(fresh).Error; err != nil {
			return newServiceError(opUpdateRisk, "create_failed", err)
		}

		var current models.RiskRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("channel_id = ? AND channel_type = ? AND sender_id = ?", ch.ID, string(ch.Kind), senderID).
			Take(&current).Error; err != nil {
			return newServiceError(opUpdateRisk, "select_failed", err)
		}

		if err := fn(&current); err != nil {
			return err
		}
		if err := tx.Save(&current).Error; err != nil {
			return newServiceError(opUpdateRisk, "save_failed", err)
		}
		updated = current
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}

// HighRiskRecords lists records scoring at least minScore, highest first.
func (s *Service) HighRiskRecords(ctx context.Context, minScore, limit int) ([]models.RiskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var records []models.RiskRecord
	err := s.db.WithContext(ctx).
		Where("risk_score >= ?", minScore).
		Order("risk_score DESC").Order("last_updated DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, newServiceError(opRiskRanking, "query_failed", err)
	}
	return records, nil
}
