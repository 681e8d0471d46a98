package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// PatternSet is a list of pattern labels stored as text[] on Postgres and as
// the same array literal in a text column elsewhere.
type PatternSet []string

// Value encodes the set as a Postgres array literal.
func (p PatternSet) Value() (driver.Value, error) {
	return pq.StringArray(p).Value()
}

// Scan decodes a Postgres array literal.
func (p *PatternSet) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*p = PatternSet(arr)
	return nil
}

// GormDataType is the generic type gorm needs to parse the field.
func (PatternSet) GormDataType() string {
	return "text"
}

// GormDBDataType picks the column type per dialect.
func (PatternSet) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// RiskRecord accumulates suspicious behaviour for one sender inside one
// conversation. The score only grows unless decay is configured.
type RiskRecord struct {
	ID string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	// ChannelID and ChannelType together form the Channel.
	ChannelID   string `gorm:"not null;uniqueIndex:idx_risk_channel_sender" json:"channel_id"`
	ChannelType string `gorm:"not null;uniqueIndex:idx_risk_channel_sender" json:"channel_type"`
	SenderID    string `gorm:"not null;uniqueIndex:idx_risk_channel_sender" json:"sender_id"`
	// RiskScore is never negative.
	RiskScore int `gorm:"not null;default:0" json:"risk_score"`
	// DetectedPatterns is the union of every label seen so far (text[] in Postgres).
	DetectedPatterns PatternSet `json:"detected_patterns"`
	LastUpdated      time.Time  `json:"last_updated"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TableName matches the marketplace schema.
func (RiskRecord) TableName() string {
	return "conversation_risk_tracking"
}

// BeforeCreate generates the record id.
func (r *RiskRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// NewRiskRecord returns an empty record for the given channel and sender.
func NewRiskRecord(ch Channel, senderID string, now time.Time) *RiskRecord {
	return &RiskRecord{
		ChannelID:        ch.ID,
		ChannelType:      string(ch.Kind),
		SenderID:         senderID,
		DetectedPatterns: PatternSet{},
		LastUpdated:      now,
		CreatedAt:        now,
	}
}

// Channel rebuilds the channel value from the stored columns.
func (r RiskRecord) Channel() Channel {
	return Channel{Kind: ChannelKind(r.ChannelType), ID: r.ChannelID}
}

// HasPattern reports whether label was already recorded.
func (r RiskRecord) HasPattern(label string) bool {
	for _, p := range r.DetectedPatterns {
		if p == label {
			return true
		}
	}
	return false
}

// MergePatterns adds labels not yet present, keeping first-seen order.
func (r *RiskRecord) MergePatterns(labels []string) {
	for _, label := range labels {
		if label == "" || r.HasPattern(label) {
			continue
		}
		r.DetectedPatterns = append(r.DetectedPatterns, label)
	}
}
