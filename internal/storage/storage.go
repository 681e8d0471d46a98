// Package storage persists chat messages and risk records with gorm and
// distributes message inserts through a Broker.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talentchat/backend/internal/config"
	"talentchat/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a booking, event request or profile does not exist.
	ErrNotFound = errors.New("storage: record not found")

	errMissingDatabase = errors.New("database handle is required")
	errMissingBroker   = errors.New("broker is required")
)

// MessageHandler receives inserts delivered by a subscription.
type MessageHandler func(models.Message)

// Subscription is a live feed of inserts for one channel.
type Subscription interface {
	// Close stops delivery. It is safe to call more than once.
	Close() error
	// Done is closed once the subscription stops delivering, whether through
	// Close or because the transport dropped.
	Done() <-chan struct{}
}

// MessageStore is the append-only message log of every conversation.
type MessageStore interface {
	// ListMessages returns the full history ascending by (created_at, id).
	ListMessages(ctx context.Context, ch models.Channel) ([]models.Message, error)
	// RecentMessages returns up to n latest messages, ascending. An empty
	// senderID matches every author.
	RecentMessages(ctx context.Context, ch models.Channel, senderID string, n int) ([]models.Message, error)
	// LatestMessage returns nil when the channel has no messages.
	LatestMessage(ctx context.Context, ch models.Channel) (*models.Message, error)
	InsertMessage(ctx context.Context, ch models.Channel, senderID, content string) (models.Message, error)
	Subscribe(ctx context.Context, ch models.Channel, handler MessageHandler) (Subscription, error)
}

// RiskStore persists RiskRecords.
type RiskStore interface {
	// ReadRisk returns nil when no record exists yet.
	ReadRisk(ctx context.Context, ch models.Channel, senderID string) (*models.RiskRecord, error)
	WriteRisk(ctx context.Context, rec *models.RiskRecord) error
	// UpdateRisk runs fn against the locked current record, creating it when
	// absent, and persists the result in the same transaction.
	UpdateRisk(ctx context.Context, ch models.Channel, senderID string, fn func(rec *models.RiskRecord) error) (*models.RiskRecord, error)
}

// ChannelEnumerator lists the conversations a user takes part in.
type ChannelEnumerator interface {
	ChannelsForUser(ctx context.Context, userID string, kind models.ChannelKind) ([]models.Channel, error)
}

// ParticipantDirectory resolves who is on each side of a conversation.
type ParticipantDirectory interface {
	// BookingParticipants returns the booker and the booked talent. The
	// profile is nil for bookings without an assigned talent.
	BookingParticipants(ctx context.Context, bookingID string) (string, *models.TalentProfile, error)
	EventRequestOwner(ctx context.Context, eventRequestID string) (string, error)
	// TalentProfileByUser returns nil when the user has no talent profile.
	TalentProfileByUser(ctx context.Context, userID string) (*models.TalentProfile, error)
}

// NameDirectory resolves display names for a transcript.
type NameDirectory interface {
	SenderNames(ctx context.Context, ch models.Channel, senderIDs []string) (map[string]string, error)
}

// ServiceError carries a stable code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code, e.g. storage.insert_message.create_failed.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opNewService      = "storage.new_service"
	opListMessages    = "storage.list_messages"
	opRecentMessages  = "storage.recent_messages"
	opLatestMessage   = "storage.latest_message"
	opInsertMessage   = "storage.insert_message"
	opSubscribe       = "storage.subscribe"
	opReadRisk        = "storage.read_risk"
	opWriteRisk       = "storage.write_risk"
	opUpdateRisk      = "storage.update_risk"
	opChannelsForUser = "storage.channels_for_user"
	opParticipants    = "storage.participants"
	opRiskRanking     = "storage.risk_ranking"
	opGrantPro        = "storage.grant_pro"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Database *gorm.DB
	Broker   Broker
	// Timeout bounds each store call. Zero uses config.StoreTimeout.
	Timeout time.Duration
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Service implements every store interface on top of one gorm handle.
type Service struct {
	db      *gorm.DB
	broker  Broker
	timeout time.Duration
	clock   func() time.Time
	logger  *zap.Logger
}

// NewService validates cfg and returns a ready Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opNewService, "missing_database", errMissingDatabase)
	}
	if cfg.Broker == nil {
		return nil, newServiceError(opNewService, "missing_broker", errMissingBroker)
	}
	svc := &Service{
		db:      cfg.Database,
		broker:  cfg.Broker,
		timeout: cfg.Timeout,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	if svc.timeout <= 0 {
		svc.timeout = config.StoreTimeout
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc, nil
}

var (
	_ MessageStore         = (*Service)(nil)
	_ RiskStore            = (*Service)(nil)
	_ ChannelEnumerator    = (*Service)(nil)
	_ ParticipantDirectory = (*Service)(nil)
)

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) now() time.Time {
	// Postgres keeps microseconds; truncating keeps the published copy equal to the stored row.
	return s.clock().UTC().Truncate(time.Microsecond)
}

func channelColumn(kind models.ChannelKind) (string, error) {
	switch kind {
	case models.ChannelKindBooking:
		return "booking_id", nil
	case models.ChannelKindEventRequest:
		return "event_request_id", nil
	default:
		return "", models.ErrInvalidChannelKind
	}
}
