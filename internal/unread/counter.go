package unread

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"talentchat/backend/internal/metrics"
	"talentchat/backend/internal/models"
	"talentchat/backend/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

var (
	errMissingMessages = errors.New("message store is required")
	errMissingChannels = errors.New("channel enumerator is required")
)

// MessageSource is the part of storage.MessageStore the counter reads.
type MessageSource interface {
	ListMessages(ctx context.Context, ch models.Channel) ([]models.Message, error)
	LatestMessage(ctx context.Context, ch models.Channel) (*models.Message, error)
	Subscribe(ctx context.Context, ch models.Channel, handler storage.MessageHandler) (storage.Subscription, error)
}

// CounterConfig wires a Counter.
type CounterConfig struct {
	Messages MessageSource
	Channels storage.ChannelEnumerator
	// Concurrency bounds the per-channel fan-out. Zero uses 8.
	Concurrency int
	Logger      *zap.Logger
}

// Counter computes unread counts for one user at a time.
type Counter struct {
	messages    MessageSource
	channels    storage.ChannelEnumerator
	concurrency int
	logger      *zap.Logger
}

// NewCounter validates cfg and returns a Counter.
func NewCounter(cfg CounterConfig) (*Counter, error) {
	if cfg.Messages == nil {
		return nil, errMissingMessages
	}
	if cfg.Channels == nil {
		return nil, errMissingChannels
	}
	c := &Counter{
		messages:    cfg.Messages,
		channels:    cfg.Channels,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	if c.concurrency <= 0 {
		c.concurrency = defaultConcurrency
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// UnreadCountForChannel returns the trailing run of messages not sent by
// userID, or 0 when ch was viewed this session.
func (c *Counter) UnreadCountForChannel(ctx context.Context, ch models.Channel, userID string, viewed *ViewedSet) (int, error) {
	if viewed.Contains(ch) {
		return 0, nil
	}
	msgs, err := c.messages.ListMessages(ctx, ch)
	if err != nil {
		return 0, fmt.Errorf("list messages for %s: %w", ch.Key(), err)
	}
	return tailRun(msgs, userID), nil
}

// TotalUnreadChannels counts the user's channels of kind whose latest
// message came from someone else. Any failure or cancellation fails the
// whole count; a partial total is never returned.
func (c *Counter) TotalUnreadChannels(ctx context.Context, userID string, kind models.ChannelKind, viewed *ViewedSet) (int, error) {
	started := time.Now()
	defer func() { metrics.UnreadFanoutSeconds.Observe(time.Since(started).Seconds()) }()

	channels, err := c.channels.ChannelsForUser(ctx, userID, kind)
	if err != nil {
		return 0, fmt.Errorf("enumerate %s channels: %w", kind, err)
	}

	var unread atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for _, ch := range channels {
		if viewed.Contains(ch) {
			continue
		}
		group.Go(func() error {
			latest, err := c.messages.LatestMessage(groupCtx, ch)
			if err != nil {
				return fmt.Errorf("latest message for %s: %w", ch.Key(), err)
			}
			if latest != nil && latest.SenderID != userID {
				unread.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		c.logger.Warn("unread fan-out failed",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int(unread.Load()), nil
}

// Watch subscribes to ch and returns a badge that tracks its unread count
// live. The subscription is established before history is read so no insert
// falls between the two.
func (c *Counter) Watch(ctx context.Context, ch models.Channel, userID string, viewed *ViewedSet, onChange func(int)) (*Badge, storage.Subscription, error) {
	badge := NewBadge(ch, userID, onChange)
	sub, err := c.messages.Subscribe(ctx, ch, badge.Observe)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", ch.Key(), err)
	}

	history, err := c.messages.ListMessages(ctx, ch)
	if err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("list messages for %s: %w", ch.Key(), err)
	}
	badge.Seed(history, viewed.Contains(ch))
	return badge, sub, nil
}

func tailRun(msgs []models.Message, userID string) int {
	count := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderID == userID {
			break
		}
		count++
	}
	return count
}
