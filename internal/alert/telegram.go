// Package alert notifies moderators about senders whose risk score keeps
// climbing. Alerts name the category only; message content never leaves the
// filter.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"talentchat/backend/internal/filter"
	"talentchat/backend/internal/localization"
	"talentchat/backend/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 32
	alertKey         = "alert.high_risk"

	resultSent    = "sent"
	resultFailed  = "failed"
	resultDropped = "dropped"
)

var (
	errMissingSender = errors.New("telegram sender is required")
	errMissingChatID = errors.New("moderator chat id is required")
)

// Sender is the part of *tgbotapi.BotAPI used to post alerts.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBotSender connects to the Bot API with token.
func NewBotSender(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return bot, nil
}

// Config wires a TelegramAlerter.
type Config struct {
	Sender     Sender
	ChatID     int64
	Translator filter.Translator
	Language   string
	// QueueSize bounds pending alerts; extra alerts are dropped.
	QueueSize int
	Logger    *zap.Logger
}

// TelegramAlerter posts alerts to a moderator chat from a single writer
// goroutine so the send path never waits on Telegram.
type TelegramAlerter struct {
	sender     Sender
	chatID     int64
	translator filter.Translator
	language   string
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
	queue  chan filter.Alert
	done   chan struct{}
}

// NewTelegramAlerter validates cfg and starts the writer.
func NewTelegramAlerter(cfg Config) (*TelegramAlerter, error) {
	if cfg.Sender == nil {
		return nil, errMissingSender
	}
	if cfg.ChatID == 0 {
		return nil, errMissingChatID
	}
	a := &TelegramAlerter{
		sender:     cfg.Sender,
		chatID:     cfg.ChatID,
		translator: cfg.Translator,
		language:   cfg.Language,
		logger:     cfg.Logger,
		done:       make(chan struct{}),
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	a.queue = make(chan filter.Alert, size)
	if a.translator == nil {
		bundled, err := localization.Bundled()
		if err != nil {
			return nil, err
		}
		a.translator = bundled
	}
	if a.language == "" {
		a.language = localization.DefaultLanguage
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	go a.writePump()
	return a, nil
}

// AlertHighRisk queues alert without blocking.
func (a *TelegramAlerter) AlertHighRisk(_ context.Context, alert filter.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- alert:
	default:
		metrics.ModerationAlerts.WithLabelValues(resultDropped).Inc()
		a.logger.Warn("moderation alert dropped, queue full",
			zap.String("channel", alert.Channel.Key()),
			zap.String("sender_id", alert.SenderID))
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (a *TelegramAlerter) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *TelegramAlerter) writePump() {
	defer close(a.done)
	for alert := range a.queue {
		msg := tgbotapi.NewMessage(a.chatID, a.format(alert))
		msg.DisableWebPagePreview = true
		if _, err := a.sender.Send(msg); err != nil {
			metrics.ModerationAlerts.WithLabelValues(resultFailed).Inc()
			a.logger.Error("moderation alert failed",
				zap.String("channel", alert.Channel.Key()),
				zap.String("sender_id", alert.SenderID),
				zap.Error(err))
			continue
		}
		metrics.ModerationAlerts.WithLabelValues(resultSent).Inc()
	}
}

func (a *TelegramAlerter) format(alert filter.Alert) string {
	category := string(alert.Category)
	if category == "" {
		category = string(filter.CategoryGeneric)
	}
	return fmt.Sprintf(a.translator.GetString(a.language, alertKey),
		alert.SenderID, alert.Score, alert.Channel.Key(), category)
}
