package alert_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"talentchat/backend/internal/alert"
	"talentchat/backend/internal/filter"
	"talentchat/backend/internal/metrics"
	"talentchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(s.sent)}, nil
}

var riskyChannel = models.Channel{Kind: models.ChannelKindBooking, ID: "b-9"}

func TestTelegramAlerter_SendsCategoryOnly(t *testing.T) {
	// Arrange
	sender := &fakeSender{}
	alerter, err := alert.NewTelegramAlerter(alert.Config{Sender: sender, ChatID: -100123})
	require.NoError(t, err)
	before := testutil.ToFloat64(metrics.ModerationAlerts.WithLabelValues("sent"))

	// Act
	alerter.AlertHighRisk(context.Background(), filter.Alert{Channel: riskyChannel, SenderID: "talent-1", Score: 55, Category: filter.CategoryPhone})
	alerter.Close()

	// Assert
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(-100123), sender.sent[0].ChatID)
	assert.Equal(t, "Risk alert: talent-1 reached score 55 in booking_b-9 (latest category: phone).", sender.sent[0].Text)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ModerationAlerts.WithLabelValues("sent")))
}

func TestTelegramAlerter_FailureIsCounted(t *testing.T) {
	sender := &fakeSender{err: errors.New("bad gateway")}
	alerter, err := alert.NewTelegramAlerter(alert.Config{Sender: sender, ChatID: 42})
	require.NoError(t, err)
	before := testutil.ToFloat64(metrics.ModerationAlerts.WithLabelValues("failed"))

	alerter.AlertHighRisk(context.Background(), filter.Alert{Channel: riskyChannel, SenderID: "talent-1", Score: 60})
	alerter.Close()

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ModerationAlerts.WithLabelValues("failed")))
}

func TestTelegramAlerter_IgnoresAlertsAfterClose(t *testing.T) {
	sender := &fakeSender{}
	alerter, err := alert.NewTelegramAlerter(alert.Config{Sender: sender, ChatID: 42})
	require.NoError(t, err)
	alerter.Close()

	alerter.AlertHighRisk(context.Background(), filter.Alert{Channel: riskyChannel, SenderID: "talent-1", Score: 60})

	assert.Empty(t, sender.sent)
}

func TestNewTelegramAlerter_Validates(t *testing.T) {
	_, err := alert.NewTelegramAlerter(alert.Config{ChatID: 1})
	assert.Error(t, err)
	_, err = alert.NewTelegramAlerter(alert.Config{Sender: &fakeSender{}})
	assert.Error(t, err)
}
