package unread_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"talentchat/backend/internal/models"
	"talentchat/backend/internal/storage"
	"talentchat/backend/internal/unread"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newStore(t *testing.T) (*storage.Service, *gorm.DB) {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "unread.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	svc, err := storage.NewService(storage.ServiceConfig{Database: db, Broker: storage.NewLocalBroker()})
	require.NoError(t, err)
	return svc, db
}

func newCounter(t *testing.T, svc *storage.Service) *unread.Counter {
	t.Helper()
	counter, err := unread.NewCounter(unread.CounterConfig{Messages: svc, Channels: svc})
	require.NoError(t, err)
	return counter
}

func insert(t *testing.T, svc *storage.Service, ch models.Channel, senders ...string) {
	t.Helper()
	for _, sender := range senders {
		_, err := svc.InsertMessage(context.Background(), ch, sender, "hello from "+sender)
		require.NoError(t, err)
	}
}

func booking(id string) models.Channel {
	return models.Channel{Kind: models.ChannelKindBooking, ID: id}
}

func TestUnreadCountForChannel_TrailingRunFromOthers(t *testing.T) {
	tests := []struct {
		name    string
		senders []string
		want    int
	}{
		{name: "empty channel", want: 0},
		{name: "reply pending", senders: []string{"me", "them", "them"}, want: 2},
		{name: "answered", senders: []string{"them", "them", "me"}, want: 0},
		{name: "never answered", senders: []string{"them", "them", "them"}, want: 3},
		{name: "run resets after my reply", senders: []string{"them", "me", "them"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			svc, _ := newStore(t)
			ch := booking("b-1")
			insert(t, svc, ch, tt.senders...)

			// Act
			got, err := newCounter(t, svc).UnreadCountForChannel(context.Background(), ch, "me", unread.NewViewedSet())

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnreadCountForChannel_ViewedIsZero(t *testing.T) {
	svc, _ := newStore(t)
	ch := booking("b-1")
	insert(t, svc, ch, "them", "them")
	viewed := unread.NewViewedSet()
	viewed.Add(ch)

	got, err := newCounter(t, svc).UnreadCountForChannel(context.Background(), ch, "me", viewed)

	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestTotalUnreadChannels_CountsChannelsAwaitingReply(t *testing.T) {
	// Arrange
	svc, db := newStore(t)
	talentID := "tp-1"
	require.NoError(t, db.Create(&models.TalentProfile{ID: talentID, UserID: "talent"}).Error)
	for _, id := range []string{"b-1", "b-2", "b-3", "b-4"} {
		require.NoError(t, db.Create(&models.Booking{ID: id, UserID: "me", TalentID: &talentID}).Error)
	}
	insert(t, svc, booking("b-1"), "me", "talent")
	insert(t, svc, booking("b-2"), "talent", "me")
	insert(t, svc, booking("b-4"), "talent")
	counter := newCounter(t, svc)
	viewed := unread.NewViewedSet()

	// Act
	total, err := counter.TotalUnreadChannels(context.Background(), "me", models.ChannelKindBooking, viewed)
	require.NoError(t, err)
	viewed.Add(booking("b-4"))
	afterView, err := counter.TotalUnreadChannels(context.Background(), "me", models.ChannelKindBooking, viewed)
	require.NoError(t, err)
	talentTotal, err := counter.TotalUnreadChannels(context.Background(), "talent", models.ChannelKindBooking, unread.NewViewedSet())
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, afterView)
	assert.Equal(t, 1, talentTotal)
}

type MockMessages struct {
	mock.Mock
}

func (m *MockMessages) ListMessages(ctx context.Context, ch models.Channel) ([]models.Message, error) {
	args := m.Called(ctx, ch)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MockMessages) LatestMessage(ctx context.Context, ch models.Channel) (*models.Message, error) {
	args := m.Called(ctx, ch)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockMessages) Subscribe(ctx context.Context, ch models.Channel, handler storage.MessageHandler) (storage.Subscription, error) {
	args := m.Called(ctx, ch, handler)
	sub, _ := args.Get(0).(storage.Subscription)
	return sub, args.Error(1)
}

type MockChannels struct {
	mock.Mock
}

func (m *MockChannels) ChannelsForUser(ctx context.Context, userID string, kind models.ChannelKind) ([]models.Channel, error) {
	args := m.Called(ctx, userID, kind)
	chs, _ := args.Get(0).([]models.Channel)
	return chs, args.Error(1)
}

func TestTotalUnreadChannels_FailsWholeCountOnError(t *testing.T) {
	// Arrange
	messages := new(MockMessages)
	channels := new(MockChannels)
	chs := []models.Channel{booking("b-1"), booking("b-2")}
	channels.On("ChannelsForUser", mock.Anything, "me", models.ChannelKindBooking).Return(chs, nil)
	messages.On("LatestMessage", mock.Anything, booking("b-1")).Return(&models.Message{SenderID: "them"}, nil)
	messages.On("LatestMessage", mock.Anything, booking("b-2")).Return(nil, errors.New("connection reset"))
	counter, err := unread.NewCounter(unread.CounterConfig{Messages: messages, Channels: channels})
	require.NoError(t, err)

	// Act
	total, err := counter.TotalUnreadChannels(context.Background(), "me", models.ChannelKindBooking, nil)

	// Assert
	assert.ErrorContains(t, err, "connection reset")
	assert.Zero(t, total)
}

func TestTotalUnreadChannels_EnumerationError(t *testing.T) {
	messages := new(MockMessages)
	channels := new(MockChannels)
	channels.On("ChannelsForUser", mock.Anything, "me", models.ChannelKindEventRequest).Return(nil, errors.New("timeout"))
	counter, err := unread.NewCounter(unread.CounterConfig{Messages: messages, Channels: channels})
	require.NoError(t, err)

	_, err = counter.TotalUnreadChannels(context.Background(), "me", models.ChannelKindEventRequest, nil)

	assert.ErrorContains(t, err, "timeout")
	messages.AssertNotCalled(t, "LatestMessage", mock.Anything, mock.Anything)
}

func TestNewCounter_RequiresDependencies(t *testing.T) {
	_, err := unread.NewCounter(unread.CounterConfig{})
	assert.Error(t, err)
}

func TestBadge_ViewedOnlySuppressesSeed(t *testing.T) {
	// Arrange
	ch := booking("b-1")
	history := []models.Message{{ID: "1", SenderID: "them"}, {ID: "2", SenderID: "them"}}
	badge := unread.NewBadge(ch, "me", nil)
	badge.Seed(history, true)
	require.Zero(t, badge.Count())

	// Act
	badge.Observe(models.NewMessage(ch, "them", "are you there?"))

	// Assert
	assert.Equal(t, 1, badge.Count())

	badge.Observe(models.NewMessage(ch, "me", "yes"))
	assert.Zero(t, badge.Count())
}

func TestBadge_ReconcilesInsertsSeenBeforeSeed(t *testing.T) {
	ch := booking("b-1")
	var changes []int
	badge := unread.NewBadge(ch, "me", func(n int) { changes = append(changes, n) })
	early := models.Message{ID: "2", SenderID: "them", BookingID: &ch.ID}
	late := models.Message{ID: "3", SenderID: "them", BookingID: &ch.ID}

	badge.Observe(early)
	badge.Observe(late)
	badge.Seed([]models.Message{{ID: "1", SenderID: "me"}, early}, false)

	assert.Equal(t, 2, badge.Count())
	assert.Equal(t, []int{2}, changes)
}

func TestBadge_IgnoresOtherChannels(t *testing.T) {
	badge := unread.NewBadge(booking("b-1"), "me", nil)
	badge.Seed(nil, false)

	badge.Observe(models.NewMessage(booking("b-2"), "them", "hi"))

	assert.Zero(t, badge.Count())
}

func TestCounterWatch_UpdatesLive(t *testing.T) {
	// Arrange
	svc, _ := newStore(t)
	ch := booking("b-1")
	insert(t, svc, ch, "them")
	var latest atomic.Int64
	viewed := unread.NewViewedSet()
	viewed.Add(ch)

	// Act
	badge, sub, err := newCounter(t, svc).Watch(context.Background(), ch, "me", viewed, func(n int) { latest.Store(int64(n)) })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	require.Zero(t, badge.Count())
	insert(t, svc, ch, "them", "them")

	// Assert
	assert.Eventually(t, func() bool { return latest.Load() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, badge.Count())
}

func TestViewedSet(t *testing.T) {
	viewed := unread.NewViewedSet()
	viewed.AddAll([]models.Channel{booking("b-1"), {Kind: models.ChannelKindEventRequest, ID: "b-1"}})

	assert.True(t, viewed.Contains(booking("b-1")))
	assert.True(t, viewed.Contains(models.Channel{Kind: models.ChannelKindEventRequest, ID: "b-1"}))
	assert.False(t, viewed.Contains(booking("b-2")))
	assert.Equal(t, 2, viewed.Len())

	viewed.Clear()
	assert.Zero(t, viewed.Len())

	var none *unread.ViewedSet
	assert.False(t, none.Contains(booking("b-1")))
}
