package chat_test

import (
	"context"
	"sync"
	"sync/atomic"

	"talentchat/backend/internal/chat"
	"talentchat/backend/internal/filter"
	"talentchat/backend/internal/models"
	"talentchat/backend/internal/session"
	"talentchat/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListMessages(ctx context.Context, ch models.Channel) ([]models.Message, error) {
	args := m.Called(ctx, ch)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MockStore) InsertMessage(ctx context.Context, ch models.Channel, senderID, content string) (models.Message, error) {
	args := m.Called(ctx, ch, senderID, content)
	msg, _ := args.Get(0).(models.Message)
	return msg, args.Error(1)
}

func (m *MockStore) Subscribe(ctx context.Context, ch models.Channel, handler storage.MessageHandler) (storage.Subscription, error) {
	args := m.Called(ctx, ch, handler)
	sub, _ := args.Get(0).(storage.Subscription)
	return sub, args.Error(1)
}

type MockFilter struct {
	mock.Mock
}

func (m *MockFilter) Evaluate(ctx context.Context, text string, ch models.Channel, senderID string, gate filter.Gate) (filter.Decision, error) {
	args := m.Called(ctx, text, ch, senderID, gate)
	decision, _ := args.Get(0).(filter.Decision)
	return decision, args.Error(1)
}

type MockGates struct {
	mock.Mock
}

// newParticipantGates admits every session to every channel except
// chanStranger.
func newParticipantGates() *MockGates {
	gates := new(MockGates)
	gates.On("Participant", mock.Anything, mock.Anything, mock.MatchedBy(func(ch models.Channel) bool { return ch != chanStranger })).
		Return(true, nil).
		Maybe()
	return gates
}

func (m *MockGates) Participant(ctx context.Context, sess *session.Context, ch models.Channel) (bool, error) {
	args := m.Called(ctx, sess, ch)
	return args.Bool(0), args.Error(1)
}

func (m *MockGates) Restricted(ctx context.Context, sess *session.Context, ch models.Channel) filter.Gate {
	args := m.Called(ctx, sess, ch)
	gate, _ := args.Get(0).(filter.Gate)
	return gate
}

func (m *MockGates) Recipient(ctx context.Context, sess *session.Context, ch models.Channel) (string, error) {
	args := m.Called(ctx, sess, ch)
	return args.String(0), args.Error(1)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []chat.Notification
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, note chat.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) notifications() []chat.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]chat.Notification(nil), n.sent...)
}

// fakeSubscription closes Done on Close, or on drop to simulate a lost
// transport.
type fakeSubscription struct {
	once   sync.Once
	done   chan struct{}
	closed atomic.Bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{done: make(chan struct{})}
}

func (s *fakeSubscription) Close() error {
	s.closed.Store(true)
	s.drop()
	return nil
}

func (s *fakeSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *fakeSubscription) drop() {
	s.once.Do(func() { close(s.done) })
}

type recordingEvents struct {
	mu     sync.Mutex
	events []chat.Event
}

func (r *recordingEvents) record(ev chat.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) ofType(t chat.EventType) []chat.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
