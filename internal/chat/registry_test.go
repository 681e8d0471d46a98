package chat_test

import (
	"context"
	"testing"
	"time"

	"talentchat/backend/internal/chat"
	"talentchat/backend/internal/models"
	"talentchat/backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, store *MockStore) *chat.Registry {
	t.Helper()
	registry, err := chat.NewRegistry(chat.RegistryConfig{Store: store, Filter: new(MockFilter), Gates: newParticipantGates()})
	require.NoError(t, err)
	t.Cleanup(registry.Shutdown)
	return registry
}

func TestRegistry_AttachReusesController(t *testing.T) {
	registry := newRegistry(t, new(MockStore))
	first, err := session.New("user-1", models.RoleBooker, false)
	require.NoError(t, err)
	second, err := session.New("user-1", models.RoleBooker, false)
	require.NoError(t, err)

	c1, s1, err := registry.Attach(first)
	require.NoError(t, err)
	c2, s2, err := registry.Attach(second)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Same(t, first, s1)
	assert.Same(t, first, s2)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_DetachTearsDownSession(t *testing.T) {
	registry := newRegistry(t, new(MockStore))
	sess, err := session.New("user-1", models.RoleBooker, false)
	require.NoError(t, err)
	_, _, err = registry.Attach(sess)
	require.NoError(t, err)

	require.NoError(t, registry.Detach("user-1"))

	assert.True(t, sess.Closed())
	_, ok := registry.Controller("user-1")
	assert.False(t, ok)
	assert.ErrorIs(t, registry.Detach("user-1"), chat.ErrUnknownSession)
}

func TestRegistry_StreamsControllerEvents(t *testing.T) {
	// Arrange
	store := new(MockStore)
	store.On("Subscribe", mock.Anything, chanA, mock.Anything).Return(newFakeSubscription(), nil)
	store.On("ListMessages", mock.Anything, chanA).Return([]models.Message{}, nil)
	registry := newRegistry(t, store)
	sess, err := session.New("user-1", models.RoleBooker, false)
	require.NoError(t, err)
	controller, _, err := registry.Attach(sess)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, cleanup := registry.Events(ctx, "user-1")
	defer cleanup()

	// Act
	require.NoError(t, controller.Open(context.Background(), chanA))

	// Assert
	var states []string
	timeout := time.After(time.Second)
	for len(states) < 2 {
		select {
		case ev := <-events:
			if ev.Type == chat.EventState {
				states = append(states, ev.State)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state events, got %v", states)
		}
	}
	assert.Equal(t, []string{"opening", "open"}, states)
}

func TestRegistry_NotifySkipsRecipientComposingInChannel(t *testing.T) {
	// Arrange
	store := new(MockStore)
	store.On("Subscribe", mock.Anything, chanA, mock.Anything).Return(newFakeSubscription(), nil)
	store.On("ListMessages", mock.Anything, chanA).Return([]models.Message{}, nil)
	registry := newRegistry(t, store)
	recipient, err := session.New("talent-1", models.RoleTalent, false)
	require.NoError(t, err)
	controller, _, err := registry.Attach(recipient)
	require.NoError(t, err)
	require.NoError(t, controller.Open(context.Background(), chanA))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, cleanup := registry.Events(ctx, "talent-1")
	defer cleanup()
	note := chat.Notification{RecipientID: "talent-1", SenderID: "booker-1", Channel: chanA, MessageID: "m1"}

	// Act
	controller.SetUserInteracting(true)
	require.NoError(t, registry.NotifyNewMessage(context.Background(), note))
	controller.SetUserInteracting(false)
	require.NoError(t, registry.NotifyNewMessage(context.Background(), note))

	// Assert
	select {
	case ev := <-events:
		assert.Equal(t, chat.EventNotification, ev.Type)
		assert.Equal(t, chanA.Key(), ev.Channel)
	case <-time.After(time.Second):
		t.Fatal("expected one notification")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
