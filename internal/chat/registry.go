package chat

import (
	"context"
	"errors"
	"sync"

	"talentchat/backend/internal/models"
	"talentchat/backend/internal/realtime"
	"talentchat/backend/internal/session"

	"go.uber.org/zap"
)

// ErrUnknownSession is returned for users without an attached controller.
var ErrUnknownSession = errors.New("chat: no controller for user")

// RegistryConfig wires the dependencies every controller shares.
type RegistryConfig struct {
	Store  MessageStore
	Filter ContentFilter
	Gates  GateResolver
	// EventBuffer bounds each live stream; a consumer that falls this far
	// behind is disconnected.
	EventBuffer int
	Logger      *zap.Logger
}

// Registry keeps one controller per connected user and fans controller
// events out to that user's live streams.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger
	events *realtime.Dispatcher[Event]

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	sess       *session.Context
	controller *Controller
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	switch {
	case cfg.Store == nil:
		return nil, errMissingStore
	case cfg.Filter == nil:
		return nil, errMissingFilter
	case cfg.Gates == nil:
		return nil, errMissingGates
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		events:   realtime.NewDispatcher[Event](cfg.EventBuffer),
		sessions: make(map[string]*entry),
	}, nil
}

// Attach returns the controller for sess.UserID, creating it on first use.
// Later sessions of the same user share the controller and its viewed set.
func (r *Registry) Attach(sess *session.Context) (*Controller, *session.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[sess.UserID]; ok {
		return existing.controller, existing.sess, nil
	}
	userID := sess.UserID
	controller, err := NewController(ControllerConfig{
		Session:  sess,
		Store:    r.cfg.Store,
		Filter:   r.cfg.Filter,
		Gates:    r.cfg.Gates,
		Notifier: r,
		OnEvent:  func(ev Event) { r.events.Publish(userID, ev) },
		Logger:   r.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	r.sessions[userID] = &entry{sess: sess, controller: controller}
	r.logger.Info("chat controller attached", zap.String("user_id", userID))
	return controller, sess, nil
}

// Controller looks up an attached controller.
func (r *Registry) Controller(userID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.controller, true
}

// Detach releases the user's controller and tears the session down.
func (r *Registry) Detach(userID string) error {
	r.mu.Lock()
	e, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	e.controller.Release()
	e.sess.Teardown()
	r.logger.Info("chat controller detached", zap.String("user_id", userID))
	return nil
}

// Events streams the user's controller events and notifications.
func (r *Registry) Events(ctx context.Context, userID string) (<-chan Event, func()) {
	return r.events.Subscribe(ctx, userID)
}

// NotifyNewMessage pushes a notification to the recipient's live streams,
// unless the recipient is composing in that very channel.
func (r *Registry) NotifyNewMessage(_ context.Context, n Notification) error {
	if controller, ok := r.Controller(n.RecipientID); ok {
		if controller.Channel() == n.Channel && controller.Interacting() {
			return nil
		}
	}
	r.events.Publish(n.RecipientID, Event{Type: EventNotification, Channel: n.Channel.Key()})
	return nil
}

// Participant reports whether sess takes part in ch, with the same rule Open
// applies.
func (r *Registry) Participant(ctx context.Context, sess *session.Context, ch models.Channel) (bool, error) {
	return r.cfg.Gates.Participant(ctx, sess, ch)
}

// Len returns the number of attached users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown detaches every user.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.Detach(id)
	}
}
