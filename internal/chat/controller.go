// Package chat drives one user's active conversation: opening a channel,
// following its live inserts and sending messages through the content filter.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"talentchat/backend/internal/filter"
	"talentchat/backend/internal/metrics"
	"talentchat/backend/internal/models"
	"talentchat/backend/internal/session"
	"talentchat/backend/internal/storage"
	"talentchat/backend/internal/unread"

	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// State is the controller lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	default:
		return "closed"
	}
}

// MessageStore is the part of storage.MessageStore the controller uses.
type MessageStore interface {
	ListMessages(ctx context.Context, ch models.Channel) ([]models.Message, error)
	InsertMessage(ctx context.Context, ch models.Channel, senderID, content string) (models.Message, error)
	Subscribe(ctx context.Context, ch models.Channel, handler storage.MessageHandler) (storage.Subscription, error)
}

// ContentFilter evaluates outgoing text.
type ContentFilter interface {
	Evaluate(ctx context.Context, text string, ch models.Channel, senderID string, gate filter.Gate) (filter.Decision, error)
}

// GateResolver decides who may take part in a channel, whether an exchange
// is filtered and who receives it.
type GateResolver interface {
	Participant(ctx context.Context, sess *session.Context, ch models.Channel) (bool, error)
	Restricted(ctx context.Context, sess *session.Context, ch models.Channel) filter.Gate
	Recipient(ctx context.Context, sess *session.Context, ch models.Channel) (string, error)
}

// SendResult is the outcome of a send. A blocked message is a normal
// result, not an error.
type SendResult struct {
	Message  *models.Message `json:"message,omitempty"`
	Blocked  bool            `json:"blocked,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Category filter.Category `json:"category,omitempty"`
	// Draft echoes the text back whenever it was not stored.
	Draft string `json:"draft,omitempty"`
}

var (
	errMissingSession = errors.New("session is required")
	errMissingStore   = errors.New("message store is required")
	errMissingFilter  = errors.New("content filter is required")
	errMissingGates   = errors.New("gate resolver is required")
)

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Session  *session.Context
	Store    MessageStore
	Filter   ContentFilter
	Gates    GateResolver
	Notifier Notifier
	// OnEvent receives every state change, append and badge update. It is
	// called outside the controller lock.
	OnEvent func(Event)
	Logger  *zap.Logger
}

// Controller holds at most one open channel for a session. Every async
// result is tagged with the generation it was issued under and discarded if
// the channel changed in the meantime.
type Controller struct {
	sess     *session.Context
	store    MessageStore
	filter   ContentFilter
	gates    GateResolver
	notifier Notifier
	onEvent  func(Event)
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	generation  uint64
	state       State
	channel     models.Channel
	messages    []models.Message
	pending     []models.Message
	sub         storage.Subscription
	badge       *unread.Badge
	err         error
	interacting bool
	counted     bool
}

// NewController validates cfg and returns a closed controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	switch {
	case cfg.Session == nil:
		return nil, errMissingSession
	case cfg.Store == nil:
		return nil, errMissingStore
	case cfg.Filter == nil:
		return nil, errMissingFilter
	case cfg.Gates == nil:
		return nil, errMissingGates
	}
	c := &Controller{
		sess:     cfg.Session,
		store:    cfg.Store,
		filter:   cfg.Filter,
		gates:    cfg.Gates,
		notifier: cfg.Notifier,
		onEvent:  cfg.OnEvent,
		logger:   cfg.Logger,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("user_id", c.sess.UserID))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Open makes ch the active channel. Reopening the channel that is already
// open and healthy is a no-op; any other channel is torn down first. A user
// who is not a participant in ch gets ErrForbidden and keeps the current
// channel.
//
// The channel is marked viewed before anything is loaded. The subscription
// is established before history is read, and inserts that arrive in between
// are merged by message id.
func (c *Controller) Open(ctx context.Context, ch models.Channel) error {
	ch, err := models.NewChannel(ch.Kind, ch.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	allowed, err := c.gates.Participant(ctx, c.sess, ch)
	if err != nil {
		c.logger.Warn("participant lookup failed", zap.String("channel", ch.Key()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !allowed {
		c.logger.Warn("rejected open by non-participant", zap.String("channel", ch.Key()))
		return ErrForbidden
	}

	c.mu.Lock()
	if c.channel == ch && c.err == nil && (c.state == StateOpening || c.state == StateOpen) {
		c.mu.Unlock()
		return nil
	}
	c.teardownLocked()
	c.generation++
	gen := c.generation
	c.channel = ch
	c.badge = unread.NewBadge(ch, c.sess.UserID, func(n int) { c.emit(Event{Type: EventUnread, Channel: ch.Key(), Unread: n}) })
	c.setStateLocked(StateOpening)
	c.sess.Viewed.Add(ch)
	c.mu.Unlock()
	c.emitState(ch, StateOpening)

	sub, err := c.store.Subscribe(c.ctx, ch, func(msg models.Message) { c.onInsert(gen, msg) })
	if err != nil {
		return c.failOpen(gen, ch, err)
	}
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		_ = sub.Close()
		return ErrStaleChannel
	}
	c.sub = sub
	c.mu.Unlock()
	go c.watch(gen, ch, sub)

	history, err := c.store.ListMessages(ctx, ch)
	if err != nil {
		return c.failOpen(gen, ch, err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale history", zap.String("channel", ch.Key()))
		return ErrStaleChannel
	}
	c.messages = append([]models.Message(nil), history...)
	var late []models.Message
	for _, msg := range c.pending {
		if c.insertLocked(msg) {
			late = append(late, msg)
		}
	}
	c.pending = nil
	badge := c.badge
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	badge.Seed(history, true)
	c.emitState(ch, StateOpen)
	for _, msg := range late {
		badge.Observe(msg)
		appended := msg
		c.emit(Event{Type: EventMessage, Channel: ch.Key(), Message: &appended})
	}
	return nil
}

// Close tears down the subscription and clears the transcript.
func (c *Controller) Close() {
	c.mu.Lock()
	wasOpen := !c.channel.IsZero()
	c.generation++
	c.teardownLocked()
	c.mu.Unlock()

	if wasOpen {
		c.emitState(models.Channel{}, StateClosed)
	}
}

// Release closes the controller for good.
func (c *Controller) Release() {
	c.Close()
	c.cancel()
}

// Send runs text through the content filter and stores it when allowed. On
// any failure the text comes back as the draft.
func (c *Controller) Send(ctx context.Context, text string) (SendResult, error) {
	if strings.TrimSpace(text) == "" {
		metrics.MessagesSent.WithLabelValues(metrics.SendRejected).Inc()
		return SendResult{}, ErrBlankMessage
	}

	c.mu.Lock()
	ch, gen, state := c.channel, c.generation, c.state
	c.mu.Unlock()
	if ch.IsZero() || (state != StateOpen && state != StateOpening) {
		metrics.MessagesSent.WithLabelValues(metrics.SendRejected).Inc()
		return SendResult{Draft: text}, ErrNoOpenChannel
	}

	gate := c.gates.Restricted(ctx, c.sess, ch)
	decision, err := c.filter.Evaluate(ctx, text, ch, c.sess.UserID, gate)
	if err != nil {
		metrics.MessagesSent.WithLabelValues(metrics.SendFailed).Inc()
		c.logger.Warn("filter evaluation failed", zap.String("channel", ch.Key()), zap.Error(err))
		return SendResult{Draft: text}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if decision.IsBlocked {
		metrics.MessagesSent.WithLabelValues(metrics.SendBlocked).Inc()
		return SendResult{Blocked: true, Reason: decision.Reason, Category: decision.Category, Draft: text}, nil
	}
	if c.stale(gen) {
		metrics.MessagesSent.WithLabelValues(metrics.SendRejected).Inc()
		return SendResult{Draft: text}, ErrStaleChannel
	}

	msg, err := c.store.InsertMessage(ctx, ch, c.sess.UserID, text)
	if err != nil {
		metrics.MessagesSent.WithLabelValues(metrics.SendFailed).Inc()
		c.logger.Warn("message insert failed", zap.String("channel", ch.Key()), zap.Error(err))
		return SendResult{Draft: text}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	metrics.MessagesSent.WithLabelValues(metrics.SendDelivered).Inc()

	c.onInsert(gen, msg)
	c.notify(ch, msg)
	return SendResult{Message: &msg}, nil
}

// SetUserInteracting records whether the user is typing, hovering or
// focused on the composer.
func (c *Controller) SetUserInteracting(interacting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interacting = interacting
}

// Interacting reports the last value passed to SetUserInteracting.
func (c *Controller) Interacting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interacting
}

// Transcript returns a copy of the in-memory transcript.
func (c *Controller) Transcript() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Channel returns the active channel, zero when closed.
func (c *Controller) Channel() models.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Err returns the error of a failed open, or ErrSubscriptionLost while
// live updates are not arriving.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Unread is the live unread count of the open channel.
func (c *Controller) Unread() int {
	c.mu.Lock()
	badge := c.badge
	c.mu.Unlock()
	if badge == nil {
		return 0
	}
	return badge.Count()
}

func (c *Controller) onInsert(gen uint64, msg models.Message) {
	c.mu.Lock()
	if c.generation != gen || msg.Channel() != c.channel {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case StateOpening:
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
		return
	case StateOpen:
	default:
		c.mu.Unlock()
		return
	}
	added := c.insertLocked(msg)
	badge := c.badge
	ch := c.channel
	c.mu.Unlock()

	if !added {
		return
	}
	badge.Observe(msg)
	appended := msg
	c.emit(Event{Type: EventMessage, Channel: ch.Key(), Message: &appended})
}

// insertLocked keeps the transcript ordered by (created_at, id) and ignores
// ids it already holds.
func (c *Controller) insertLocked(msg models.Message) bool {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == msg.ID {
			return false
		}
	}
	at := sort.Search(len(c.messages), func(i int) bool { return msg.Before(c.messages[i]) })
	c.messages = append(c.messages, models.Message{})
	copy(c.messages[at+1:], c.messages[at:])
	c.messages[at] = msg
	return true
}

// watch reports a dropped subscription. A subscription closed by teardown
// belongs to an older generation and is ignored.
func (c *Controller) watch(gen uint64, ch models.Channel, sub storage.Subscription) {
	<-sub.Done()
	c.mu.Lock()
	if c.generation != gen || c.sub != sub {
		c.mu.Unlock()
		return
	}
	c.err = ErrSubscriptionLost
	c.mu.Unlock()

	c.logger.Warn("chat subscription lost", zap.String("channel", ch.Key()))
	c.emit(Event{Type: EventSubscriptionLost, Channel: ch.Key(), Error: ErrSubscriptionLost.Error()})
}

func (c *Controller) failOpen(gen uint64, ch models.Channel, cause error) error {
	err := fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return ErrStaleChannel
	}
	c.closeSubscriptionLocked()
	c.pending = nil
	c.err = err
	c.setStateLocked(StateFailed)
	c.mu.Unlock()

	c.logger.Warn("chat open failed", zap.String("channel", ch.Key()), zap.Error(cause))
	c.emit(Event{Type: EventState, Channel: ch.Key(), State: StateFailed.String(), Error: err.Error()})
	return err
}

func (c *Controller) notify(ch models.Channel, msg models.Message) {
	if c.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, notifyTimeout)
		defer cancel()
		recipient, err := c.gates.Recipient(ctx, c.sess, ch)
		if err != nil {
			c.logger.Warn("recipient lookup failed", zap.String("channel", ch.Key()), zap.Error(err))
			return
		}
		if recipient == "" {
			return
		}
		n := Notification{RecipientID: recipient, SenderID: c.sess.UserID, Channel: ch, MessageID: msg.ID}
		if err := c.notifier.NotifyNewMessage(ctx, n); err != nil {
			c.logger.Warn("notification failed", zap.String("channel", ch.Key()), zap.Error(err))
		}
	}()
}

func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

func (c *Controller) teardownLocked() {
	c.closeSubscriptionLocked()
	c.messages = nil
	c.pending = nil
	c.badge = nil
	c.err = nil
	c.channel = models.Channel{}
	c.setStateLocked(StateClosed)
}

func (c *Controller) closeSubscriptionLocked() {
	if c.sub != nil {
		_ = c.sub.Close()
		c.sub = nil
	}
}

func (c *Controller) setStateLocked(state State) {
	c.state = state
	switch {
	case state == StateOpen && !c.counted:
		metrics.OpenControllers.Inc()
		c.counted = true
	case state != StateOpen && c.counted:
		metrics.OpenControllers.Dec()
		c.counted = false
	}
}

func (c *Controller) emitState(ch models.Channel, state State) {
	ev := Event{Type: EventState, State: state.String()}
	if !ch.IsZero() {
		ev.Channel = ch.Key()
	}
	c.emit(ev)
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}
