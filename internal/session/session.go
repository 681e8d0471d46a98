// Package session holds the per-user context every chat operation runs in.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"talentchat/backend/internal/models"
	"talentchat/backend/internal/unread"
)

var (
	// ErrInvalidSession is returned when a session lacks a user or role.
	ErrInvalidSession = errors.New("session: invalid session")
	// ErrClosed is returned by operations on a torn-down session.
	ErrClosed = errors.New("session: closed")
)

// Context identifies the signed-in user. It is built once per connection and
// passed to every consumer.
type Context struct {
	UserID string
	Role   models.Role
	IsPro  bool
	Viewed *unread.ViewedSet

	mu     sync.Mutex
	closed bool
}

// New builds and initialises a session.
func New(userID string, role models.Role, isPro bool) (*Context, error) {
	sess := &Context{UserID: userID, Role: role, IsPro: isPro}
	if err := sess.Init(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Init validates the identity and starts an empty viewed set.
func (c *Context) Init() error {
	c.UserID = strings.TrimSpace(c.UserID)
	if c.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidSession)
	}
	role, err := ParseRole(string(c.Role))
	if err != nil {
		return err
	}
	c.Role = role

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Viewed = unread.NewViewedSet()
	c.closed = false
	return nil
}

// Teardown forgets the viewed set and closes the session.
func (c *Context) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Viewed != nil {
		c.Viewed.Clear()
	}
	c.closed = true
}

// Closed reports whether Teardown ran.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsTalent reports whether the session belongs to a performer.
func (c *Context) IsTalent() bool {
	return c.Role == models.RoleTalent
}

// ParseRole accepts booker, talent or admin in any case.
func ParseRole(raw string) (models.Role, error) {
	switch role := models.Role(strings.ToLower(strings.TrimSpace(raw))); role {
	case models.RoleBooker, models.RoleTalent, models.RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidSession, raw)
	}
}
