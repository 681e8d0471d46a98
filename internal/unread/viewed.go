// Package unread derives unread counts from conversational turn-taking.
// There is no persisted read cursor: a channel's unread count is the run of
// trailing messages from other participants.
package unread

import (
	"sync"

	"talentchat/backend/internal/models"
)

// ViewedSet remembers the channels opened during one session. It is never
// persisted; a new session starts empty.
type ViewedSet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewViewedSet returns an empty set.
func NewViewedSet() *ViewedSet {
	return &ViewedSet{keys: make(map[string]struct{})}
}

// Add marks ch as viewed.
func (v *ViewedSet) Add(ch models.Channel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[ch.Key()] = struct{}{}
}

// AddAll marks every channel as viewed.
func (v *ViewedSet) AddAll(chs []models.Channel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ch := range chs {
		v.keys[ch.Key()] = struct{}{}
	}
}

// Contains reports whether ch was opened this session. A nil set contains nothing.
func (v *ViewedSet) Contains(ch models.Channel) bool {
	if v == nil {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.keys[ch.Key()]
	return ok
}

// Clear forgets every channel.
func (v *ViewedSet) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = make(map[string]struct{})
}

// Len returns the number of viewed channels.
func (v *ViewedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
