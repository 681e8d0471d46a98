package unread

import (
	"sync"

	"talentchat/backend/internal/models"
)

// Badge is the live unread count of one channel for one user.
//
// A viewed channel seeds at 0, but later inserts from other participants
// still count: the viewed set only suppresses the initial value.
type Badge struct {
	mu       sync.Mutex
	channel  models.Channel
	userID   string
	count    int
	seeded   bool
	pending  []models.Message
	onChange func(int)
}

// NewBadge returns an unseeded badge. Inserts observed before Seed are held
// back and reconciled against the seeding history.
func NewBadge(ch models.Channel, userID string, onChange func(int)) *Badge {
	return &Badge{channel: ch, userID: userID, onChange: onChange}
}

// Seed sets the initial count from history.
func (b *Badge) Seed(history []models.Message, viewed bool) {
	b.mu.Lock()
	if viewed {
		b.count = 0
	} else {
		b.count = tailRun(history, b.userID)
	}
	known := make(map[string]struct{}, len(history))
	for _, msg := range history {
		known[msg.ID] = struct{}{}
	}
	for _, msg := range b.pending {
		if _, ok := known[msg.ID]; !ok {
			b.apply(msg)
		}
	}
	b.pending = nil
	b.seeded = true
	count := b.count
	b.mu.Unlock()

	b.notify(count)
}

// Observe applies one insert. Inserts for other channels are ignored.
func (b *Badge) Observe(msg models.Message) {
	if msg.Channel() != b.channel {
		return
	}
	b.mu.Lock()
	if !b.seeded {
		b.pending = append(b.pending, msg)
		b.mu.Unlock()
		return
	}
	before := b.count
	b.apply(msg)
	count := b.count
	b.mu.Unlock()

	if count != before {
		b.notify(count)
	}
}

// Count returns the current value.
func (b *Badge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// apply must be called with mu held.
func (b *Badge) apply(msg models.Message) {
	if msg.SenderID == b.userID {
		b.count = 0
		return
	}
	b.count++
}

func (b *Badge) notify(count int) {
	if b.onChange != nil {
		b.onChange(count)
	}
}
