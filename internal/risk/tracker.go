// Package risk keeps the cumulative risk score of each sender in each
// conversation.
package risk

import (
	"context"
	"errors"
	"sync"
	"time"

	"talentchat/backend/internal/models"
	"talentchat/backend/internal/storage"

	"go.uber.org/zap"
)

var errMissingStore = errors.New("risk store is required")

// TrackerConfig wires a Tracker.
type TrackerConfig struct {
	Store storage.RiskStore
	// DecayPerHour subtracts this many points for every full hour since the
	// last update. Zero disables decay and keeps scores monotonic.
	DecayPerHour int
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Tracker applies score changes through the store's transactional update.
// It never caches records between calls.
type Tracker struct {
	store        storage.RiskStore
	decayPerHour int
	clock        func() time.Time
	logger       *zap.Logger
	locks        keyedMutex
}

// NewTracker validates cfg and returns a Tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.DecayPerHour < 0 {
		return nil, errors.New("decay per hour must not be negative")
	}
	t := &Tracker{
		store:        cfg.Store,
		decayPerHour: cfg.DecayPerHour,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		locks:        keyedMutex{entries: make(map[string]*lockEntry)},
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t, nil
}

// GetOrCreate returns the current record for (ch, senderID), creating an
// empty one on first use.
func (t *Tracker) GetOrCreate(ctx context.Context, ch models.Channel, senderID string) (*models.RiskRecord, error) {
	unlock := t.locks.lock(recordKey(ch, senderID))
	defer unlock()

	now := t.clock().UTC()
	return t.store.UpdateRisk(ctx, ch, senderID, func(rec *models.RiskRecord) error {
		t.decay(rec, now)
		return nil
	})
}

// ApplyIncrement adds delta to the score and unions patterns into the
// record in one atomic step. Negative deltas are ignored.
func (t *Tracker) ApplyIncrement(ctx context.Context, ch models.Channel, senderID string, delta int, patterns []string) (*models.RiskRecord, error) {
	if delta < 0 {
		delta = 0
	}
	unlock := t.locks.lock(recordKey(ch, senderID))
	defer unlock()

	now := t.clock().UTC()
	rec, err := t.store.UpdateRisk(ctx, ch, senderID, func(rec *models.RiskRecord) error {
		t.decay(rec, now)
		rec.RiskScore += delta
		rec.MergePatterns(patterns)
		rec.LastUpdated = now
		return nil
	})
	if err != nil {
		t.logger.Error("risk increment failed",
			zap.String("channel", ch.Key()),
			zap.String("sender_id", senderID),
			zap.Error(err))
		return nil, err
	}
	if delta > 0 {
		t.logger.Debug("risk increased",
			zap.String("channel", ch.Key()),
			zap.String("sender_id", senderID),
			zap.Int("delta", delta),
			zap.Int("score", rec.RiskScore),
			zap.Strings("patterns", patterns))
	}
	return rec, nil
}

// Reset clears the score and patterns of (ch, senderID). Moderators use it
// after reviewing a flagged conversation.
func (t *Tracker) Reset(ctx context.Context, ch models.Channel, senderID string) (*models.RiskRecord, error) {
	unlock := t.locks.lock(recordKey(ch, senderID))
	defer unlock()

	now := t.clock().UTC()
	rec, err := t.store.UpdateRisk(ctx, ch, senderID, func(rec *models.RiskRecord) error {
		rec.RiskScore = 0
		rec.DetectedPatterns = models.PatternSet{}
		rec.LastUpdated = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("risk reset", zap.String("channel", ch.Key()), zap.String("sender_id", senderID))
	return rec, nil
}

func (t *Tracker) decay(rec *models.RiskRecord, now time.Time) {
	if t.decayPerHour == 0 || rec.LastUpdated.IsZero() {
		return
	}
	hours := int(now.Sub(rec.LastUpdated) / time.Hour)
	if hours <= 0 {
		return
	}
	rec.RiskScore = max(0, rec.RiskScore-hours*t.decayPerHour)
	rec.LastUpdated = rec.LastUpdated.Add(time.Duration(hours) * time.Hour)
}

func recordKey(ch models.Channel, senderID string) string {
	return ch.Key() + "|" + senderID
}

// keyedMutex serialises callers per key inside this process; the store's row
// lock covers other processes.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
