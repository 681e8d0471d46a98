// Package filter decides whether an outgoing chat message may be stored
// when a free-tier talent takes part in the conversation.
package filter

import (
	"context"
	"errors"
	"strings"

	"talentchat/backend/internal/config"
	"talentchat/backend/internal/localization"
	"talentchat/backend/internal/metrics"
	"talentchat/backend/internal/models"

	"go.uber.org/zap"
)

// Gate describes which side of an exchange is a restricted talent.
type Gate int

const (
	// GateOpen means neither party is restricted and filtering is skipped.
	GateOpen Gate = iota
	// GateSenderRestricted means the sender is a free-tier talent.
	GateSenderRestricted
	// GateRecipientRestricted means a booker is writing to a free-tier talent.
	GateRecipientRestricted
)

// Active reports whether filtering applies.
func (g Gate) Active() bool {
	return g != GateOpen
}

func (g Gate) String() string {
	switch g {
	case GateSenderRestricted:
		return "sender_restricted"
	case GateRecipientRestricted:
		return "recipient_restricted"
	default:
		return "open"
	}
}

// Decision is the result of one evaluation. It is never persisted.
type Decision struct {
	IsBlocked       bool     `json:"is_blocked"`
	Reason          string   `json:"reason,omitempty"`
	MatchedPatterns []string `json:"matched_patterns"`
	Category        Category `json:"category,omitempty"`
	// Score is the sender's cumulative risk after this evaluation.
	Score int `json:"score"`
}

// RiskTracker is the subset of risk.Tracker the engine needs.
type RiskTracker interface {
	ApplyIncrement(ctx context.Context, ch models.Channel, senderID string, delta int, patterns []string) (*models.RiskRecord, error)
}

// HistorySource supplies the rolling buffer.
type HistorySource interface {
	RecentMessages(ctx context.Context, ch models.Channel, senderID string, n int) ([]models.Message, error)
}

// Translator resolves reason keys.
type Translator interface {
	GetString(lang, key string) string
}

// Alert describes a sender whose risk crossed the alert level. It never
// carries message content.
type Alert struct {
	Channel  models.Channel
	SenderID string
	Score    int
	Category Category
}

// Alerter is notified when a sender crosses the alert level.
type Alerter interface {
	AlertHighRisk(ctx context.Context, alert Alert)
}

var (
	errMissingTracker = errors.New("risk tracker is required")
	errMissingHistory = errors.New("history source is required")
)

// EngineConfig wires an Engine.
type EngineConfig struct {
	Filter     config.FilterConfig
	Tracker    RiskTracker
	History    HistorySource
	Translator Translator
	Language   string
	// Alerter and AlertLevel are optional; a zero level disables alerts.
	Alerter    Alerter
	AlertLevel int
	Logger     *zap.Logger
}

// Engine evaluates candidate messages.
type Engine struct {
	cfg        config.FilterConfig
	tracker    RiskTracker
	history    HistorySource
	translator Translator
	language   string
	alerter    Alerter
	alertLevel int
	logger     *zap.Logger
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Tracker == nil {
		return nil, errMissingTracker
	}
	if cfg.History == nil {
		return nil, errMissingHistory
	}
	if err := cfg.Filter.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg.Filter,
		tracker:    cfg.Tracker,
		history:    cfg.History,
		translator: cfg.Translator,
		language:   cfg.Language,
		alerter:    cfg.Alerter,
		alertLevel: cfg.AlertLevel,
		logger:     cfg.Logger,
	}
	if e.translator == nil {
		bundled, err := localization.Bundled()
		if err != nil {
			return nil, err
		}
		e.translator = bundled
	}
	if e.language == "" {
		e.language = localization.DefaultLanguage
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// Evaluate scores text for senderID in ch and records the result on the
// sender's risk record. The caller rejects blank text beforehand.
//
// A message is blocked when it carries an immediate pattern, or when the
// sender's score had already reached the threshold before this message.
func (e *Engine) Evaluate(ctx context.Context, text string, ch models.Channel, senderID string, gate Gate) (Decision, error) {
	if !gate.Active() {
		metrics.FilterDecisions.WithLabelValues(metrics.OutcomeBypassed).Inc()
		return Decision{MatchedPatterns: []string{}}, nil
	}

	candidate := Normalize(text)
	labels := detectCandidate(candidate, false)

	if e.cfg.RollingBufferSize > 0 && hasSignal(candidate, labels) {
		extra, err := e.scanBuffer(ctx, candidate, text, ch, senderID, labels)
		if err != nil {
			return Decision{}, err
		}
		labels = append(labels, extra...)
	}

	delta := 0
	immediate := false
	for _, label := range labels {
		delta += e.cfg.Weight(label)
		if e.cfg.IsImmediate(label) {
			immediate = true
		}
	}

	rec, err := e.tracker.ApplyIncrement(ctx, ch, senderID, delta, labels)
	if err != nil {
		return Decision{}, err
	}
	prior := rec.RiskScore - delta

	decision := Decision{
		MatchedPatterns: append([]string{}, labels...),
		Score:           rec.RiskScore,
		Category:        Categorize(labels),
	}
	if immediate || prior >= e.cfg.BlockThreshold {
		decision.IsBlocked = true
		if decision.Category == CategoryNone {
			decision.Category = Categorize([]string(rec.DetectedPatterns))
		}
		decision.Reason = e.translator.GetString(e.language, reasonKey(gate, decision.Category))
	}

	e.record(ctx, decision, ch, senderID, gate, prior)
	return decision, nil
}

// scanBuffer evaluates the candidate together with the sender's previous
// messages and returns the additional labels.
func (e *Engine) scanBuffer(ctx context.Context, candidate Views, text string, ch models.Channel, senderID string, labels []string) ([]string, error) {
	recent, err := e.history.RecentMessages(ctx, ch, senderID, e.cfg.RollingBufferSize)
	if err != nil {
		e.logger.Warn("rolling buffer read failed",
			zap.String("channel", ch.Key()),
			zap.String("sender_id", senderID),
			zap.Error(err))
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}

	parts := make([]string, 0, len(recent))
	for _, msg := range recent {
		parts = append(parts, msg.Content)
	}
	earlierText := strings.Join(parts, " ")
	earlier := Normalize(earlierText)
	joined := Normalize(earlierText + " " + text)

	extra := detectSplit(candidate, earlier, joined, labels)
	if !contains(labels, config.PatternNumberFragment) && !contains(labels, config.PatternPhone) {
		for _, label := range detectCandidate(candidate, hasContactIntent(earlier)) {
			if label == config.PatternNumberFragment {
				extra = append(extra, label)
			}
		}
	}
	return extra, nil
}

func (e *Engine) record(ctx context.Context, d Decision, ch models.Channel, senderID string, gate Gate, prior int) {
	outcome := metrics.OutcomeAllowed
	if d.IsBlocked {
		outcome = metrics.OutcomeBlocked
	}
	metrics.FilterDecisions.WithLabelValues(outcome).Inc()
	for _, label := range d.MatchedPatterns {
		metrics.FilterPatterns.WithLabelValues(label).Inc()
	}

	if d.IsBlocked || len(d.MatchedPatterns) > 0 {
		e.logger.Info("filter decision",
			zap.String("channel", ch.Key()),
			zap.String("sender_id", senderID),
			zap.String("gate", gate.String()),
			zap.Bool("blocked", d.IsBlocked),
			zap.Strings("patterns", d.MatchedPatterns),
			zap.Int("score", d.Score))
	}

	if e.alerter != nil && e.alertLevel > 0 && prior < e.alertLevel && d.Score >= e.alertLevel {
		e.alerter.AlertHighRisk(ctx, Alert{Channel: ch, SenderID: senderID, Score: d.Score, Category: d.Category})
	}
}
