package config

import (
	"fmt"
	"time"
)

// Pattern labels recorded on risk records and returned in filter decisions.
const (
	PatternEmail          = "email"
	PatternPhone          = "phone"
	PatternURL            = "url"
	PatternSocialHandle   = "social_handle"
	PatternSocialPlatform = "social_platform"
	PatternOffPlatform    = "off_platform"

	PatternSplitEmail  = "split_email"
	PatternSplitPhone  = "split_phone"
	PatternSplitURL    = "split_url"
	PatternSplitHandle = "split_handle"

	PatternContactIntent     = "contact_intent"
	PatternNumberFragment    = "number_fragment"
	PatternSpelledDigits     = "spelled_digits"
	PatternSuspiciousSpacing = "suspicious_spacing"
)

const (
	DefaultBlockThreshold    = 40
	DefaultWeakPatternWeight = 15
	DefaultRollingBufferSize = 6
	DefaultDecayPerHour      = 0

	// Upper bound for the rolling buffer; anything larger starts joining
	// unrelated sentences into false phone numbers.
	maxRollingBufferSize = 20

	StoreTimeout = 8 * time.Second
)

// DefaultImmediatePatterns block on first sight regardless of the cumulative score.
var DefaultImmediatePatterns = []string{
	PatternEmail,
	PatternPhone,
	PatternURL,
	PatternSocialHandle,
	PatternSocialPlatform,
	PatternOffPlatform,
	PatternSplitEmail,
	PatternSplitPhone,
	PatternSplitURL,
	PatternSplitHandle,
}

// DefaultPatternWeights overrides WeakPatternWeight for specific labels.
var DefaultPatternWeights = map[string]int{
	PatternContactIntent:     10,
	PatternNumberFragment:    15,
	PatternSpelledDigits:     20,
	PatternSuspiciousSpacing: 15,
}

// FilterConfig tunes the content filter and the risk tracker.
type FilterConfig struct {
	// ImmediatePatterns lists labels that block the message outright.
	ImmediatePatterns []string
	// WeakPatternWeight is the score for a label without an entry in PatternWeights.
	WeakPatternWeight int
	// PatternWeights holds per-label weights.
	PatternWeights map[string]int
	// ImmediateWeight is added to the risk score when an immediate label matches.
	// Zero means half of BlockThreshold, so one strong match blocks that
	// message but a sender only becomes silenced after a second one.
	ImmediateWeight int
	// BlockThreshold is the cumulative score at which every further message is blocked.
	BlockThreshold int
	// RollingBufferSize is how many of the sender's previous messages are
	// rescanned together with the candidate.
	RollingBufferSize int
	// DecayPerHour lowers the stored score by this many points per elapsed hour.
	// Zero keeps the score monotonic.
	DecayPerHour int
}

// DefaultFilterConfig returns the tuned defaults.
func DefaultFilterConfig() FilterConfig {
	weights := make(map[string]int, len(DefaultPatternWeights))
	for k, v := range DefaultPatternWeights {
		weights[k] = v
	}
	return FilterConfig{
		ImmediatePatterns: append([]string(nil), DefaultImmediatePatterns...),
		WeakPatternWeight: DefaultWeakPatternWeight,
		PatternWeights:    weights,
		BlockThreshold:    DefaultBlockThreshold,
		RollingBufferSize: DefaultRollingBufferSize,
		DecayPerHour:      DefaultDecayPerHour,
	}
}

// IsImmediate reports whether label is configured to block on first sight.
func (c FilterConfig) IsImmediate(label string) bool {
	for _, p := range c.ImmediatePatterns {
		if p == label {
			return true
		}
	}
	return false
}

// Weight returns the score contributed by label.
func (c FilterConfig) Weight(label string) int {
	if c.IsImmediate(label) {
		if c.ImmediateWeight > 0 {
			return c.ImmediateWeight
		}
		return max(c.BlockThreshold/2, 1)
	}
	if w, ok := c.PatternWeights[label]; ok {
		return w
	}
	return c.WeakPatternWeight
}

// Validate rejects configurations that would make the filter meaningless.
func (c FilterConfig) Validate() error {
	if c.BlockThreshold <= 0 {
		return fmt.Errorf("filter.block_threshold must be positive, got %d", c.BlockThreshold)
	}
	if c.WeakPatternWeight < 0 || c.ImmediateWeight < 0 || c.DecayPerHour < 0 {
		return fmt.Errorf("filter weights and decay must not be negative")
	}
	for label, w := range c.PatternWeights {
		if w < 0 {
			return fmt.Errorf("filter weight for %s must not be negative", label)
		}
	}
	if c.RollingBufferSize < 0 || c.RollingBufferSize > maxRollingBufferSize {
		return fmt.Errorf("filter.rolling_buffer_size must be within 0..%d, got %d", maxRollingBufferSize, c.RollingBufferSize)
	}
	return nil
}
