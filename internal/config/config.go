// Package config holds runtime configuration for the chat service and the
// tuning constants of the content filter.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "TALENTCHAT"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = "sqlite"
	defaultDatabaseDSN      = "talentchat.db"
	defaultLogLevel         = "info"
	defaultTokenTTLMinutes  = 60 * 24
	defaultSendRatePerSec   = 2.0
	defaultSendBurst        = 5
	defaultAlertRiskLevel   = 80
	defaultStoreTimeoutSecs = int(StoreTimeout / time.Second)
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabaseDriver string
	DatabaseDSN    string
	RedisAddress   string
	SigningSecret  string
	TokenTTL       time.Duration
	LogLevel       string
	StoreTimeout   time.Duration
	SendRate       float64
	SendBurst      int

	AlertTelegramToken  string
	AlertTelegramChatID int64
	AlertRiskLevel      int
	AlertLanguage       string

	Filter FilterConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("database.driver", defaultDatabaseDriver)
	v.SetDefault("database.dsn", defaultDatabaseDSN)
	v.SetDefault("redis.address", "")
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	v.SetDefault("store.timeout_seconds", defaultStoreTimeoutSecs)
	v.SetDefault("send.rate_per_second", defaultSendRatePerSec)
	v.SetDefault("send.burst", defaultSendBurst)
	v.SetDefault("alert.risk_level", defaultAlertRiskLevel)
	v.SetDefault("alert.language", "en")

	filter := DefaultFilterConfig()
	v.SetDefault("filter.block_threshold", filter.BlockThreshold)
	v.SetDefault("filter.weak_pattern_weight", filter.WeakPatternWeight)
	v.SetDefault("filter.immediate_weight", filter.ImmediateWeight)
	v.SetDefault("filter.rolling_buffer_size", filter.RollingBufferSize)
	v.SetDefault("filter.decay_per_hour", filter.DecayPerHour)
	v.SetDefault("filter.immediate_patterns", filter.ImmediatePatterns)
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (AppConfig, error) {
	filter := DefaultFilterConfig()
	filter.BlockThreshold = v.GetInt("filter.block_threshold")
	filter.WeakPatternWeight = v.GetInt("filter.weak_pattern_weight")
	filter.ImmediateWeight = v.GetInt("filter.immediate_weight")
	filter.RollingBufferSize = v.GetInt("filter.rolling_buffer_size")
	filter.DecayPerHour = v.GetInt("filter.decay_per_hour")
	if patterns := v.GetStringSlice("filter.immediate_patterns"); len(patterns) > 0 {
		filter.ImmediatePatterns = patterns
	}

	cfg := AppConfig{
		HTTPAddress:         v.GetString("http.address"),
		AllowedOrigins:      v.GetStringSlice("http.allowed_origins"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseDSN:         v.GetString("database.dsn"),
		RedisAddress:        v.GetString("redis.address"),
		SigningSecret:       v.GetString("auth.signing_secret"),
		TokenTTL:            time.Duration(v.GetInt("auth.token_ttl_minutes")) * time.Minute,
		LogLevel:            v.GetString("log.level"),
		StoreTimeout:        time.Duration(v.GetInt("store.timeout_seconds")) * time.Second,
		SendRate:            v.GetFloat64("send.rate_per_second"),
		SendBurst:           v.GetInt("send.burst"),
		AlertTelegramToken:  v.GetString("alert.telegram_token"),
		AlertTelegramChatID: v.GetInt64("alert.telegram_chat_id"),
		AlertRiskLevel:      v.GetInt("alert.risk_level"),
		AlertLanguage:       v.GetString("alert.language"),
		Filter:              filter,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store.timeout_seconds must be positive")
	}
	if c.SendRate <= 0 || c.SendBurst <= 0 {
		return fmt.Errorf("send.rate_per_second and send.burst must be positive")
	}
	if c.AlertTelegramToken != "" && c.AlertTelegramChatID == 0 {
		return fmt.Errorf("alert.telegram_chat_id is required when alert.telegram_token is set")
	}
	return c.Filter.Validate()
}
