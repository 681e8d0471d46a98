package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talentchat/backend/internal/alert"
	"talentchat/backend/internal/api/handler"
	"talentchat/backend/internal/chat"
	"talentchat/backend/internal/config"
	"talentchat/backend/internal/filter"
	"talentchat/backend/internal/localization"
	"talentchat/backend/internal/logging"
	"talentchat/backend/internal/risk"
	"talentchat/backend/internal/session"
	"talentchat/backend/internal/storage"
	"talentchat/backend/internal/tier"
	"talentchat/backend/internal/unread"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "talentchat-api",
		Short: "Booking and event request chat backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (postgres, sqlite)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for cross-instance inserts; empty keeps them in process")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := storage.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	broker, closeBroker, err := newBroker(ctx, appConfig.RedisAddress, logger)
	if err != nil {
		return err
	}
	defer closeBroker()

	store, err := storage.NewService(storage.ServiceConfig{
		Database: db,
		Broker:   broker,
		Timeout:  appConfig.StoreTimeout,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tracker, err := risk.NewTracker(risk.TrackerConfig{
		Store:        store,
		DecayPerHour: appConfig.Filter.DecayPerHour,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	translator, err := localization.Bundled()
	if err != nil {
		return err
	}

	engineConfig := filter.EngineConfig{
		Filter:     appConfig.Filter,
		Tracker:    tracker,
		History:    store,
		Translator: translator,
		Logger:     logger,
	}
	if appConfig.AlertTelegramToken != "" {
		bot, err := alert.NewBotSender(appConfig.AlertTelegramToken)
		if err != nil {
			return err
		}
		alerter, err := alert.NewTelegramAlerter(alert.Config{
			Sender:     bot,
			ChatID:     appConfig.AlertTelegramChatID,
			Translator: translator,
			Language:   appConfig.AlertLanguage,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer alerter.Close()
		engineConfig.Alerter = alerter
		engineConfig.AlertLevel = appConfig.AlertRiskLevel
	}
	engine, err := filter.NewEngine(engineConfig)
	if err != nil {
		return err
	}

	gates, err := tier.NewResolver(tier.Config{Directory: store, Logger: logger})
	if err != nil {
		return err
	}
	counter, err := unread.NewCounter(unread.CounterConfig{Messages: store, Channels: store, Logger: logger})
	if err != nil {
		return err
	}
	registry, err := chat.NewRegistry(chat.RegistryConfig{Store: store, Filter: engine, Gates: gates, Logger: logger})
	if err != nil {
		return err
	}
	defer registry.Shutdown()

	tokens, err := session.NewTokenIssuer(appConfig.SigningSecret, appConfig.TokenTTL)
	if err != nil {
		return err
	}

	api, err := handler.NewAPI(handler.Dependencies{
		Tokens:         tokens,
		Registry:       registry,
		Unread:         counter,
		Names:          store,
		SendRate:       appConfig.SendRate,
		SendBurst:      appConfig.SendBurst,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer api.Close()

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newBroker picks Redis when an address is configured so several API
// instances share inserts; otherwise inserts stay in this process.
func newBroker(ctx context.Context, address string, logger *zap.Logger) (storage.Broker, func(), error) {
	if address == "" {
		logger.Info("using in-process message broker")
		return storage.NewLocalBroker(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: address})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("using redis message broker", zap.String("address", address))
	return storage.NewRedisBroker(client, logger), func() { _ = client.Close() }, nil
}
