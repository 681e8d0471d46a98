// Command talentchat-admin is the moderator CLI: it inspects and resets
// sender risk scores and manages manual Pro grants.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"talentchat/backend/internal/config"
	"talentchat/backend/internal/logging"
	"talentchat/backend/internal/models"
	"talentchat/backend/internal/risk"
	"talentchat/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type app struct {
	store   *storage.Service
	tracker *risk.Tracker
	out     io.Writer
	close   func()
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	v := config.NewViper()
	var a *app

	root := &cobra.Command{
		Use:          "talentchat-admin",
		Short:        "Moderation tools for booking chats",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			opened, err := openApp(v, out)
			if err != nil {
				return err
			}
			a = opened
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}
	root.PersistentFlags().String("database-driver", v.GetString("database.driver"), "Database driver (postgres, sqlite)")
	root.PersistentFlags().String("database-dsn", v.GetString("database.dsn"), "Database DSN or SQLite path")
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	for key, flag := range map[string]string{
		"database.driver": "database-driver",
		"database.dsn":    "database-dsn",
		"log.level":       "log-level",
	} {
		if err := v.BindPFlag(key, root.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	riskCmd := &cobra.Command{Use: "risk", Short: "Inspect sender risk scores"}
	var minScore, limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the riskiest senders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listRisk(cmd.Context(), minScore, limit)
		},
	}
	listCmd.Flags().IntVar(&minScore, "min-score", config.DefaultBlockThreshold, "Only show scores at or above this value")
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")

	showCmd := &cobra.Command{
		Use:   "show <kind> <channel_id> <sender_id>",
		Short: "Show one sender's record in a conversation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0], args[1])
			if err != nil {
				return err
			}
			return a.showRisk(cmd.Context(), ch, args[2])
		},
	}
	resetCmd := &cobra.Command{
		Use:   "reset <kind> <channel_id> <sender_id>",
		Short: "Clear a sender's score after review",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0], args[1])
			if err != nil {
				return err
			}
			return a.resetRisk(cmd.Context(), ch, args[2])
		},
	}
	riskCmd.AddCommand(listCmd, showCmd, resetCmd)

	proCmd := &cobra.Command{Use: "pro", Short: "Manage manual Pro grants"}
	var hours int
	grantCmd := &cobra.Command{
		Use:   "grant <user_id>",
		Short: "Grant Pro messaging to a talent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return errors.New("--hours must be positive")
			}
			until := time.Now().Add(time.Duration(hours) * time.Hour)
			if err := a.store.GrantPro(cmd.Context(), args[0], until); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Pro granted to %s until %s\n", args[0], until.UTC().Format(time.RFC3339))
			return nil
		},
	}
	grantCmd.Flags().IntVar(&hours, "hours", 24*30, "Grant duration in hours")
	revokeCmd := &cobra.Command{
		Use:   "revoke <user_id>",
		Short: "Remove a manual Pro grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.GrantPro(cmd.Context(), args[0], time.Time{}); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Pro grant revoked for %s\n", args[0])
			return nil
		},
	}
	proCmd.AddCommand(grantCmd, revokeCmd)

	root.AddCommand(riskCmd, proCmd)
	return root
}

func openApp(v *viper.Viper, out io.Writer) (*app, error) {
	logger, err := logging.NewLogger(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	driver := strings.ToLower(strings.TrimSpace(v.GetString("database.driver")))
	db, err := storage.Open(driver, v.GetString("database.dsn"), logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Admin commands never subscribe, so inserts stay local.
	store, err := storage.NewService(storage.ServiceConfig{Database: db, Broker: storage.NewLocalBroker(), Logger: logger})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	tracker, err := risk.NewTracker(risk.TrackerConfig{Store: store, Logger: logger})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &app{
		store:   store,
		tracker: tracker,
		out:     out,
		close: func() {
			_ = logger.Sync()
			if err := sqlDB.Close(); err != nil {
				logger.Warn("failed to close database", zap.Error(err))
			}
		},
	}, nil
}

func parseChannel(kind, id string) (models.Channel, error) {
	parsed, err := models.ParseChannelKind(kind)
	if err != nil {
		return models.Channel{}, err
	}
	return models.NewChannel(parsed, id)
}

func (a *app) listRisk(ctx context.Context, minScore, limit int) error {
	records, err := a.store.HighRiskRecords(ctx, minScore, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No senders at or above that score.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tSENDER\tSCORE\tPATTERNS\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			rec.Channel().Key(), rec.SenderID, rec.RiskScore,
			strings.Join(rec.DetectedPatterns, ","),
			rec.LastUpdated.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) showRisk(ctx context.Context, ch models.Channel, senderID string) error {
	rec, err := a.store.ReadRisk(ctx, ch, senderID)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintf(a.out, "No risk record for %s in %s.\n", senderID, ch.Key())
		return nil
	}
	printRecord(a.out, rec)
	return nil
}

func (a *app) resetRisk(ctx context.Context, ch models.Channel, senderID string) error {
	rec, err := a.tracker.Reset(ctx, ch, senderID)
	if err != nil {
		return err
	}
	printRecord(a.out, rec)
	return nil
}

func printRecord(out io.Writer, rec *models.RiskRecord) {
	fmt.Fprintf(out, "channel:  %s\nsender:   %s\nscore:    %d\npatterns: %s\nupdated:  %s\n",
		rec.Channel().Key(), rec.SenderID, rec.RiskScore,
		strings.Join(rec.DetectedPatterns, ", "),
		rec.LastUpdated.UTC().Format(time.RFC3339))
}
