package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"talentchat/backend/internal/models"
	"talentchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "admin.db")
	db, err := storage.Open("sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	profileID := "profile-1"
	require.NoError(t, db.Create(&models.TalentProfile{ID: profileID, UserID: "talent-user"}).Error)
	rec := models.NewRiskRecord(models.Channel{Kind: models.ChannelKindBooking, ID: "booking-1"}, "talent-user", time.Now())
	rec.RiskScore = 70
	rec.MergePatterns([]string{"phone", "contact_intent"})
	require.NoError(t, db.Create(rec).Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return dsn
}

func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--database-driver", "sqlite", "--database-dsn", dsn}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRiskList(t *testing.T) {
	dsn := seedDatabase(t)

	out, err := run(t, dsn, "risk", "list", "--min-score", "40")

	require.NoError(t, err)
	assert.Contains(t, out, "booking_booking-1")
	assert.Contains(t, out, "phone,contact_intent")

	out, err = run(t, dsn, "risk", "list", "--min-score", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "No senders")
}

func TestRiskShowAndReset(t *testing.T) {
	dsn := seedDatabase(t)

	out, err := run(t, dsn, "risk", "show", "booking", "booking-1", "talent-user")
	require.NoError(t, err)
	assert.Contains(t, out, "score:    70")

	_, err = run(t, dsn, "risk", "reset", "booking", "booking-1", "talent-user")
	require.NoError(t, err)

	out, err = run(t, dsn, "risk", "show", "booking", "booking-1", "talent-user")
	require.NoError(t, err)
	assert.Contains(t, out, "score:    0")

	_, err = run(t, dsn, "risk", "show", "gig", "1", "talent-user")
	assert.ErrorIs(t, err, models.ErrInvalidChannelKind)
}

func TestProGrantAndRevoke(t *testing.T) {
	dsn := seedDatabase(t)

	out, err := run(t, dsn, "pro", "grant", "talent-user", "--hours", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Pro granted to talent-user")

	out, err = run(t, dsn, "pro", "revoke", "talent-user")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")

	_, err = run(t, dsn, "pro", "grant", "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
