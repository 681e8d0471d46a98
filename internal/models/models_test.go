package models_test

import (
	"reflect"
	"testing"
	"time"

	"talentchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannel_Validates(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.ChannelKind
		id      string
		wantErr error
	}{
		{name: "booking", kind: models.ChannelKindBooking, id: "b-1"},
		{name: "event request trims id", kind: models.ChannelKindEventRequest, id: "  er-9 "},
		{name: "unknown kind", kind: "gig", id: "x", wantErr: models.ErrInvalidChannelKind},
		{name: "blank id", kind: models.ChannelKindBooking, id: "   ", wantErr: models.ErrInvalidChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := models.NewChannel(tt.kind, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ch.Kind)
			assert.NotContains(t, ch.ID, " ")
		})
	}
}

func TestChannelKey(t *testing.T) {
	ch, err := models.NewChannel(models.ChannelKindEventRequest, "42")
	require.NoError(t, err)

	assert.Equal(t, "event_request_42", ch.Key())
	assert.False(t, ch.IsZero())
	assert.True(t, models.Channel{}.IsZero())
}

func TestParseChannelKind_CaseInsensitive(t *testing.T) {
	kind, err := models.ParseChannelKind(" Booking ")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelKindBooking, kind)
}

func TestNewMessage_SetsExactlyOneRef(t *testing.T) {
	booking := models.NewMessage(models.Channel{Kind: models.ChannelKindBooking, ID: "b-1"}, "u1", "hi")
	request := models.NewMessage(models.Channel{Kind: models.ChannelKindEventRequest, ID: "er-1"}, "u1", "hi")

	require.NotNil(t, booking.BookingID)
	assert.Nil(t, booking.EventRequestID)
	assert.Equal(t, models.Channel{Kind: models.ChannelKindBooking, ID: "b-1"}, booking.Channel())

	require.NotNil(t, request.EventRequestID)
	assert.Nil(t, request.BookingID)
	assert.Equal(t, models.Channel{Kind: models.ChannelKindEventRequest, ID: "er-1"}, request.Channel())
}

func TestMessageBeforeCreate_GeneratesUUIDv7(t *testing.T) {
	msg := models.NewMessage(models.Channel{Kind: models.ChannelKindBooking, ID: "b-1"}, "u1", "hi")
	assert.Empty(t, msg.ID)

	require.NoError(t, msg.BeforeCreate(nil))

	parsed, err := uuid.Parse(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NoError(t, msg.Validate())
}

func TestMessageBeforeCreate_PreservesExistingID(t *testing.T) {
	msg := models.Message{ID: "fixed"}
	require.NoError(t, msg.BeforeCreate(nil))
	assert.Equal(t, "fixed", msg.ID)
}

func TestMessageValidate_RejectsAmbiguousRef(t *testing.T) {
	id := "x"
	msg := models.Message{ID: "m1", SenderID: "u1", BookingID: &id, EventRequestID: &id}
	assert.Error(t, msg.Validate())

	msg = models.Message{ID: "m1", SenderID: "u1"}
	assert.Error(t, msg.Validate())
}

func TestMessageBefore_TieBreaksOnID(t *testing.T) {
	now := time.Now()
	a := models.Message{ID: "0001", CreatedAt: now}
	b := models.Message{ID: "0002", CreatedAt: now}
	c := models.Message{ID: "0000", CreatedAt: now.Add(time.Millisecond)}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
}

func TestRiskRecord_MergePatternsIsSetUnion(t *testing.T) {
	rec := models.NewRiskRecord(models.Channel{Kind: models.ChannelKindBooking, ID: "b-1"}, "u1", time.Now())

	rec.MergePatterns([]string{"phone", "contact_intent"})
	rec.MergePatterns([]string{"contact_intent", "email", ""})

	assert.Equal(t, []string{"phone", "contact_intent", "email"}, []string(rec.DetectedPatterns))
	assert.True(t, rec.HasPattern("email"))
	assert.Equal(t, models.Channel{Kind: models.ChannelKindBooking, ID: "b-1"}, rec.Channel())
}

func TestPatternSet_ArrayLiteral(t *testing.T) {
	value, err := models.PatternSet{"phone", "email"}.Value()
	require.NoError(t, err)
	assert.Equal(t, "{\"phone\",\"email\"}", value)

	var decoded models.PatternSet
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, models.PatternSet{"phone", "email"}, decoded)
}

func TestRiskRecordStructTags(t *testing.T) {
	sender, found := reflect.TypeOf(models.RiskRecord{}).FieldByName("SenderID")
	require.True(t, found)
	assert.Contains(t, sender.Tag.Get("gorm"), "uniqueIndex:idx_risk_channel_sender")
}

func TestTalentProfileIsPro(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name    string
		profile models.TalentProfile
		want    bool
	}{
		{name: "free", profile: models.TalentProfile{SubscriptionStatus: "inactive"}, want: false},
		{name: "active subscription", profile: models.TalentProfile{SubscriptionStatus: "active"}, want: true},
		{name: "admin grant", profile: models.TalentProfile{ManualGrantExpiresAt: &future}, want: true},
		{name: "expired grant", profile: models.TalentProfile{ManualGrantExpiresAt: &past}, want: false},
		{name: "flag", profile: models.TalentProfile{IsProSubscriber: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.IsPro(now))
		})
	}
}
