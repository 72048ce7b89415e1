package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbot/internal/calendar"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir()) // keep a developer .env out of the test
	t.Setenv("DATABASE_URL", "sqlite://courtbot.db")
	t.Setenv("PHONE_ENCRYPTION_KEY", "a-long-enough-test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.QueueTTLDays)
	assert.Equal(t, 24*time.Hour, cfg.ReminderLead)
	assert.Equal(t, 30*time.Second, cfg.SendTimeout)
	assert.Equal(t, 8, cfg.SweepConcurrency)
	assert.False(t, cfg.LegacyQueue)
	assert.Equal(t, calendar.DefaultLayout(), cfg.Court.Layout)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PHONE_ENCRYPTION_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "PHONE_ENCRYPTION_KEY")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("QUEUE_TTL_DAYS", "14")
	t.Setenv("REMINDER_LEAD_HOURS", "36")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LEGACY_QUEUE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.QueueTTLDays)
	assert.Equal(t, 36*time.Hour, cfg.ReminderLead)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.LegacyQueue)
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("QUEUE_TTL_DAYS", "ten")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("QUEUE_TTL_DAYS", "0")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("QUEUE_TTL_DAYS", "10")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	_, err = Load()
	assert.Error(t, err, "sid without token")
}

func TestLoadCourtProfile(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "court.yaml")
	profile := `
name: Springfield Traffic Court
url: https://traffic.springfield.gov
layout:
  case_number: 8
  min_fields: 9
  time_zone: America/Chicago
  date_policy: earliest
  junk_markers: ["CONTINUED", "Page "]
templates:
  expired: "Case {{ case_id }} not found."
`
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o644))
	t.Setenv("COURT_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Springfield Traffic Court", cfg.Court.Name)
	assert.Equal(t, 8, cfg.Court.Layout.CaseNumber)
	assert.Equal(t, 9, cfg.Court.Layout.MinFields)
	assert.Equal(t, calendar.EarliestWins, cfg.Court.Layout.DatePolicy)
	assert.Equal(t, []string{"CONTINUED", "Page "}, cfg.Court.Layout.JunkMarkers)
	// untouched columns keep their defaults
	assert.Equal(t, 1, cfg.Court.Layout.Defendant)
	assert.Equal(t, "01/02/2006", cfg.Court.Layout.DateFormat)
	assert.Equal(t, "Case {{ case_id }} not found.", cfg.Court.Templates["expired"])

	loc, err := cfg.Court.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}
