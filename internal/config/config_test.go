package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender-policy-review/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POLICY_API_BASE_URL", "")
	t.Setenv("APPROVED_RESET_DELAY", "")
	t.Setenv("REVIEW_NOTIFY_EMAILS", "")
	t.Setenv("SES_SENDER_EMAIL", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Equal(t, 3*time.Second, cfg.ApprovedResetDelay)
	assert.False(t, cfg.Enhance)
	assert.True(t, cfg.ValidateExtraction)
	assert.Empty(t, cfg.ReviewNotifyEmails)
	assert.False(t, cfg.NotificationsEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POLICY_API_BASE_URL", "https://policy.example.com/")
	t.Setenv("POLICY_ENHANCE", "true")
	t.Setenv("POLICY_VALIDATE_EXTRACTION", "false")
	t.Setenv("APPROVED_RESET_DELAY", "1500")
	t.Setenv("REVIEW_NOTIFY_EMAILS", "ops@example.com, ,risk@example.com")
	t.Setenv("SES_SENDER_EMAIL", "noreply@example.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://policy.example.com", cfg.APIBaseURL)
	assert.True(t, cfg.Enhance)
	assert.False(t, cfg.ValidateExtraction)
	assert.Equal(t, 1500*time.Millisecond, cfg.ApprovedResetDelay)
	assert.Equal(t, []string{"ops@example.com", "risk@example.com"}, cfg.ReviewNotifyEmails)
	assert.True(t, cfg.NotificationsEnabled())
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg := &config.Config{DBHost: "localhost", DBPort: 5432, DBName: "policy_review", DBUser: "postgres", DBPassword: "pw"}
	assert.Equal(t, "postgres://postgres:pw@localhost:5432/policy_review?sslmode=disable", cfg.DatabaseURL())

	cfg.DBHost = "db.internal"
	assert.Contains(t, cfg.DatabaseURL(), "sslmode=require")

	t.Setenv("DATABASE_URL", "postgres://override")
	assert.Equal(t, "postgres://override", cfg.DatabaseURL())
}
