package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAllRequired(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"PORT":              "8080",
		"CRYPTO_KEY":        "a-32-byte-urlsafe-base64-key-value",
		"REDIS_ADDR":        "localhost:6379",
		"AUTH_GRPC_ADDR":    "localhost:9090",
		"SMTP_HOST":         "smtp.example.com",
		"SMTP_PORT":         "587",
		"SMTP_USER":         "user",
		"SMTP_PASSWORD":     "pw",
		"SMTP_FROM_NAME":    "Event Platform",
		"SMTP_FROM_ADDRESS": "noreply@example.com",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestValidateEnv_Success(t *testing.T) {
	setAllRequired(t)

	cfg, err := ValidateEnv(false)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60, cfg.SchedulerTickSeconds)
	assert.Equal(t, 300, cfg.SchedulerWindowSeconds)
	assert.Equal(t, 2, cfg.AuthTimeoutSeconds)
}

func TestValidateEnv_MissingRequired(t *testing.T) {
	os.Clearenv()
	_, err := ValidateEnv(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT is required")
	assert.Contains(t, err.Error(), "CRYPTO_KEY is required")
}

func TestValidateEnv_RequiresDatabaseURLForReminderStore(t *testing.T) {
	setAllRequired(t)
	_, err := ValidateEnv(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestValidateEnv_InvalidHostPort(t *testing.T) {
	setAllRequired(t)
	t.Setenv("REDIS_ADDR", "not-a-host-port")
	_, err := ValidateEnv(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR must be in format")
}

func TestValidateEnv_OverridesScheduler(t *testing.T) {
	setAllRequired(t)
	t.Setenv("SCHEDULER_TICK_SECONDS", "30")
	t.Setenv("SCHEDULER_WINDOW_SECONDS", "120")
	cfg, err := ValidateEnv(false)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.SchedulerTickSeconds)
	assert.Equal(t, 120, cfg.SchedulerWindowSeconds)
}

func TestIsValidHostPort(t *testing.T) {
	assert.True(t, isValidHostPort("localhost:8080"))
	assert.False(t, isValidHostPort("localhost"))
	assert.False(t, isValidHostPort(":8080"))
	assert.False(t, isValidHostPort("localhost:notaport"))
}
