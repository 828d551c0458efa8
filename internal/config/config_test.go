package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AccessToken)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 900*time.Second, cfg.CartExpiration)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "secret")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("SESSION_REFRESH_INTERVAL_IN_SECONDS", "5")
	t.Setenv("SESSION_EXPIRATION_TIME_IN_SECONDS", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, time.Minute, cfg.CartExpiration)
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidInterval(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "secret")
	t.Setenv("SESSION_REFRESH_INTERVAL_IN_SECONDS", "soon")

	_, err := Load()
	assert.Error(t, err)
}
