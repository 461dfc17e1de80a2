package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/eam")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.AMQPURL)
}

func TestParseRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParseRejectsShortSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/eam")
	t.Setenv("JWT_SECRET", "short")

	_, err := Parse()
	assert.ErrorContains(t, err, "JWT_SECRET")
}
