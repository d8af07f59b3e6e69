package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("ENV", "")
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8090/api", cfg.API.BaseURL)
	assert.Equal(t, DefaultPollInitialInterval, cfg.Poll.InitialInterval)
	assert.Equal(t, DefaultPollMaxAttempts, cfg.Poll.MaxAttempts)
	assert.Equal(t, "file", cfg.Session.Store)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV", "")
	t.Chdir(t.TempDir())
	t.Setenv("API_BASE_URL", "http://quiz.internal/api")
	t.Setenv("POLL_INITIAL_INTERVAL", "250ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://quiz.internal/api", cfg.API.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.InitialInterval)
	assert.Equal(t, 7, cfg.Poll.MaxAttempts)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API:     APIConfig{BaseURL: "http://localhost"},
			Poll:    PollDefaults(),
			Session: SessionConfig{Store: "memory"},
		}
	}

	assert.NoError(t, valid().Validate())

	c := valid()
	c.API.BaseURL = ""
	assert.Error(t, c.Validate())

	c = valid()
	c.Poll.InitialInterval = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Poll.Multiplier = 0.5
	assert.Error(t, c.Validate())

	c = valid()
	c.Session.Store = "redis"
	assert.Error(t, c.Validate(), "redis store needs an address")
	c.Redis.Address = "localhost:6379"
	assert.NoError(t, c.Validate())

	c = valid()
	c.Session.Store = "file"
	assert.NoError(t, c.Validate())

	c = valid()
	c.Session.Store = "sqlite"
	assert.Error(t, c.Validate())
}
