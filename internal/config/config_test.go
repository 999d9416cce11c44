package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("AUTOLAUNCH_TEST_STR", "hello")
	assert.Equal(t, "hello", getEnvString("AUTOLAUNCH_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnvString("AUTOLAUNCH_TEST_MISSING", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("AUTOLAUNCH_TEST_INT", "42")
	t.Setenv("AUTOLAUNCH_TEST_BAD_INT", "forty-two")
	assert.Equal(t, 42, getEnvInt("AUTOLAUNCH_TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("AUTOLAUNCH_TEST_BAD_INT", 7))
	assert.Equal(t, 7, getEnvInt("AUTOLAUNCH_TEST_MISSING", 7))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"banana", false},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("AUTOLAUNCH_TEST_BOOL", tc.value)
			assert.Equal(t, tc.want, getEnvBool("AUTOLAUNCH_TEST_BOOL", !tc.want))
		})
	}
	assert.True(t, getEnvBool("AUTOLAUNCH_TEST_MISSING", true))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("AUTOLAUNCH_TEST_DUR", "90s")
	t.Setenv("AUTOLAUNCH_TEST_BAD_DUR", "soon")
	assert.Equal(t, 90*time.Second, getEnvDuration("AUTOLAUNCH_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("AUTOLAUNCH_TEST_BAD_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("AUTOLAUNCH_TEST_MISSING", time.Minute))
}

func TestLocation(t *testing.T) {
	utc := &Config{UseUTC: true}
	assert.Equal(t, time.UTC, utc.Location())

	local := &Config{}
	assert.Equal(t, time.Local, local.Location())
}

// Parse registers flags on the global FlagSet, so it can run at most once
// per test binary.
func TestParse(t *testing.T) {
	t.Setenv("AUTOLAUNCH_ADDR", "127.0.0.1:9999")
	t.Setenv("AUTOLAUNCH_AUTH_TOKEN", "secret")
	t.Setenv("AUTOLAUNCH_LOG_LEVEL", "debug")
	t.Setenv("AUTOLAUNCH_EVENT_RETENTION", "250")
	t.Setenv("AUTOLAUNCH_SCAN_INTERVAL", "5s")
	t.Setenv("AUTOLAUNCH_USE_UTC", "true")
	t.Setenv("AUTOLAUNCH_STATE_DIR", t.TempDir())
	t.Setenv("AUTOLAUNCH_BARK_URL", "https://api.day.app/key")
	t.Setenv("AUTOLAUNCH_BARK_ENABLED", "true")

	cfg, err := Parse()
	assert.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.AuthToken)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 250, cfg.Log.Retention)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ScanInterval)
	assert.Equal(t, defaultGraceWindow, cfg.Scheduler.GraceWindow)
	assert.Equal(t, defaultIdleThreshold, cfg.Scheduler.IdleThreshold)
	assert.Equal(t, defaultResolveTimeout, cfg.Scheduler.ResolveTimeout)
	assert.Equal(t, "https://api.day.app/key", cfg.Notification.Bark.URL)
	assert.True(t, cfg.Notification.Bark.Enabled)
	assert.Equal(t, "http", cfg.Mode)
	assert.True(t, cfg.UseUTC)
	assert.Equal(t, defaultShutdownGrace, cfg.ShutdownGrace)
}
