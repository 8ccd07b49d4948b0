package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "deepseek", cfg.PrimaryLLM)
	assert.Equal(t, "claude", cfg.RiskDetectionLLM)
	assert.Equal(t, 10*time.Second, cfg.ClassifierTimeout)
	assert.Equal(t, 30*time.Second, cfg.GeneratorTimeout)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 3, cfg.GroundingMinTurnSpacing)
	assert.Equal(t, 3, cfg.GroundingMaxOffers)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.AutoFlagTherapist)
	assert.False(t, cfg.Strict())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_DRIVER":            "SQLite",
		"DATABASE_URL":               "file:cbt.db",
		"ENVIRONMENT":                "development",
		"PRIMARY_LLM":                "Claude",
		"CLASSIFIER_TIMEOUT":         "2500ms",
		"HISTORY_LIMIT":              "20",
		"GROUNDING_MIN_TURN_SPACING": "0",
		"AUTO_FLAG_THERAPIST":        "true",
		"TELEGRAM_BOT_TOKEN":         "123:abc",
		"CLINICIAN_CHAT_ID":          "-100500",
		"LOG_LEVEL":                  "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "claude", cfg.Agent().Primary)
	assert.Equal(t, 2500*time.Millisecond, cfg.ClassifierTimeout)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, 0, cfg.Grounding().MinTurnSpacing)
	assert.True(t, cfg.AutoFlagTherapist)
	assert.Equal(t, int64(-100500), cfg.ClinicianChatID)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.Strict())
}

func TestLoadReportsEveryBadValue(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{
		"CLASSIFIER_TIMEOUT":  "soon",
		"HISTORY_LIMIT":       "0",
		"AUTO_FLAG_THERAPIST": "yes please",
		"DATABASE_DRIVER":     "mysql",
	}))
	require.Error(t, err)
	for _, key := range []string{"CLASSIFIER_TIMEOUT", "HISTORY_LIMIT", "AUTO_FLAG_THERAPIST", "DATABASE_DRIVER"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadAlertingNeedsTelegram(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{"AUTO_FLAG_THERAPIST": "1"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLINICIAN_CHAT_ID")
}
