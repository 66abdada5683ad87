package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.NWWSEnabled)
	assert.Equal(t, "nwws-oi.weather.gov", cfg.NWWSHost)
	assert.Equal(t, 5222, cfg.NWWSPort)
	assert.Equal(t, "nwws@conference.nwws-oi.weather.gov", cfg.NWWSRoom)
	assert.Equal(t, "https://api.weather.gov", cfg.NWSAPIBase)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Empty(t, cfg.FilterStates)
	assert.Equal(t, time.Minute, cfg.ExpirationGrace)
	assert.Empty(t, cfg.PersistPath)
	assert.Equal(t, time.Minute, cfg.PersistInterval)
	assert.Equal(t, "data/ugc_map.json", cfg.UGCMapPath)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "alert-events", cfg.KafkaTopic)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("NWWS_ENABLED", "true")
	t.Setenv("NWWS_USERNAME", "wxuser")
	t.Setenv("NWWS_PASSWORD", "hunter2")
	t.Setenv("NWWS_NICKNAME", "relay-test")
	t.Setenv("NWS_API_BASE", "https://api.example.test")
	t.Setenv("POLL_INTERVAL_SECONDS", "60")
	t.Setenv("FILTER_STATES", "oh, pa ,WV")
	t.Setenv("EXPIRATION_GRACE_SECONDS", "120")
	t.Setenv("PERSIST_PATH", "/tmp/alerts.json")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.NWWSEnabled)
	assert.Equal(t, "wxuser", cfg.NWWSUsername)
	assert.Equal(t, "relay-test", cfg.NWWSNickname)
	assert.Equal(t, "https://api.example.test", cfg.NWSAPIBase)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, []string{"OH", "PA", "WV"}, cfg.FilterStates)
	assert.Equal(t, 2*time.Minute, cfg.ExpirationGrace)
	assert.Equal(t, "/tmp/alerts.json", cfg.PersistPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_NWWSRequiresCredentials(t *testing.T) {
	t.Setenv("NWWS_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NWWS_USERNAME")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL_SECONDS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL_SECONDS")
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")

	t.Setenv("PORT", "70000")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")

	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err = Load()
	require.Error(t, err)
}
