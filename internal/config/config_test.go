package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	for _, key := range []string{"DB_HOST", "MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC", "TIMEZONE", "GAS_PRICE_PER_M3"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "ws://broker.hivemq.com:8000/mqtt", cfg.MQTT.Broker)
	assert.Regexp(t, `^dashboard_[0-9a-f]{8}$`, cfg.MQTT.ClientID)
	assert.Equal(t, 10*time.Second, cfg.MQTT.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.MQTT.ReconnectInterval)
	assert.Equal(t, "carolinepaz/sensores", cfg.Telemetry.Topic)
	assert.Equal(t, 50, cfg.Telemetry.WindowSize)
	assert.Equal(t, 100, cfg.Telemetry.HistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.SampleInterval)
	assert.Equal(t, 0.1, cfg.Telemetry.GasConversionFactor)
	assert.Equal(t, "8.00", cfg.Telemetry.GasPricePerM3.StringFixed(2))
	assert.Equal(t, 3, cfg.Persist.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Persist.BackoffBase)
	assert.Equal(t, time.Minute, cfg.Alerts.CheckInterval)
	assert.Equal(t, 30*time.Minute, cfg.Weather.RefreshInterval)
	assert.Equal(t, "America/Sao_Paulo", cfg.Location.String())
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("MQTT_CLIENT_ID", "boiler-svc")
	t.Setenv("MQTT_RECONNECT_INTERVAL", "2s")
	t.Setenv("TELEMETRY_WINDOW_SIZE", "20")
	t.Setenv("GAS_PRICE_PER_M3", "7.35")
	t.Setenv("PERSIST_MAX_ATTEMPTS", "5")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("CACHE_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "boiler-svc", cfg.MQTT.ClientID)
	assert.Equal(t, 2*time.Second, cfg.MQTT.ReconnectInterval)
	assert.Equal(t, 20, cfg.Telemetry.WindowSize)
	assert.Equal(t, "7.35", cfg.Telemetry.GasPricePerM3.String())
	assert.Equal(t, 5, cfg.Persist.MaxAttempts)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TELEMETRY_WINDOW_SIZE", "fifty")
	t.Setenv("PERSIST_BACKOFF_BASE", "-1s")
	t.Setenv("GAS_PRICE_PER_M3", "free")
	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")

	cfg, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEMETRY_WINDOW_SIZE")
	assert.Contains(t, err.Error(), "PERSIST_BACKOFF_BASE")
	assert.Contains(t, err.Error(), "GAS_PRICE_PER_M3")
	assert.Contains(t, err.Error(), "TIMEZONE")

	require.NotNil(t, cfg)
	assert.Equal(t, 50, cfg.Telemetry.WindowSize)
	assert.Equal(t, time.Second, cfg.Persist.BackoffBase)
	assert.Equal(t, "8.00", cfg.Telemetry.GasPricePerM3.StringFixed(2))
	assert.Equal(t, time.UTC, cfg.Location)
}
