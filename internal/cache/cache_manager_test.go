package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"boiler-telemetry/internal/cache"
	"boiler-telemetry/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCacheManager_UpdateRealtime_WritesJSON(t *testing.T) {
	kv := newMemoryKV()
	cm := cache.NewCacheManager(kv, "", 0, zap.NewNop())

	reading := models.DerivedReading{
		CanonicalReading: models.CanonicalReading{
			DeviceID:   "boiler-1",
			ObservedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
			PowerKW:    10,
		},
		GasConsumptionM3H: 1,
		CumulativeFlowL:   2.5,
	}
	require.NoError(t, cm.UpdateRealtime(context.Background(), reading))

	raw, err := kv.Get(context.Background(), "boiler:device:boiler-1:realtime")
	require.NoError(t, err)

	var decoded models.DerivedReading
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 10.0, decoded.PowerKW)
	assert.Equal(t, 2.5, decoded.CumulativeFlowL)
	assert.Equal(t, cache.DefaultTTL, kv.ttl("boiler:device:boiler-1:realtime"))

	got, err := cm.GetRealtime(context.Background(), "boiler-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.GasConsumptionM3H)
}

func TestCacheManager_AlertsReplacedWholesale(t *testing.T) {
	kv := newMemoryKV()
	cm := cache.NewCacheManager(kv, "test:", time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cm.UpdateAlerts(ctx, "boiler-1", []models.Alert{
		{Kind: models.AlertGasLimit, Value: 120, Limit: 100},
		{Kind: models.AlertCostLimit, Value: 960, Limit: 800},
	}))
	require.NoError(t, cm.UpdateAlerts(ctx, "boiler-1", nil))

	alerts, err := cm.GetAlerts(ctx, "boiler-1")
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)

	raw, err := kv.Get(ctx, "test:boiler-1:alerts")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

func TestCacheManager_Miss(t *testing.T) {
	cm := cache.NewCacheManager(newMemoryKV(), "", 0, zap.NewNop())

	_, err := cm.GetRealtime(context.Background(), "boiler-1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	_, err = cm.GetAlerts(context.Background(), "boiler-1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestCacheManager_SetFailureWrapped(t *testing.T) {
	kv := newMemoryKV()
	kv.setErr = errors.New("connection refused")
	cm := cache.NewCacheManager(kv, "", 0, zap.NewNop())

	err := cm.UpdateAlerts(context.Background(), "boiler-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.setErr)
	assert.Contains(t, err.Error(), "failed to set cache")
}
