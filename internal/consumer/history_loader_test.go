package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"boiler-telemetry/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReadingLister struct {
	rows      []models.CanonicalReading
	err       error
	gotLimit  int
	gotDevice string
}

func (f *fakeReadingLister) ListRecent(ctx context.Context, deviceID string, limit int) ([]models.CanonicalReading, error) {
	f.gotDevice = deviceID
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func TestLoadRecent_ReturnsAscending(t *testing.T) {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeReadingLister{rows: []models.CanonicalReading{
		{DeviceID: "boiler-1", ObservedAt: base.Add(10 * time.Second)},
		{DeviceID: "boiler-1", ObservedAt: base.Add(5 * time.Second)},
		{DeviceID: "boiler-1", ObservedAt: base},
	}}
	health := NewHealth()
	health.MarkStorageDegraded()
	loader := NewHistoryLoader(store, health, time.Second, zap.NewNop())

	got := loader.LoadRecent(context.Background(), "boiler-1", 0)

	require.Len(t, got, 3)
	assert.Equal(t, base, got[0].ObservedAt)
	assert.Equal(t, base.Add(10*time.Second), got[2].ObservedAt)
	assert.Equal(t, DefaultHistoryLimit, store.gotLimit)
	assert.Equal(t, "boiler-1", store.gotDevice)
	assert.True(t, health.StorageHealthy())
}

func TestLoadRecent_ErrorDegradesToEmpty(t *testing.T) {
	store := &fakeReadingLister{err: errors.New("relation does not exist")}
	health := NewHealth()
	loader := NewHistoryLoader(store, health, time.Second, zap.NewNop())

	got := loader.LoadRecent(context.Background(), "boiler-1", 100)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, health.StorageHealthy())
}
