package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"boiler-telemetry/internal/models"
	"boiler-telemetry/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRealtimeCache struct {
	mu       sync.Mutex
	readings []models.DerivedReading
	alerts   map[string][]models.Alert
}

func (f *fakeRealtimeCache) UpdateRealtime(ctx context.Context, r models.DerivedReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
	return nil
}

func (f *fakeRealtimeCache) UpdateAlerts(ctx context.Context, deviceID string, alerts []models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alerts == nil {
		f.alerts = make(map[string][]models.Alert)
	}
	f.alerts[deviceID] = alerts
	return nil
}

type fakeStream struct {
	mu       sync.Mutex
	readings []models.DerivedReading
}

func (f *fakeStream) PublishReading(ctx context.Context, r models.DerivedReading) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
	return "1-0", nil
}

func (f *fakeStream) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) Broadcast(eventType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeBroadcaster) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func TestFanoutPublisher_ReadingReachesAllOutputs(t *testing.T) {
	cache := &fakeRealtimeCache{}
	stream := &fakeStream{}
	hub := &fakeBroadcaster{}
	p := NewFanoutPublisher(cache, stream, hub, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		p.Wait()
	}()
	p.Start(ctx)

	reading := models.DerivedReading{CanonicalReading: models.CanonicalReading{DeviceID: "boiler-a", PowerKW: 12}}
	p.PublishReading(ReadingEvent{DerivedReading: reading, WindowFlowL: 5})
	p.PublishAlerts("boiler-a", []models.Alert{{Kind: models.AlertGasLimit}})
	p.PublishSession(SessionState{DeviceID: "boiler-a"})
	p.PublishHealth(models.HealthStatus{StorageHealthy: true})

	assert.Equal(t, []string{
		websocket.EventReading,
		websocket.EventAlerts,
		websocket.EventSession,
		websocket.EventHealth,
	}, hub.Events())

	require.Eventually(t, func() bool { return stream.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		return len(cache.readings) == 1 && len(cache.alerts["boiler-a"]) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFanoutPublisher_WithoutRedisOnlyBroadcasts(t *testing.T) {
	hub := &fakeBroadcaster{}
	p := NewFanoutPublisher(nil, nil, hub, 1, zap.NewNop())

	// 未启动也不阻塞
	for i := 0; i < 5; i++ {
		p.PublishReading(ReadingEvent{})
	}
	assert.Len(t, hub.Events(), 5)
}

func TestFanoutPublisher_FullQueueDoesNotBlock(t *testing.T) {
	p := NewFanoutPublisher(&fakeRealtimeCache{}, nil, nil, 1, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.PublishReading(ReadingEvent{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishReading blocked on full queue")
	}
}
