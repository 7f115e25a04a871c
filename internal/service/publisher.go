package service

import (
	"context"
	"sync"
	"time"

	"boiler-telemetry/internal/models"
	"boiler-telemetry/internal/websocket"

	"go.uber.org/zap"
)

const (
	DefaultPublishQueueSize = 256
	DefaultPublishTimeout   = 2 * time.Second
)

// RealtimeCache 实时读数和报警缓存（cache.CacheManager 实现）
type RealtimeCache interface {
	UpdateRealtime(ctx context.Context, reading models.DerivedReading) error
	UpdateAlerts(ctx context.Context, deviceID string, alerts []models.Alert) error
}

// ReadingStream 读数流（cache.StreamPublisher 实现）
type ReadingStream interface {
	PublishReading(ctx context.Context, reading models.DerivedReading) (string, error)
}

// Broadcaster 看板推送（websocket.Hub 实现）
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

type publishJob struct {
	reading  *models.DerivedReading
	deviceID string
	alerts   []models.Alert
}

// FanoutPublisher 把会话输出分发到 websocket、Redis 缓存和 Redis Stream
// websocket 广播本身不阻塞，直接发送；Redis 写入经缓冲队列由后台 goroutine 执行
type FanoutPublisher struct {
	cache   RealtimeCache
	stream  ReadingStream
	hub     Broadcaster
	timeout time.Duration
	logger  *zap.Logger

	jobs chan publishJob
	wg   sync.WaitGroup
}

// NewFanoutPublisher 创建发布器；cache、stream、hub 均可为 nil
func NewFanoutPublisher(cache RealtimeCache, stream ReadingStream, hub Broadcaster, queueSize int, logger *zap.Logger) *FanoutPublisher {
	if queueSize <= 0 {
		queueSize = DefaultPublishQueueSize
	}
	return &FanoutPublisher{
		cache:   cache,
		stream:  stream,
		hub:     hub,
		timeout: DefaultPublishTimeout,
		logger:  logger,
		jobs:    make(chan publishJob, queueSize),
	}
}

// Start 启动后台写入；ctx 取消后返回
func (p *FanoutPublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-p.jobs:
				p.run(ctx, job)
			}
		}
	}()
}

// Wait 等待后台 goroutine 退出
func (p *FanoutPublisher) Wait() {
	p.wg.Wait()
}

func (p *FanoutPublisher) run(ctx context.Context, job publishJob) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if job.reading != nil {
		if p.cache != nil {
			if err := p.cache.UpdateRealtime(ctx, *job.reading); err != nil {
				p.logger.Warn("Failed to cache realtime reading",
					zap.String("device_id", job.reading.DeviceID),
					zap.Error(err),
				)
			}
		}
		if p.stream != nil {
			if _, err := p.stream.PublishReading(ctx, *job.reading); err != nil {
				p.logger.Warn("Failed to publish reading to stream",
					zap.String("device_id", job.reading.DeviceID),
					zap.Error(err),
				)
			}
		}
		return
	}

	if p.cache != nil {
		if err := p.cache.UpdateAlerts(ctx, job.deviceID, job.alerts); err != nil {
			p.logger.Warn("Failed to cache alerts",
				zap.String("device_id", job.deviceID),
				zap.Error(err),
			)
		}
	}
}

func (p *FanoutPublisher) enqueue(job publishJob) {
	if p.cache == nil && p.stream == nil {
		return
	}
	select {
	case p.jobs <- job:
	default:
		p.logger.Debug("Publish queue full, dropping cache update")
	}
}

// PublishReading 推送派生读数；缓存和 Stream 只写读数本身
func (p *FanoutPublisher) PublishReading(event ReadingEvent) {
	if p.hub != nil {
		p.hub.Broadcast(websocket.EventReading, event)
	}
	r := event.DerivedReading
	p.enqueue(publishJob{reading: &r})
}

// PublishAlerts 推送报警集合（整体替换）
func (p *FanoutPublisher) PublishAlerts(deviceID string, alerts []models.Alert) {
	if p.hub != nil {
		p.hub.Broadcast(websocket.EventAlerts, map[string]interface{}{
			"device_id": deviceID,
			"alerts":    alerts,
		})
	}
	p.enqueue(publishJob{deviceID: deviceID, alerts: alerts})
}

// PublishSession 推送会话切换
func (p *FanoutPublisher) PublishSession(state SessionState) {
	if p.hub != nil {
		p.hub.Broadcast(websocket.EventSession, state)
	}
}

// PublishHealth 推送健康状态变化
func (p *FanoutPublisher) PublishHealth(status models.HealthStatus) {
	if p.hub != nil {
		p.hub.Broadcast(websocket.EventHealth, status)
	}
}
