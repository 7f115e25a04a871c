package cache

import (
	"context"
	"fmt"

	rediscommon "boiler-telemetry/common/redis"
	"boiler-telemetry/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	DefaultReadingStream = "boiler:readings:stream"
	DefaultStreamMaxLen  = 10000
)

// StreamPublisher 把派生读数追加到 Redis Stream，供下游消费
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamPublisher 创建 Stream 发布器
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultReadingStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// PublishReading 发布一条派生读数
func (p *StreamPublisher) PublishReading(ctx context.Context, reading models.DerivedReading) (string, error) {
	streamID, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, reading)
	if err != nil {
		return "", fmt.Errorf("failed to publish reading to stream %s: %w", p.stream, err)
	}

	p.logger.Debug("Published reading to Redis Streams",
		zap.String("device_id", reading.DeviceID),
		zap.String("stream", p.stream),
		zap.String("stream_id", streamID),
	)
	return streamID, nil
}
