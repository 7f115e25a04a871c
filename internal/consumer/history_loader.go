package consumer

import (
	"context"
	"time"

	"boiler-telemetry/internal/metrics"
	"boiler-telemetry/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit   = 100
	DefaultHistoryTimeout = 10 * time.Second
)

// ReadingLister 历史读数查询接口（按时间倒序）
type ReadingLister interface {
	ListRecent(ctx context.Context, deviceID string, limit int) ([]models.CanonicalReading, error)
}

// HistoryLoader 切换设备时加载最近的历史读数
type HistoryLoader struct {
	store   ReadingLister
	health  *Health
	timeout time.Duration
	logger  *zap.Logger
}

// NewHistoryLoader 创建历史加载器
func NewHistoryLoader(store ReadingLister, health *Health, timeout time.Duration, logger *zap.Logger) *HistoryLoader {
	if timeout <= 0 {
		timeout = DefaultHistoryTimeout
	}
	return &HistoryLoader{
		store:   store,
		health:  health,
		timeout: timeout,
		logger:  logger,
	}
}

// LoadRecent 返回设备最近 limit 条读数（按时间正序）
// 查询失败返回空切片并标记存储降级，不向调用方返回错误
func (l *HistoryLoader) LoadRecent(ctx context.Context, deviceID string, limit int) []models.CanonicalReading {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.store.ListRecent(ctx, deviceID, limit)
	if err != nil {
		metrics.HistoryLoads.WithLabelValues("failed").Inc()
		l.health.MarkStorageDegraded()
		l.logger.Warn("Failed to load reading history",
			zap.String("device_id", deviceID),
			zap.Int("limit", limit),
			zap.Error(err),
		)
		return []models.CanonicalReading{}
	}

	metrics.HistoryLoads.WithLabelValues("ok").Inc()
	l.health.MarkStorageHealthy()

	out := make([]models.CanonicalReading, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r
	}

	l.logger.Info("Reading history loaded",
		zap.String("device_id", deviceID),
		zap.Int("count", len(out)),
	)
	return out
}
