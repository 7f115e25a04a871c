package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boiler-telemetry/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultKeyPrefix = "boiler:device:"
	DefaultTTL       = 5 * time.Minute
)

// CacheManager 设备实时数据与报警集合缓存
//
//	<prefix><device_id>:realtime  最新一条派生读数
//	<prefix><device_id>:alerts    最近一次评估的报警集合（整体替换）
type CacheManager struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(kv KVStore, prefix string, ttl time.Duration, logger *zap.Logger) *CacheManager {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CacheManager{
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CacheManager) realtimeKey(deviceID string) string {
	return fmt.Sprintf("%s%s:realtime", c.prefix, deviceID)
}

func (c *CacheManager) alertsKey(deviceID string) string {
	return fmt.Sprintf("%s%s:alerts", c.prefix, deviceID)
}

// UpdateRealtime 写入最新读数
func (c *CacheManager) UpdateRealtime(ctx context.Context, reading models.DerivedReading) error {
	key := c.realtimeKey(reading.DeviceID)
	if err := c.setJSON(ctx, key, reading); err != nil {
		return err
	}

	c.logger.Debug("Updated realtime cache",
		zap.String("device_id", reading.DeviceID),
		zap.String("key", key),
	)
	return nil
}

// GetRealtime 读取最新读数；不存在时返回 ErrCacheMiss
func (c *CacheManager) GetRealtime(ctx context.Context, deviceID string) (*models.DerivedReading, error) {
	var reading models.DerivedReading
	if err := c.getJSON(ctx, c.realtimeKey(deviceID), &reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

// UpdateAlerts 用新的报警集合替换旧集合
func (c *CacheManager) UpdateAlerts(ctx context.Context, deviceID string, alerts []models.Alert) error {
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return c.setJSON(ctx, c.alertsKey(deviceID), alerts)
}

// GetAlerts 读取报警集合；不存在时返回 ErrCacheMiss
func (c *CacheManager) GetAlerts(ctx context.Context, deviceID string) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := c.getJSON(ctx, c.alertsKey(deviceID), &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *CacheManager) setJSON(ctx context.Context, key string, v interface{}) error {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.kv.Set(ctx, key, jsonData, c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (c *CacheManager) getJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get cache: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}
