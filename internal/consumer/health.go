package consumer

import (
	"sync"
	"time"

	"boiler-telemetry/internal/metrics"
	"boiler-telemetry/internal/models"
)

// Health 管道健康状态（传输连接、存储、设备关联、环境数据）
// 各组件只写自己负责的标志，读取方通过 Snapshot 获取一致视图
type Health struct {
	mu               sync.RWMutex
	transport        models.TransportState
	storageHealthy   bool
	deviceLinkBroken bool
	ambientAvailable bool
	lastReadingAt    time.Time

	onChange func(models.HealthStatus)
}

// NewHealth 创建健康状态，初始为未连接、存储正常
func NewHealth() *Health {
	h := &Health{
		transport:      models.TransportDisconnected,
		storageHealthy: true,
	}
	metrics.TransportConnected.Set(0)
	metrics.StorageHealthy.Set(1)
	metrics.DeviceLinkBroken.Set(0)
	metrics.AmbientAvailable.Set(0)
	return h
}

// SetOnChange 注册状态变化回调（在锁外调用）
func (h *Health) SetOnChange(fn func(models.HealthStatus)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// SetTransportState 更新传输状态
func (h *Health) SetTransportState(state models.TransportState) {
	h.update(func() bool {
		if h.transport == state {
			return false
		}
		h.transport = state
		metrics.TransportConnected.Set(boolGauge(state == models.TransportConnected))
		return true
	})
}

// MarkStorageHealthy 任一存储操作成功
func (h *Health) MarkStorageHealthy() {
	h.setStorage(true)
}

// MarkStorageDegraded 存储操作失败（重试耗尽、终止错误或查询失败）
func (h *Health) MarkStorageDegraded() {
	h.setStorage(false)
}

func (h *Health) setStorage(healthy bool) {
	h.update(func() bool {
		if h.storageHealthy == healthy {
			return false
		}
		h.storageHealthy = healthy
		metrics.StorageHealthy.Set(boolGauge(healthy))
		return true
	})
}

// SetDeviceLinkBroken 更新设备关联状态
func (h *Health) SetDeviceLinkBroken(broken bool) {
	h.update(func() bool {
		if h.deviceLinkBroken == broken {
			return false
		}
		h.deviceLinkBroken = broken
		metrics.DeviceLinkBroken.Set(boolGauge(broken))
		return true
	})
}

// SetAmbientAvailable 更新环境数据可用性
func (h *Health) SetAmbientAvailable(available bool) {
	h.update(func() bool {
		if h.ambientAvailable == available {
			return false
		}
		h.ambientAvailable = available
		metrics.AmbientAvailable.Set(boolGauge(available))
		return true
	})
}

// RecordReading 记录最近一次读数时间（不触发回调）
func (h *Health) RecordReading(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if at.After(h.lastReadingAt) {
		h.lastReadingAt = at
	}
}

func (h *Health) StorageHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.storageHealthy
}

func (h *Health) DeviceLinkBroken() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.deviceLinkBroken
}

func (h *Health) AmbientAvailable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ambientAvailable
}

// Snapshot 返回当前健康状态副本
func (h *Health) Snapshot() models.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *Health) snapshotLocked() models.HealthStatus {
	status := models.HealthStatus{
		TransportState:     h.transport,
		TransportConnected: h.transport == models.TransportConnected,
		StorageHealthy:     h.storageHealthy,
		DeviceLinkBroken:   h.deviceLinkBroken,
		AmbientAvailable:   h.ambientAvailable,
	}
	if !h.lastReadingAt.IsZero() {
		at := h.lastReadingAt
		status.LastReadingAt = &at
	}
	return status
}

func (h *Health) update(apply func() bool) {
	h.mu.Lock()
	changed := apply()
	fn := h.onChange
	status := h.snapshotLocked()
	h.mu.Unlock()

	if changed && fn != nil {
		fn(status)
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
