package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"boiler-telemetry/internal/metrics"
	"boiler-telemetry/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	DefaultPersistMaxAttempts = 3
	DefaultPersistBackoffBase = time.Second
	DefaultPersistQueueSize   = 256
	DefaultPersistWorkers     = 2
	DefaultPersistTimeout     = 5 * time.Second

	// Postgres foreign_key_violation：设备未登记
	pgForeignKeyViolation = "23503"
)

// ErrDeviceLinkBroken 设备关联失效，写入被跳过直到切换设备
var ErrDeviceLinkBroken = errors.New("device link broken, write skipped")

// ReadingStore 读数持久化接口
type ReadingStore interface {
	Insert(ctx context.Context, reading models.CanonicalReading) error
}

// WriteErrorKind 写入错误分类
type WriteErrorKind int

const (
	WriteTransient WriteErrorKind = iota
	WriteTerminal
)

func (k WriteErrorKind) String() string {
	if k == WriteTerminal {
		return "terminal"
	}
	return "transient"
}

// WriteError 持久化失败
type WriteError struct {
	Kind     WriteErrorKind
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("persist reading failed (%s after %d attempt(s)): %v", e.Kind, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ClassifyWriteError 外键冲突为终止错误，其余均可重试
func ClassifyWriteError(err error) WriteErrorKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgForeignKeyViolation {
		return WriteTerminal
	}
	return WriteTransient
}

// WriteState 单次持久化状态
type WriteState string

const (
	WriteRetrying   WriteState = "retrying"
	WriteSucceeded  WriteState = "succeeded"
	WriteFailed     WriteState = "failed"
	WriteLinkBroken WriteState = "link_broken"
)

// WriterConfig 持久化配置
type WriterConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	QueueSize   int
	Workers     int
	Timeout     time.Duration // 单次 insert 超时
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultPersistMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultPersistBackoffBase
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultPersistQueueSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultPersistWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultPersistTimeout
	}
	return c
}

// DurableWriter 带重试的读数持久化
// Submit 非阻塞投递到有界队列，由 worker 池调用 Persist
type DurableWriter struct {
	store  ReadingStore
	health *Health
	cfg    WriterConfig
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error

	linkMu       sync.Mutex
	activeDevice string
	broken       map[string]struct{}

	queueMu sync.RWMutex
	queue   chan models.CanonicalReading
	closed  bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewDurableWriter 创建持久化写入器
func NewDurableWriter(store ReadingStore, health *Health, cfg WriterConfig, logger *zap.Logger) *DurableWriter {
	cfg = cfg.withDefaults()
	return &DurableWriter{
		store:  store,
		health: health,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
		broken: make(map[string]struct{}),
		queue:  make(chan models.CanonicalReading, cfg.QueueSize),
	}
}

// Reset 切换设备：清除设备关联失效标记
func (w *DurableWriter) Reset(deviceID string) {
	w.linkMu.Lock()
	w.activeDevice = deviceID
	w.broken = make(map[string]struct{})
	w.linkMu.Unlock()

	w.health.SetDeviceLinkBroken(false)
}

// LinkBroken 当前设备的关联是否失效
func (w *DurableWriter) LinkBroken(deviceID string) bool {
	w.linkMu.Lock()
	defer w.linkMu.Unlock()
	_, ok := w.broken[deviceID]
	return ok
}

func (w *DurableWriter) markBroken(deviceID string) {
	w.linkMu.Lock()
	w.broken[deviceID] = struct{}{}
	active := w.activeDevice == deviceID
	w.linkMu.Unlock()

	// 旧设备的残留写入不影响当前设备的健康标志
	if active {
		w.health.SetDeviceLinkBroken(true)
	}
}

// Persist 写入一条读数：Retrying(attempt) -> Succeeded | Failed | LinkBroken
// 最多 MaxAttempts 次，第 n 次失败后等待 BackoffBase*n
func (w *DurableWriter) Persist(ctx context.Context, reading models.CanonicalReading) error {
	if w.LinkBroken(reading.DeviceID) {
		metrics.PersistSkipped.Inc()
		return ErrDeviceLinkBroken
	}

	for attempt := 1; ; attempt++ {
		metrics.PersistAttempts.Inc()

		err := w.insert(ctx, reading)
		if err == nil {
			w.health.MarkStorageHealthy()
			if attempt > 1 {
				w.logger.Info("Reading persisted after retry",
					zap.String("device_id", reading.DeviceID),
					zap.Int("attempt", attempt),
					zap.String("state", string(WriteSucceeded)),
				)
			}
			return nil
		}

		if ClassifyWriteError(err) == WriteTerminal {
			w.markBroken(reading.DeviceID)
			w.health.MarkStorageDegraded()
			metrics.PersistFailures.WithLabelValues(WriteTerminal.String()).Inc()
			w.logger.Error("Device not registered, stopping writes for device",
				zap.String("device_id", reading.DeviceID),
				zap.String("state", string(WriteLinkBroken)),
				zap.Error(err),
			)
			return &WriteError{Kind: WriteTerminal, Attempts: attempt, Err: err}
		}

		if attempt >= w.cfg.MaxAttempts {
			w.health.MarkStorageDegraded()
			metrics.PersistFailures.WithLabelValues(WriteTransient.String()).Inc()
			w.logger.Error("Failed to persist reading after all attempts",
				zap.String("device_id", reading.DeviceID),
				zap.Time("observed_at", reading.ObservedAt),
				zap.Int("attempts", attempt),
				zap.String("state", string(WriteFailed)),
				zap.Error(err),
			)
			return &WriteError{Kind: WriteTransient, Attempts: attempt, Err: err}
		}

		delay := w.cfg.BackoffBase * time.Duration(attempt)
		w.logger.Warn("Persist attempt failed, retrying",
			zap.String("device_id", reading.DeviceID),
			zap.Int("attempt", attempt),
			zap.String("state", string(WriteRetrying)),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := w.sleep(ctx, delay); err != nil {
			return &WriteError{Kind: WriteTransient, Attempts: attempt, Err: err}
		}
	}
}

func (w *DurableWriter) insert(ctx context.Context, reading models.CanonicalReading) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	return w.store.Insert(ctx, reading)
}

// Start 启动 worker 池；Stop 之前投递的读数都会被处理
func (w *DurableWriter) Start(ctx context.Context) {
	// worker 不随调用方 ctx 取消，Stop 负责排空后再取消
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for reading := range w.queue {
				metrics.PersistQueueDepth.Dec()
				// 错误已在 Persist 中分类、记录并反映到健康标志
				_ = w.Persist(workCtx, reading)
			}
		}()
	}

	w.logger.Info("Durable writer started",
		zap.Int("workers", w.cfg.Workers),
		zap.Int("queue_size", w.cfg.QueueSize),
		zap.Int("max_attempts", w.cfg.MaxAttempts),
	)
}

// Submit 非阻塞投递；队列满或已停止时丢弃并返回 false
func (w *DurableWriter) Submit(reading models.CanonicalReading) bool {
	w.queueMu.RLock()
	defer w.queueMu.RUnlock()

	if w.closed {
		return false
	}
	select {
	case w.queue <- reading:
		metrics.PersistQueueDepth.Inc()
		return true
	default:
		metrics.PersistQueueDropped.Inc()
		w.logger.Warn("Persist queue full, reading dropped",
			zap.String("device_id", reading.DeviceID),
			zap.Time("observed_at", reading.ObservedAt),
		)
		return false
	}
}

// Stop 关闭队列并等待 worker 排空，超时后取消进行中的写入
func (w *DurableWriter) Stop(timeout time.Duration) {
	w.queueMu.Lock()
	if w.closed {
		w.queueMu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.queueMu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Durable writer drained")
	case <-time.After(timeout):
		w.logger.Warn("Durable writer stop timed out, cancelling in-flight writes",
			zap.Duration("timeout", timeout),
		)
	}
	if w.cancel != nil {
		w.cancel()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
