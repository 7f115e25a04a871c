package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"boiler-telemetry/internal/aggregator"
	"boiler-telemetry/internal/consumer"
	"boiler-telemetry/internal/evaluator"
	"boiler-telemetry/internal/metrics"
	"boiler-telemetry/internal/models"
	"boiler-telemetry/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultEvalInterval = 60 * time.Second
	DefaultQueryTimeout = 5 * time.Second
)

// ErrNoDevice 会话尚未选择设备
var ErrNoDevice = errors.New("no device selected")

// HistorySource 历史读数加载（consumer.HistoryLoader 实现）
type HistorySource interface {
	LoadRecent(ctx context.Context, deviceID string, limit int) []models.CanonicalReading
}

// ReadingWriter 持久化写入（consumer.DurableWriter 实现）
type ReadingWriter interface {
	Reset(deviceID string)
	Submit(reading models.CanonicalReading) bool
}

// ThresholdStore 阈值配置存储
type ThresholdStore interface {
	Get(ctx context.Context, condominiumID, deviceID string) (*models.ThresholdConfig, error)
	Upsert(ctx context.Context, cfg models.ThresholdConfig) error
}

// PowerSummer 已持久化功率汇总
type PowerSummer interface {
	SumPower(ctx context.Context, deviceID string, from, to time.Time) (repository.PowerTotal, error)
}

// DeviceLookup 设备查询（用于补全小区）
type DeviceLookup interface {
	Get(ctx context.Context, deviceID string) (*models.Device, error)
}

// ReadingEvent 推送的实时读数，附带窗口内累计流量
type ReadingEvent struct {
	models.DerivedReading
	WindowFlowL float64 `json:"window_flow_L"`
}

// Publisher 会话输出
type Publisher interface {
	PublishReading(event ReadingEvent)
	PublishAlerts(deviceID string, alerts []models.Alert)
	PublishSession(state SessionState)
}

// SessionState 会话状态快照
type SessionState struct {
	CondominiumID string `json:"condominium_id"`
	DeviceID      string `json:"device_id"`
	Generation    uint64 `json:"generation"`
	Loading       bool   `json:"loading"`
	WindowLen     int    `json:"window_len"`
	Pending       int    `json:"pending"`
	// 窗口内样本的累计流量（升）
	FlowTotalL float64 `json:"flow_total_L"`
}

// SessionConfig 会话参数
type SessionConfig struct {
	WindowSize   int
	HistoryLimit int
	Calculator   aggregator.Calculator
	UnitPrice    decimal.Decimal
	EvalInterval time.Duration
	QueryTimeout time.Duration
	Location     *time.Location
}

// SessionDeps 会话依赖；Power、Devices、Publisher 可为 nil
type SessionDeps struct {
	History    HistorySource
	Writer     ReadingWriter
	Thresholds ThresholdStore
	Power      PowerSummer
	Devices    DeviceLookup
	Publisher  Publisher
	Health     *consumer.Health
}

// Session 当前监控会话：一次只跟踪一个设备
// 持有窗口、阈值缓存、报警集合和环境样本；所有状态由 mu 保护
type Session struct {
	cfg    SessionConfig
	deps   SessionDeps
	logger *zap.Logger
	now    func() time.Time

	// 串行化设备切换：代次递增与写入链路 Reset 必须同序
	switchMu sync.Mutex

	mu            sync.Mutex
	condominiumID string
	deviceID      string
	generation    uint64
	loading       bool
	pending       []models.CanonicalReading
	window        *aggregator.RollingWindow
	thresholds    *models.ThresholdConfig
	alerts        []models.Alert
	ambient       []models.AmbientSample
	onSwitch      func(condominiumID, deviceID string)

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession 创建会话
func NewSession(cfg SessionConfig, deps SessionDeps, logger *zap.Logger) *Session {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = aggregator.DefaultWindowSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = consumer.DefaultHistoryLimit
	}
	if cfg.Calculator.GasFactor <= 0 || cfg.Calculator.SampleInterval <= 0 {
		cfg.Calculator = aggregator.NewCalculator(cfg.Calculator.GasFactor, cfg.Calculator.SampleInterval)
	}
	if !cfg.UnitPrice.IsPositive() {
		cfg.UnitPrice = aggregator.DefaultGasPricePerM3
	}
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = DefaultEvalInterval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if deps.Health == nil {
		deps.Health = consumer.NewHealth()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
		window: aggregator.NewRollingWindow(cfg.WindowSize),
		alerts: []models.Alert{},
		signal: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnSwitch 设备切换回调（天气刷新等）
func (s *Session) SetOnSwitch(fn func(condominiumID, deviceID string)) {
	s.mu.Lock()
	s.onSwitch = fn
	s.mu.Unlock()
}

// Start 启动报警评估循环：定时器 + 每条读数后的合并信号
func (s *Session) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.EvalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.evaluate(s.ctx)
			case <-s.signal:
				s.evaluate(s.ctx)
			}
		}
	}()
	s.logger.Info("Session started", zap.Duration("eval_interval", s.cfg.EvalInterval))
}

// Close 取消评估循环和进行中的历史加载
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Session closed")
}

// SwitchDevice 切换监控设备：重置窗口和写入链路，异步加载历史
// condominiumID 为空时通过设备表补全
func (s *Session) SwitchDevice(ctx context.Context, condominiumID, deviceID string) error {
	if deviceID == "" {
		return ErrNoDevice
	}

	if condominiumID == "" && s.deps.Devices != nil {
		device, err := s.deps.Devices.Get(ctx, deviceID)
		switch {
		case errors.Is(err, repository.ErrDeviceNotFound):
			return err
		case err != nil:
			s.deps.Health.MarkStorageDegraded()
			s.logger.Warn("Failed to resolve device condominium, using defaults",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		default:
			condominiumID = device.CondominiumID
		}
	}

	s.switchMu.Lock()
	s.mu.Lock()
	s.generation++
	gen := s.generation
	condominiumChanged := condominiumID != s.condominiumID
	s.condominiumID = condominiumID
	s.deviceID = deviceID
	s.loading = true
	s.pending = nil
	s.window.Reset()
	s.thresholds = nil
	s.alerts = []models.Alert{}
	if condominiumChanged {
		s.ambient = nil
	}
	onSwitch := s.onSwitch
	state := s.stateLocked()
	s.mu.Unlock()

	s.deps.Writer.Reset(deviceID)
	s.deps.Health.SetDeviceLinkBroken(false)
	s.switchMu.Unlock()

	s.logger.Info("Switched monitored device",
		zap.String("condominium_id", condominiumID),
		zap.String("device_id", deviceID),
		zap.Uint64("generation", gen),
	)
	s.publishSession(state)
	if onSwitch != nil {
		onSwitch(condominiumID, deviceID)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rows := s.deps.History.LoadRecent(s.ctx, deviceID, s.cfg.HistoryLimit)
		s.applyHistory(gen, deviceID, rows)
	}()
	return nil
}

// applyHistory 应用历史加载结果；代次或设备不匹配时丢弃
func (s *Session) applyHistory(gen uint64, deviceID string, rows []models.CanonicalReading) bool {
	s.mu.Lock()
	if gen != s.generation || deviceID != s.deviceID {
		s.mu.Unlock()
		metrics.HistoryLoads.WithLabelValues("stale").Inc()
		s.logger.Info("Discarding stale history result",
			zap.String("device_id", deviceID),
			zap.Uint64("generation", gen),
		)
		return false
	}

	// 整个序列都追加，淘汰基线随之正确推进
	seen := make(map[models.ReadingKey]struct{}, len(rows))
	for _, d := range s.cfg.Calculator.DeriveSeries(rows) {
		s.window.Append(d)
		seen[d.Key()] = struct{}{}
	}

	var replayed []ReadingEvent
	duplicates := 0
	for _, r := range s.pending {
		if _, ok := seen[r.Key()]; ok {
			duplicates++
			continue
		}
		replayed = append(replayed, ReadingEvent{
			DerivedReading: s.appendLocked(r),
			WindowFlowL:    s.window.FlowTotalL(),
		})
	}
	s.pending = nil
	s.loading = false
	state := s.stateLocked()
	s.mu.Unlock()

	metrics.HistoryLoads.WithLabelValues("applied").Inc()
	if duplicates > 0 {
		metrics.ReadingsDiscarded.WithLabelValues("duplicate").Add(float64(duplicates))
	}
	s.logger.Info("History applied",
		zap.String("device_id", deviceID),
		zap.Int("history_rows", len(rows)),
		zap.Int("replayed", len(replayed)),
		zap.Int("duplicates", duplicates),
	)

	s.publishSession(state)
	for _, e := range replayed {
		s.publishReading(e)
	}
	s.notify()
	return true
}

// Ingest 接收一条标准化读数（MQTT 回调上调用，不阻塞）
func (s *Session) Ingest(reading models.CanonicalReading) {
	s.mu.Lock()
	if s.deviceID == "" {
		s.mu.Unlock()
		metrics.ReadingsDiscarded.WithLabelValues("no_device").Inc()
		return
	}
	reading.DeviceID = s.deviceID

	if s.loading {
		if len(s.pending) >= s.cfg.WindowSize {
			s.pending = s.pending[1:]
			metrics.ReadingsDiscarded.WithLabelValues("pending_overflow").Inc()
		}
		s.pending = append(s.pending, reading)
		s.mu.Unlock()

		s.deps.Health.RecordReading(reading.ObservedAt)
		s.deps.Writer.Submit(reading)
		return
	}

	event := ReadingEvent{DerivedReading: s.appendLocked(reading), WindowFlowL: s.window.FlowTotalL()}
	s.mu.Unlock()

	metrics.ReadingsIngested.Inc()
	s.deps.Health.RecordReading(reading.ObservedAt)
	s.publishReading(event)
	s.deps.Writer.Submit(reading)
	s.notify()
}

// appendLocked 以窗口末尾的累计流量为起点派生并追加
func (s *Session) appendLocked(reading models.CanonicalReading) models.DerivedReading {
	prior := 0.0
	if last, ok := s.window.Last(); ok {
		prior = last.CumulativeFlowL
	}
	derived := s.cfg.Calculator.Derive(reading, prior)
	s.window.Append(derived)
	return derived
}

func (s *Session) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// evaluate 运行一次报警评估，结果整体替换当前报警集合
func (s *Session) evaluate(ctx context.Context) {
	s.mu.Lock()
	if s.deviceID == "" {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	condominiumID, deviceID := s.condominiumID, s.deviceID
	window := s.window.Snapshot()
	ambient := append([]models.AmbientSample(nil), s.ambient...)
	s.mu.Unlock()

	thresholds := s.loadThresholds(ctx, gen, condominiumID, deviceID)
	now := s.now()

	in := evaluator.Input{
		Window:           window,
		Thresholds:       thresholds,
		UnitPrice:        s.cfg.UnitPrice,
		GasFactor:        s.cfg.Calculator.GasFactor,
		Persisted:        s.persistedToday(ctx, deviceID, now),
		Ambient:          ambient,
		AmbientAvailable: s.deps.Health.AmbientAvailable(),
		Now:              now,
		Location:         s.cfg.Location,
	}
	alerts := evaluator.Evaluate(in)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.alerts = alerts
	s.mu.Unlock()

	metrics.Evaluations.Inc()
	setActiveAlerts(alerts)
	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishAlerts(deviceID, alerts)
	}
	if len(alerts) > 0 {
		s.logger.Debug("Alerts active",
			zap.String("device_id", deviceID),
			zap.Int("count", len(alerts)),
		)
	}
}

func setActiveAlerts(alerts []models.Alert) {
	counts := map[models.AlertKind]int{
		models.AlertGasLimit:     0,
		models.AlertCostLimit:    0,
		models.AlertTempIncrease: 0,
		models.AlertTempDecrease: 0,
	}
	for _, a := range alerts {
		counts[a.Kind]++
	}
	for kind, n := range counts {
		metrics.ActiveAlerts.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// persistedToday 当日已持久化的功率汇总；查询失败时返回 nil，只用窗口
func (s *Session) persistedToday(ctx context.Context, deviceID string, now time.Time) *evaluator.PeriodTotal {
	if s.deps.Power == nil {
		return nil
	}
	start, _ := evaluator.DayBounds(now, s.cfg.Location)

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	total, err := s.deps.Power.SumPower(qctx, deviceID, start, now)
	if err != nil {
		s.deps.Health.MarkStorageDegraded()
		s.logger.Warn("Failed to sum persisted power, using window only",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}
	return &evaluator.PeriodTotal{PowerSum: total.PowerSum, Samples: total.Samples, AsOf: now}
}

// loadThresholds 懒加载阈值；失败时使用默认值且不缓存
func (s *Session) loadThresholds(ctx context.Context, gen uint64, condominiumID, deviceID string) models.ThresholdConfig {
	s.mu.Lock()
	if s.thresholds != nil {
		cfg := *s.thresholds
		s.mu.Unlock()
		return cfg
	}
	s.mu.Unlock()

	cfg, cacheable := s.fetchThresholds(ctx, condominiumID, deviceID)
	if cacheable {
		s.mu.Lock()
		if gen == s.generation {
			s.thresholds = &cfg
		}
		s.mu.Unlock()
	}
	return cfg
}

func (s *Session) fetchThresholds(ctx context.Context, condominiumID, deviceID string) (models.ThresholdConfig, bool) {
	defaults := models.DefaultThresholds(condominiumID, deviceID)
	if condominiumID == "" || s.deps.Thresholds == nil {
		return defaults, true
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	cfg, err := s.deps.Thresholds.Get(qctx, condominiumID, deviceID)
	switch {
	case errors.Is(err, repository.ErrThresholdNotFound):
		return defaults, true
	case err != nil:
		s.deps.Health.MarkStorageDegraded()
		s.logger.Warn("Failed to load thresholds, using defaults",
			zap.String("condominium_id", condominiumID),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return defaults, false
	}
	return *cfg, true
}

// Thresholds 当前生效的阈值
func (s *Session) Thresholds(ctx context.Context) (models.ThresholdConfig, error) {
	s.mu.Lock()
	gen := s.generation
	condominiumID, deviceID := s.condominiumID, s.deviceID
	s.mu.Unlock()
	if deviceID == "" {
		return models.ThresholdConfig{}, ErrNoDevice
	}
	return s.loadThresholds(ctx, gen, condominiumID, deviceID), nil
}

// UpdateThresholds 写入阈值并刷新缓存
// cfg.CondominiumID 为空时使用当前会话的小区
func (s *Session) UpdateThresholds(ctx context.Context, cfg models.ThresholdConfig) (models.ThresholdConfig, error) {
	if s.deps.Thresholds == nil {
		return cfg, errors.New("threshold store not configured")
	}

	s.mu.Lock()
	condominiumID, deviceID := s.condominiumID, s.deviceID
	s.mu.Unlock()

	if cfg.CondominiumID == "" {
		cfg.CondominiumID = condominiumID
	}
	if cfg.CondominiumID == "" {
		return cfg, fmt.Errorf("condominium is required: %w", ErrNoDevice)
	}
	cfg.UpdatedAt = s.now().UTC()

	if err := s.deps.Thresholds.Upsert(ctx, cfg); err != nil {
		s.deps.Health.MarkStorageDegraded()
		return cfg, fmt.Errorf("failed to update thresholds: %w", err)
	}

	s.mu.Lock()
	if cfg.CondominiumID == s.condominiumID {
		if cfg.DeviceID == s.deviceID {
			stored := cfg
			s.thresholds = &stored
		} else if cfg.DeviceID == "" {
			// 小区级配置可能被设备级覆盖，下次评估重新加载
			s.thresholds = nil
		}
	}
	s.mu.Unlock()

	s.logger.Info("Thresholds updated",
		zap.String("condominium_id", cfg.CondominiumID),
		zap.String("device_id", cfg.DeviceID),
		zap.Float64("gas_limit_m3", cfg.GasLimitM3),
		zap.Float64("cost_limit", cfg.CostLimit),
		zap.Float64("temp_variation", cfg.TemperatureVariationThreshold),
	)
	if deviceID != "" {
		s.notify()
	}
	return cfg, nil
}

// SetAmbient 更新环境样本（按时间倒序）；小区已切换时丢弃
func (s *Session) SetAmbient(condominiumID string, samples []models.AmbientSample) bool {
	s.mu.Lock()
	if condominiumID != s.condominiumID {
		s.mu.Unlock()
		return false
	}
	s.ambient = append([]models.AmbientSample(nil), samples...)
	s.mu.Unlock()
	s.notify()
	return true
}

// Selection 当前小区和设备
func (s *Session) Selection() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.condominiumID, s.deviceID
}

// State 会话状态快照
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	return SessionState{
		CondominiumID: s.condominiumID,
		DeviceID:      s.deviceID,
		Generation:    s.generation,
		Loading:       s.loading,
		WindowLen:     s.window.Len(),
		Pending:       len(s.pending),
		FlowTotalL:    s.window.FlowTotalL(),
	}
}

// FlowTotalL 窗口内样本的累计流量（升）
func (s *Session) FlowTotalL() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.FlowTotalL()
}

// Window 窗口快照（从旧到新）
func (s *Session) Window() []models.DerivedReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Snapshot()
}

// Alerts 当前报警集合
func (s *Session) Alerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert{}, s.alerts...)
}

// Ambient 当前环境样本
func (s *Session) Ambient() []models.AmbientSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AmbientSample(nil), s.ambient...)
}

func (s *Session) publishReading(e ReadingEvent) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishReading(e)
	}
}

func (s *Session) publishSession(state SessionState) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishSession(state)
	}
}
