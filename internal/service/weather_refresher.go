package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"boiler-telemetry/internal/consumer"
	"boiler-telemetry/internal/metrics"
	"boiler-telemetry/internal/models"
	"boiler-telemetry/internal/weather"

	"go.uber.org/zap"
)

const (
	DefaultWeatherRefreshInterval = 30 * time.Minute
	DefaultWeatherTimeout         = 15 * time.Second
	ambientSampleCount            = 2
)

// WeatherProvider 外部气象服务（weather.Client 实现）
type WeatherProvider interface {
	Configured() bool
	Geocode(ctx context.Context, address string) (weather.Coordinates, error)
	Current(ctx context.Context, lat, lon float64) (weather.Conditions, error)
}

// AmbientStore 气象样本存储（repository.WeatherRepository 实现）
type AmbientStore interface {
	CondominiumAddress(ctx context.Context, condominiumID string) (string, error)
	InsertSample(ctx context.Context, s models.AmbientSample) error
	ListRecent(ctx context.Context, condominiumID string, limit int) ([]models.AmbientSample, error)
}

// AmbientSink 接收环境样本（Session 实现）
type AmbientSink interface {
	Selection() (string, string)
	SetAmbient(condominiumID string, samples []models.AmbientSample) bool
}

// WeatherRefresher 定时刷新所选小区的气象数据
// 任何失败都只把环境数据标记为不可用，温度变化报警随之跳过
type WeatherRefresher struct {
	provider WeatherProvider
	store    AmbientStore
	sink     AmbientSink
	health   *consumer.Health
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	trigger chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	coords map[string]weather.Coordinates // address -> 坐标
}

// NewWeatherRefresher 创建气象刷新器
func NewWeatherRefresher(
	provider WeatherProvider,
	store AmbientStore,
	sink AmbientSink,
	health *consumer.Health,
	interval time.Duration,
	logger *zap.Logger,
) *WeatherRefresher {
	if interval <= 0 {
		interval = DefaultWeatherRefreshInterval
	}
	return &WeatherRefresher{
		provider: provider,
		store:    store,
		sink:     sink,
		health:   health,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		coords:   make(map[string]weather.Coordinates),
	}
}

// Start 启动刷新循环
func (r *WeatherRefresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-r.trigger:
			}
			_ = r.Refresh(ctx)
		}
	}()
	r.logger.Info("Weather refresher started", zap.Duration("interval", r.interval))
}

// Wait 等待刷新循环退出
func (r *WeatherRefresher) Wait() {
	r.wg.Wait()
}

// Trigger 请求立即刷新（合并）
func (r *WeatherRefresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Refresh 刷新一次：地址 -> 坐标 -> 当前天气 -> 入库 -> 最近两条样本交给会话
func (r *WeatherRefresher) Refresh(ctx context.Context) error {
	condominiumID, _ := r.sink.Selection()
	if condominiumID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultWeatherTimeout)
	defer cancel()

	samples, err := r.refresh(ctx, condominiumID)
	if err != nil {
		metrics.WeatherRefreshes.WithLabelValues("failed").Inc()
		r.health.SetAmbientAvailable(false)
		r.logger.Warn("Weather refresh failed, temperature swing checks skipped",
			zap.String("condominium_id", condominiumID),
			zap.Error(err),
		)
		return err
	}

	if !r.sink.SetAmbient(condominiumID, samples) {
		metrics.WeatherRefreshes.WithLabelValues("stale").Inc()
		return nil
	}
	metrics.WeatherRefreshes.WithLabelValues("ok").Inc()
	r.health.SetAmbientAvailable(true)
	return nil
}

func (r *WeatherRefresher) refresh(ctx context.Context, condominiumID string) ([]models.AmbientSample, error) {
	if !r.provider.Configured() {
		return nil, weather.ErrUnavailable
	}

	address, err := r.store.CondominiumAddress(ctx, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to read condominium address: %w", err)
	}

	coords, err := r.coordinates(ctx, address)
	if err != nil {
		return nil, err
	}

	cond, err := r.provider.Current(ctx, coords.Lat, coords.Lon)
	if err != nil {
		return nil, err
	}

	sample := models.AmbientSample{
		CondominiumID: condominiumID,
		Temperature:   cond.Temperature,
		Humidity:      cond.Humidity,
		Pressure:      cond.Pressure,
		WindSpeed:     cond.WindSpeed,
		Description:   cond.Description,
		ObservedAt:    r.now().UTC(),
	}
	if err := r.store.InsertSample(ctx, sample); err != nil {
		r.health.MarkStorageDegraded()
		return nil, err
	}

	samples, err := r.store.ListRecent(ctx, condominiumID, ambientSampleCount)
	if err != nil {
		r.health.MarkStorageDegraded()
		return nil, err
	}

	r.logger.Debug("Weather sample stored",
		zap.String("condominium_id", condominiumID),
		zap.Float64("temperature", sample.Temperature),
	)
	return samples, nil
}

func (r *WeatherRefresher) coordinates(ctx context.Context, address string) (weather.Coordinates, error) {
	r.mu.Lock()
	c, ok := r.coords[address]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	c, err := r.provider.Geocode(ctx, address)
	if err != nil {
		return weather.Coordinates{}, err
	}
	r.mu.Lock()
	r.coords[address] = c
	r.mu.Unlock()
	return c, nil
}
