package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"boiler-telemetry/common/database"
	mqttcommon "boiler-telemetry/common/mqtt"
	rediscommon "boiler-telemetry/common/redis"
	"boiler-telemetry/internal/aggregator"
	"boiler-telemetry/internal/cache"
	"boiler-telemetry/internal/config"
	"boiler-telemetry/internal/consumer"
	"boiler-telemetry/internal/httpapi"
	"boiler-telemetry/internal/repository"
	"boiler-telemetry/internal/weather"
	"boiler-telemetry/internal/websocket"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const shutdownDrainTimeout = 10 * time.Second

// TelemetryService 锅炉遥测服务：MQTT 接入、持久化、报警评估、推送和 HTTP API
type TelemetryService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client

	health    *consumer.Health
	writer    *consumer.DurableWriter
	consumer  *consumer.MQTTConsumer
	session   *Session
	publisher *FanoutPublisher
	refresher *WeatherRefresher
	hub       *websocket.Hub
	server    *Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryService 创建遥测服务
func NewTelemetryService(cfg *config.Config, logger *zap.Logger) (*TelemetryService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	health := consumer.NewHealth()

	// 数据库暂时不可达时以降级模式启动，写入和查询各自重试
	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		logger.Warn("Database unreachable at startup, running degraded", zap.Error(err))
		health.MarkStorageDegraded()
	}

	// Redis 不可用时降级为只推送 websocket
	var (
		redisClient  *redis.Client
		cacheManager *cache.CacheManager
		stream       *cache.StreamPublisher
	)
	if cfg.Cache.Enabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rediscommon.Ping(pingCtx, redisClient)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, cache and stream publishing disabled", zap.Error(err))
			_ = rediscommon.Close(redisClient)
			redisClient = nil
		} else {
			cacheManager = cache.NewCacheManager(cache.NewRedisKVStore(redisClient), cfg.Cache.KeyPrefix, cfg.Cache.TTL, logger)
			stream = cache.NewStreamPublisher(redisClient, cfg.Cache.Stream, cfg.Cache.StreamMaxLen, logger)
		}
	}

	// 创建Repository
	readingRepo := repository.NewReadingRepository(db, logger)
	thresholdRepo := repository.NewThresholdRepository(db, logger)
	weatherRepo := repository.NewWeatherRepository(db, logger)
	deviceRepo := repository.NewDeviceRepository(db, logger)

	writer := consumer.NewDurableWriter(readingRepo, health, consumer.WriterConfig{
		MaxAttempts: cfg.Persist.MaxAttempts,
		BackoffBase: cfg.Persist.BackoffBase,
		QueueSize:   cfg.Persist.QueueSize,
		Workers:     cfg.Persist.Workers,
		Timeout:     cfg.Persist.Timeout,
	}, logger)
	loader := consumer.NewHistoryLoader(readingRepo, health, cfg.Telemetry.HistoryTimeout, logger)

	hub := websocket.NewHub(logger)
	var realtime RealtimeCache
	var readingStream ReadingStream
	if cacheManager != nil {
		realtime = cacheManager
		readingStream = stream
	}
	publisher := NewFanoutPublisher(realtime, readingStream, hub, cfg.Persist.QueueSize, logger)
	health.SetOnChange(publisher.PublishHealth)

	calc := aggregator.NewCalculator(cfg.Telemetry.GasConversionFactor, cfg.Telemetry.SampleInterval)
	session := NewSession(SessionConfig{
		WindowSize:   cfg.Telemetry.WindowSize,
		HistoryLimit: cfg.Telemetry.HistoryLimit,
		Calculator:   calc,
		UnitPrice:    cfg.Telemetry.GasPricePerM3,
		EvalInterval: cfg.Alerts.CheckInterval,
		Location:     cfg.Location,
	}, SessionDeps{
		History:    loader,
		Writer:     writer,
		Thresholds: thresholdRepo,
		Power:      readingRepo,
		Devices:    deviceRepo,
		Publisher:  publisher,
		Health:     health,
	}, logger)

	weatherClient := weather.NewClient(weather.ClientConfig{
		BaseURL:    cfg.Weather.BaseURL,
		APIKey:     cfg.Weather.APIKey,
		RetryCount: 1,
	}, logger)
	refresher := NewWeatherRefresher(weatherClient, weatherRepo, session, health, cfg.Weather.RefreshInterval, logger)
	session.SetOnSwitch(func(condominiumID, deviceID string) {
		refresher.Trigger()
	})

	mqttClient := mqttcommon.NewClient(&cfg.MQTT, logger)
	mqttConsumer := consumer.NewMQTTConsumer(mqttClient, session, health, cfg.Telemetry.Topic, cfg.MQTT.QoS, logger)

	// HTTP
	router := httpapi.NewRouter(logger)
	router.RegisterTelemetryRoutes(httpapi.NewTelemetryHandler(
		session,
		health,
		deviceRepo,
		readingRepo,
		httpapi.BillingConfig{
			Calculator: calc,
			UnitPrice:  cfg.Telemetry.GasPricePerM3,
			Location:   cfg.Location,
		},
		logger,
	))
	router.RegisterMetrics()
	router.RegisterWebsocket(hub.ServeWS)

	return &TelemetryService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		health:      health,
		writer:      writer,
		consumer:    mqttConsumer,
		session:     session,
		publisher:   publisher,
		refresher:   refresher,
		hub:         hub,
		server:      NewServer(cfg.HTTP.Addr, router, logger),
	}, nil
}

// Start 启动服务
func (s *TelemetryService) Start(ctx context.Context) error {
	s.logger.Info("Starting boiler telemetry service components")

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(runCtx)
	}()
	s.publisher.Start(runCtx)
	s.writer.Start(runCtx)
	s.session.Start(runCtx)
	s.refresher.Start(runCtx)

	if err := s.consumer.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start mqtt consumer: %w", err)
	}

	if deviceID := s.config.Session.DeviceID; deviceID != "" {
		if err := s.session.SwitchDevice(runCtx, s.config.Session.CondominiumID, deviceID); err != nil {
			s.logger.Warn("Failed to select configured device",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Start(); err != nil {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Boiler telemetry service started successfully")
	return nil
}

// Stop 停止服务：先停止接入，再排空写入队列，最后关闭连接
func (s *TelemetryService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping boiler telemetry service")

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Error("Error stopping mqtt consumer", zap.Error(err))
	}
	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	s.session.Close()
	s.writer.Stop(shutdownDrainTimeout)

	if s.cancel != nil {
		s.cancel()
	}
	s.publisher.Wait()
	s.refresher.Wait()
	s.wg.Wait()

	// 关闭Redis
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Boiler telemetry service stopped")
	return nil
}
