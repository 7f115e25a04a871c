package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logpkg "boiler-telemetry/common/logger"
	"boiler-telemetry/internal/config"
	"boiler-telemetry/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置（非法值已回退为默认值）
	cfg, cfgErr := config.Load()

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "boiler-telemetry")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfgErr != nil {
		log.Warn("Invalid configuration values, defaults applied", zap.Error(cfgErr))
	}

	log.Info("Starting boiler-telemetry service",
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("topic", cfg.Telemetry.Topic),
		zap.String("timezone", cfg.Timezone),
	)

	// 创建服务
	svc, err := service.NewTelemetryService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create telemetry service", zap.Error(err))
	}

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 启动服务（在 goroutine 中）
	errChan := make(chan error, 1)
	go func() {
		if err := svc.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// 等待信号或错误
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
	}

	// 停止服务
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}
	cancel()

	log.Info("Service stopped")
}
