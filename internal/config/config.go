package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"boiler-telemetry/common/config"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config 锅炉遥测服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Telemetry struct {
		Topic               string
		WindowSize          int           // 图表窗口 N
		HistoryLimit        int           // 切换设备时加载的历史条数 M
		HistoryTimeout      time.Duration // 历史加载超时
		SampleInterval      time.Duration // 固件上报间隔（累计流量积分用）
		GasConversionFactor float64       // kW -> m³/h
		GasPricePerM3       decimal.Decimal
	}

	Persist struct {
		MaxAttempts int
		BackoffBase time.Duration
		QueueSize   int
		Workers     int
		Timeout     time.Duration
	}

	Alerts struct {
		CheckInterval time.Duration
	}

	Weather struct {
		APIKey          string
		BaseURL         string
		RefreshInterval time.Duration
	}

	Cache struct {
		Enabled      bool
		KeyPrefix    string
		TTL          time.Duration
		Stream       string
		StreamMaxLen int64
	}

	HTTP struct {
		Addr string
	}

	// 启动时自动选择的设备（可为空，之后通过 API 切换）
	Session struct {
		CondominiumID string
		DeviceID      string
	}

	Timezone string
	Location *time.Location

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置：先读取可选的 .env 文件，再读取环境变量
// 非法值回退到默认值，并在返回的 error 中列出；cfg 始终可用
func Load() (*Config, error) {
	_ = godotenv.Load() // 文件不存在时忽略

	cfg := &Config{}
	var problems []error

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "boiler"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "ws://broker.hivemq.com:8000/mqtt"
	cfg.MQTT.ClientID = "dashboard_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.ReconnectInterval = 5 * time.Second
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Telemetry.Topic = getEnv("MQTT_TOPIC", "carolinepaz/sensores")
	cfg.Telemetry.WindowSize = getEnvInt("TELEMETRY_WINDOW_SIZE", 50, &problems)
	cfg.Telemetry.HistoryLimit = getEnvInt("TELEMETRY_HISTORY_LIMIT", 100, &problems)
	cfg.Telemetry.HistoryTimeout = getEnvDuration("TELEMETRY_HISTORY_TIMEOUT", 10*time.Second, &problems)
	cfg.Telemetry.SampleInterval = getEnvDuration("TELEMETRY_SAMPLE_INTERVAL", 5*time.Second, &problems)
	cfg.Telemetry.GasConversionFactor = getEnvFloat("GAS_CONVERSION_FACTOR", 0.1, &problems)
	cfg.Telemetry.GasPricePerM3 = getEnvDecimal("GAS_PRICE_PER_M3", "8.00", &problems)

	cfg.Persist.MaxAttempts = getEnvInt("PERSIST_MAX_ATTEMPTS", 3, &problems)
	cfg.Persist.BackoffBase = getEnvDuration("PERSIST_BACKOFF_BASE", time.Second, &problems)
	cfg.Persist.QueueSize = getEnvInt("PERSIST_QUEUE_SIZE", 256, &problems)
	cfg.Persist.Workers = getEnvInt("PERSIST_WORKERS", 2, &problems)
	cfg.Persist.Timeout = getEnvDuration("PERSIST_TIMEOUT", 5*time.Second, &problems)

	cfg.Alerts.CheckInterval = getEnvDuration("ALERT_CHECK_INTERVAL", 60*time.Second, &problems)

	cfg.Weather.APIKey = getEnv("WEATHER_API_KEY", "")
	cfg.Weather.BaseURL = getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org")
	cfg.Weather.RefreshInterval = getEnvDuration("WEATHER_REFRESH_INTERVAL", 30*time.Minute, &problems)

	cfg.Cache.Enabled = getEnv("CACHE_ENABLED", "true") == "true"
	cfg.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", "boiler:device:")
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute, &problems)
	cfg.Cache.Stream = getEnv("CACHE_STREAM", "boiler:readings:stream")
	cfg.Cache.StreamMaxLen = int64(getEnvInt("CACHE_STREAM_MAXLEN", 10000, &problems))

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Session.CondominiumID = getEnv("CONDOMINIUM_ID", "")
	cfg.Session.DeviceID = getEnv("DEVICE_ID", "")

	cfg.Timezone = getEnv("TIMEZONE", "America/Sao_Paulo")
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		problems = append(problems, fmt.Errorf("TIMEZONE %q: %w, using UTC", cfg.Timezone, err))
		cfg.Timezone = "UTC"
		loc = time.UTC
	}
	cfg.Location = loc

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, errors.Join(problems...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, problems *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		*problems = append(*problems, fmt.Errorf("%s=%q is not a positive integer, using %d", key, raw, defaultValue))
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64, problems *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		*problems = append(*problems, fmt.Errorf("%s=%q is not a positive number, using %g", key, raw, defaultValue))
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration, problems *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*problems = append(*problems, fmt.Errorf("%s=%q is not a positive duration, using %s", key, raw, defaultValue))
		return defaultValue
	}
	return v
}

func getEnvDecimal(key, defaultValue string, problems *[]error) decimal.Decimal {
	def := decimal.RequireFromString(defaultValue)
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || !v.IsPositive() {
		*problems = append(*problems, fmt.Errorf("%s=%q is not a positive decimal, using %s", key, raw, defaultValue))
		return def
	}
	return v
}
