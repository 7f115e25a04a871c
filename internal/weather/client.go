package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.openweathermap.org"

// ErrUnavailable 外部气象服务不可用（未配置 API key、网络或 HTTP 错误、无数据）
var ErrUnavailable = errors.New("weather service unavailable")

// Coordinates 经纬度
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Conditions 当前气象
type Conditions struct {
	Temperature float64
	Humidity    float64
	Pressure    float64
	WindSpeed   float64
	Description string
}

type geocodeResult struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type currentResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// ClientConfig 气象客户端配置
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Lang       string
	Timeout    time.Duration
	RetryCount int
}

// Client OpenWeather API 客户端
type Client struct {
	httpClient *resty.Client
	apiKey     string
	lang       string
	logger     *zap.Logger
}

// NewClient 创建气象客户端
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Lang == "" {
		cfg.Lang = "pt_br"
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		apiKey:     cfg.APIKey,
		lang:       cfg.Lang,
		logger:     logger,
	}
}

// Configured 是否配置了 API key
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Geocode 地址 -> 经纬度
func (c *Client) Geocode(ctx context.Context, address string) (Coordinates, error) {
	if !c.Configured() {
		return Coordinates{}, fmt.Errorf("%w: api key not configured", ErrUnavailable)
	}

	var results []geocodeResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     address,
			"limit": "1",
			"appid": c.apiKey,
		}).
		SetResult(&results).
		Get("/geo/1.0/direct")
	if err := c.checkResponse("geocode", resp, err); err != nil {
		return Coordinates{}, err
	}

	if len(results) == 0 {
		return Coordinates{}, fmt.Errorf("%w: no coordinates for address", ErrUnavailable)
	}

	return Coordinates{Lat: results[0].Lat, Lon: results[0].Lon}, nil
}

// Current 查询当前气象（公制单位）
func (c *Client) Current(ctx context.Context, lat, lon float64) (Conditions, error) {
	if !c.Configured() {
		return Conditions{}, fmt.Errorf("%w: api key not configured", ErrUnavailable)
	}

	var body currentResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   fmt.Sprintf("%f", lat),
			"lon":   fmt.Sprintf("%f", lon),
			"appid": c.apiKey,
			"units": "metric",
			"lang":  c.lang,
		}).
		SetResult(&body).
		Get("/data/2.5/weather")
	if err := c.checkResponse("current weather", resp, err); err != nil {
		return Conditions{}, err
	}

	conditions := Conditions{
		Temperature: body.Main.Temp,
		Humidity:    body.Main.Humidity,
		Pressure:    body.Main.Pressure,
		WindSpeed:   body.Wind.Speed,
	}
	if len(body.Weather) > 0 {
		conditions.Description = body.Weather[0].Description
	}
	return conditions, nil
}

func (c *Client) checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Warn("Weather API call failed",
			zap.String("operation", op),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	if resp.IsError() {
		c.logger.Warn("Weather API returned error",
			zap.String("operation", op),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("%w: %s: status %d", ErrUnavailable, op, resp.StatusCode())
	}
	return nil
}
