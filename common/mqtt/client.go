package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"boiler-telemetry/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultReconnectInterval = 5 * time.Second
	defaultOperationTimeout  = 10 * time.Second
)

// ErrConnectPending 首次连接在超时内未完成，客户端继续在后台重试
var ErrConnectPending = errors.New("mqtt connect still pending")

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte)

// ConnectionHandlers 连接状态回调
type ConnectionHandlers struct {
	OnConnect        func()
	OnConnectionLost func(err error)
	OnReconnecting   func()
}

// Client MQTT客户端封装
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger

	mu       sync.RWMutex
	handlers ConnectionHandlers
}

// NewClient 创建MQTT客户端（不立即连接）
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) *Client {
	c := &Client{
		config: cfg,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// 重连完全交给 paho：固定上限间隔 + 有界连接超时
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.reconnectInterval())
	opts.SetMaxReconnectInterval(c.reconnectInterval())
	opts.SetConnectTimeout(c.connectTimeout())
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		if h := c.currentHandlers().OnConnect; h != nil {
			h()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if h := c.currentHandlers().OnConnectionLost; h != nil {
			h(err)
		}
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		if h := c.currentHandlers().OnReconnecting; h != nil {
			h()
		}
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// SetConnectionHandlers 设置连接状态回调（需在 Connect 之前调用）
func (c *Client) SetConnectionHandlers(h ConnectionHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *Client) currentHandlers() ConnectionHandlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

// Connect 连接到 broker；超时返回 ErrConnectPending，paho 会继续重试
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.connectTimeout()) {
		c.logger.Warn("MQTT connect not completed within timeout, retrying in background",
			zap.String("broker", c.config.Broker),
			zap.Duration("timeout", c.connectTimeout()),
		)
		return ErrConnectPending
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Subscribe 订阅主题
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("timed out subscribing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return nil
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("timed out unsubscribing")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250) // 250ms等待时间
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) connectTimeout() time.Duration {
	if c.config.ConnectTimeout > 0 {
		return c.config.ConnectTimeout
	}
	return defaultConnectTimeout
}

func (c *Client) reconnectInterval() time.Duration {
	if c.config.ReconnectInterval > 0 {
		return c.config.ReconnectInterval
	}
	return defaultReconnectInterval
}
