package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqttcommon "boiler-telemetry/common/mqtt"
	"boiler-telemetry/internal/metrics"
	"boiler-telemetry/internal/models"
	"boiler-telemetry/internal/transformer"

	"go.uber.org/zap"
)

// DefaultTopic 锅炉固件发布读数的主题
const DefaultTopic = "carolinepaz/sensores"

// Transport MQTT 传输接口（由 common/mqtt.Client 实现）
type Transport interface {
	SetConnectionHandlers(h mqttcommon.ConnectionHandlers)
	Connect() error
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

// ReadingSink 接收标准化读数（会话实现）
type ReadingSink interface {
	Ingest(reading models.CanonicalReading)
}

// MQTTConsumer MQTT消息消费者
// 状态：Disconnected -> Connecting -> Connected -> (Disconnected | Reconnecting)
// 重连由 paho 负责，每次连上都重新订阅（clean session）
type MQTTConsumer struct {
	transport Transport
	sink      ReadingSink
	health    *Health
	topic     string
	qos       byte
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	state models.TransportState
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	transport Transport,
	sink ReadingSink,
	health *Health,
	topic string,
	qos byte,
	logger *zap.Logger,
) *MQTTConsumer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTConsumer{
		transport: transport,
		sink:      sink,
		health:    health,
		topic:     topic,
		qos:       qos,
		logger:    logger,
		now:       time.Now,
		state:     models.TransportDisconnected,
	}
}

// Start 连接 broker；首次连接超时不算失败，paho 在后台继续重试
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.transport.SetConnectionHandlers(mqttcommon.ConnectionHandlers{
		OnConnect:        c.onConnected,
		OnConnectionLost: c.onConnectionLost,
		OnReconnecting:   c.onReconnecting,
	})

	c.setState(models.TransportConnecting)
	if err := c.transport.Connect(); err != nil {
		if errors.Is(err, mqttcommon.ErrConnectPending) {
			return nil
		}
		c.setState(models.TransportDisconnected)
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if c.State() == models.TransportConnected {
		if err := c.transport.Unsubscribe(c.topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}
	c.transport.Disconnect()
	c.setState(models.TransportDisconnected)

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// State 当前传输状态
func (c *MQTTConsumer) State() models.TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MQTTConsumer) setState(state models.TransportState) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()

	c.health.SetTransportState(state)
	if prev != state {
		c.logger.Debug("Transport state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(state)),
		)
	}
}

func (c *MQTTConsumer) onConnected() {
	c.setState(models.TransportConnected)

	if err := c.transport.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		c.logger.Error("Failed to subscribe to telemetry topic",
			zap.String("topic", c.topic),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("Subscribed to telemetry topic", zap.String("topic", c.topic))
}

func (c *MQTTConsumer) onConnectionLost(err error) {
	c.setState(models.TransportDisconnected)
	c.logger.Warn("MQTT connection lost", zap.Error(err))
}

func (c *MQTTConsumer) onReconnecting() {
	c.setState(models.TransportReconnecting)
	c.logger.Info("MQTT reconnecting")
}

// handleMessage 处理MQTT消息；运行在 paho 的回调 goroutine 上，不能阻塞
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) {
	metrics.MessagesReceived.Inc()

	reading, err := transformer.Normalize(payload)
	if err != nil {
		metrics.MessagesInvalid.Inc()
		c.logger.Warn("Dropping malformed telemetry message",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return
	}

	reading.ObservedAt = models.TruncateObservedAt(c.now().UTC())
	c.sink.Ingest(reading)
}
