package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"boiler-telemetry/internal/metrics"

	gwebsocket "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 推送事件类型
const (
	EventReading = "reading"
	EventAlerts  = "alerts"
	EventHealth  = "health"
	EventSession = "session"
)

// Event 推送给看板的消息
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub 维护活跃的看板连接并广播事件
// 慢客户端的发送缓冲满时直接断开，不阻塞广播方
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	logger     *zap.Logger
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 事件循环，ctx 取消时关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount()
			h.logger.Info("WebSocket client registered", zap.String("remote_addr", client.remoteAddr()))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.logger.Info("WebSocket client unregistered", zap.String("remote_addr", client.remoteAddr()))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("WebSocket client send buffer full, removing",
						zap.String("remote_addr", client.remoteAddr()),
					)
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Broadcast 序列化并广播事件；Hub 繁忙时丢弃
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	messageBytes, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("Failed to marshal websocket event",
			zap.String("type", eventType),
			zap.Error(err),
		)
		return
	}

	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.Warn("WebSocket broadcast queue full, event dropped", zap.String("type", eventType))
	}
}

// ServeWS 升级 HTTP 连接并注册客户端
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
