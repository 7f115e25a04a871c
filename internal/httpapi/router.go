package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodGuard(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterTelemetryRoutes 注册遥测 API
func (r *Router) RegisterTelemetryRoutes(h *TelemetryHandler) {
	r.Handle("/api/v1/health", methodGuard(http.MethodGet, h.GetHealth))
	r.Handle("/api/v1/readings", methodGuard(http.MethodGet, h.GetReadings))
	r.Handle("/api/v1/alerts", methodGuard(http.MethodGet, h.GetAlerts))
	r.Handle("/api/v1/devices", methodGuard(http.MethodGet, h.ListDevices))

	r.Handle("/api/v1/thresholds", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetThresholds(w, req)
		case http.MethodPut:
			h.UpdateThresholds(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/api/v1/session/device", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetSession(w, req)
		case http.MethodPost:
			h.SwitchDevice(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/api/v1/bill", methodGuard(http.MethodGet, h.GetBill))
	r.Handle("/api/v1/bill.xlsx", methodGuard(http.MethodGet, h.ExportBill))
}

// RegisterMetrics 注册 Prometheus 指标端点
func (r *Router) RegisterMetrics() {
	r.HandleHandler("/metrics", promhttp.Handler())
}

// RegisterWebsocket 注册看板推送端点
func (r *Router) RegisterWebsocket(serve http.HandlerFunc) {
	r.Handle("/ws", serve)
}
