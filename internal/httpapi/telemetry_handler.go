package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boiler-telemetry/internal/aggregator"
	"boiler-telemetry/internal/models"
	"boiler-telemetry/internal/report"
	"boiler-telemetry/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Monitor 当前监控会话（service.Session 实现）
type Monitor interface {
	SwitchDevice(ctx context.Context, condominiumID, deviceID string) error
	Selection() (string, string)
	FlowTotalL() float64
	Window() []models.DerivedReading
	Alerts() []models.Alert
	Thresholds(ctx context.Context) (models.ThresholdConfig, error)
	UpdateThresholds(ctx context.Context, cfg models.ThresholdConfig) (models.ThresholdConfig, error)
}

// HealthSource 健康状态（consumer.Health 实现）
type HealthSource interface {
	Snapshot() models.HealthStatus
}

// DeviceLister 设备列表
type DeviceLister interface {
	ListByCondominium(ctx context.Context, condominiumID string) ([]models.Device, error)
}

// DailyPowerSource 按天功率汇总
type DailyPowerSource interface {
	DailyPower(ctx context.Context, deviceID string, from, to time.Time, loc *time.Location) ([]models.DailyPower, error)
}

// BillingConfig 账单计算参数
type BillingConfig struct {
	Calculator aggregator.Calculator
	UnitPrice  decimal.Decimal
	Location   *time.Location
}

// TelemetryHandler 遥测 API；所有角色使用同一接口
type TelemetryHandler struct {
	monitor Monitor
	health  HealthSource
	devices DeviceLister
	power   DailyPowerSource
	billing BillingConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewTelemetryHandler(
	monitor Monitor,
	health HealthSource,
	devices DeviceLister,
	power DailyPowerSource,
	billing BillingConfig,
	logger *zap.Logger,
) *TelemetryHandler {
	if billing.Location == nil {
		billing.Location = time.UTC
	}
	if !billing.UnitPrice.IsPositive() {
		billing.UnitPrice = aggregator.DefaultGasPricePerM3
	}
	return &TelemetryHandler{
		monitor: monitor,
		health:  health,
		devices: devices,
		power:   power,
		billing: billing,
		logger:  logger,
		now:     time.Now,
	}
}

type sessionView struct {
	CondominiumID string  `json:"condominium_id"`
	DeviceID      string  `json:"device_id"`
	FlowTotalL    float64 `json:"flow_total_L"`
}

type healthView struct {
	models.HealthStatus
	CondominiumID string  `json:"condominium_id,omitempty"`
	DeviceID      string  `json:"device_id,omitempty"`
	FlowTotalL    float64 `json:"flow_total_L"`
}

func (h *TelemetryHandler) currentSession() sessionView {
	condominiumID, deviceID := h.monitor.Selection()
	return sessionView{CondominiumID: condominiumID, DeviceID: deviceID, FlowTotalL: h.monitor.FlowTotalL()}
}

func (h *TelemetryHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	session := h.currentSession()
	writeJSON(w, http.StatusOK, Ok(healthView{
		HealthStatus:  h.health.Snapshot(),
		CondominiumID: session.CondominiumID,
		DeviceID:      session.DeviceID,
		FlowTotalL:    session.FlowTotalL,
	}))
}

// GetReadings 窗口内的读数（从旧到新），limit 取最后若干条
func (h *TelemetryHandler) GetReadings(w http.ResponseWriter, r *http.Request) {
	readings := h.monitor.Window()
	if limit := queryInt(r.URL.Query(), "limit", 0); limit > 0 && limit < len(readings) {
		readings = readings[len(readings)-limit:]
	}
	writeJSON(w, http.StatusOK, Ok(readings))
}

func (h *TelemetryHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.monitor.Alerts()))
}

func (h *TelemetryHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	if _, deviceID := h.monitor.Selection(); deviceID == "" {
		writeJSON(w, http.StatusConflict, Fail("no device selected"))
		return
	}
	cfg, err := h.monitor.Thresholds(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(cfg))
}

func (h *TelemetryHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var cfg models.ThresholdConfig
	if err := decodeBody(w, r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if cfg.CondominiumID == "" {
		if condominiumID, _ := h.monitor.Selection(); condominiumID == "" {
			writeJSON(w, http.StatusBadRequest, Fail("condominium_id is required"))
			return
		}
	}

	saved, err := h.monitor.UpdateThresholds(r.Context(), cfg)
	if err != nil {
		h.logger.Error("Failed to update thresholds", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(saved))
}

// GetSession 当前设备及窗口内累计流量
func (h *TelemetryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.currentSession()))
}

func (h *TelemetryHandler) SwitchDevice(w http.ResponseWriter, r *http.Request) {
	var req sessionView
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_id is required"))
		return
	}

	if err := h.monitor.SwitchDevice(r.Context(), strings.TrimSpace(req.CondominiumID), req.DeviceID); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("device not found"))
			return
		}
		h.logger.Error("Failed to switch device", zap.String("device_id", req.DeviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(h.currentSession()))
}

func (h *TelemetryHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	if h.devices == nil {
		writeJSON(w, http.StatusOK, Ok([]models.Device{}))
		return
	}
	devices, err := h.devices.ListByCondominium(r.Context(), r.URL.Query().Get("condominium_id"))
	if err != nil {
		h.logger.Error("Failed to list devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list devices"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(devices))
}

func (h *TelemetryHandler) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, status, err := h.buildBill(r)
	if err != nil {
		writeJSON(w, status, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(bill))
}

func (h *TelemetryHandler) ExportBill(w http.ResponseWriter, r *http.Request) {
	bill, status, err := h.buildBill(r)
	if err != nil {
		writeJSON(w, status, Fail(err.Error()))
		return
	}

	data, err := report.GenerateBillWorkbook(bill)
	if err != nil {
		h.logger.Error("Failed to generate bill workbook", zap.String("device_id", bill.DeviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate workbook"))
		return
	}

	filename := fmt.Sprintf("bill-%s-%s.xlsx", bill.DeviceID, bill.From.Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// buildBill 参数：device_id（默认当前设备），from/to 为 YYYY-MM-DD，to 含当天
// 默认从本月 1 日到今天
func (h *TelemetryHandler) buildBill(r *http.Request) (models.Bill, int, error) {
	if h.power == nil {
		return models.Bill{}, http.StatusServiceUnavailable, errors.New("billing not available")
	}

	q := r.URL.Query()
	deviceID := q.Get("device_id")
	if deviceID == "" {
		_, deviceID = h.monitor.Selection()
	}
	if deviceID == "" {
		return models.Bill{}, http.StatusBadRequest, errors.New("device_id is required")
	}

	loc := h.billing.Location
	today := h.now().In(loc)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	todayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)

	from, err := queryDay(q, "from", monthStart, loc)
	if err != nil {
		return models.Bill{}, http.StatusBadRequest, errors.New("invalid from date")
	}
	lastDay, err := queryDay(q, "to", todayStart, loc)
	if err != nil {
		return models.Bill{}, http.StatusBadRequest, errors.New("invalid to date")
	}
	to := lastDay.AddDate(0, 0, 1)
	if !to.After(from) {
		return models.Bill{}, http.StatusBadRequest, errors.New("to must not be before from")
	}

	days, err := h.power.DailyPower(r.Context(), deviceID, from, to, loc)
	if err != nil {
		h.logger.Error("Failed to load daily power", zap.String("device_id", deviceID), zap.Error(err))
		return models.Bill{}, http.StatusInternalServerError, errors.New("failed to load readings")
	}
	return aggregator.BuildBill(deviceID, from, to, days, h.billing.Calculator, h.billing.UnitPrice), http.StatusOK, nil
}
