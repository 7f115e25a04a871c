package models

import "time"

const (
	DefaultGasLimitM3                    = 100.0
	DefaultCostLimit                     = 800.0
	DefaultTemperatureVariationThreshold = 5.0
)

// ThresholdConfig 报警阈值配置（对应 configuracao_sistema 表）
// DeviceID 为空表示整个小区的通用配置
type ThresholdConfig struct {
	CondominiumID                 string    `json:"condominium_id"`
	DeviceID                      string    `json:"device_id,omitempty"`
	GasLimitM3                    float64   `json:"gas_limit_m3"`
	CostLimit                     float64   `json:"cost_limit_currency"`
	TemperatureVariationThreshold float64   `json:"temperature_variation_threshold"`
	UpdatedAt                     time.Time `json:"updated_at,omitempty"`
}

// DefaultThresholds 未配置时使用的默认阈值
func DefaultThresholds(condominiumID, deviceID string) ThresholdConfig {
	return ThresholdConfig{
		CondominiumID:                 condominiumID,
		DeviceID:                      deviceID,
		GasLimitM3:                    DefaultGasLimitM3,
		CostLimit:                     DefaultCostLimit,
		TemperatureVariationThreshold: DefaultTemperatureVariationThreshold,
	}
}
