package models

import "time"

// AlertKind 报警类型
type AlertKind string

const (
	AlertGasLimit     AlertKind = "gas_limit"
	AlertCostLimit    AlertKind = "cost_limit"
	AlertTempIncrease AlertKind = "temp_increase"
	AlertTempDecrease AlertKind = "temp_decrease"
)

// Alert 报警（瞬时，每次评估整体替换，不持久化）
type Alert struct {
	Kind       AlertKind `json:"kind"`
	Message    string    `json:"message"`
	Value      float64   `json:"value"`
	Limit      float64   `json:"limit"`
	ObservedAt time.Time `json:"observed_at"`
}
