package models

import "time"

// AmbientSample 环境气象样本（对应 dados_meteorologicos 表）
type AmbientSample struct {
	CondominiumID string    `json:"condominium_id"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"wind_speed"`
	Description   string    `json:"description"`
	ObservedAt    time.Time `json:"observed_at"`
}
