package models

import "time"

// CanonicalReading 标准化后的锅炉传感器读数（对应 leituras_sensores 表的一行）
type CanonicalReading struct {
	DeviceID   string    `json:"device_id" db:"device_id"`
	ObservedAt time.Time `json:"observed_at" db:"reading_time"`
	TempSupply float64   `json:"temp_supply" db:"temp_ida"`     // 供水温度 °C
	TempReturn float64   `json:"temp_return" db:"temp_retorno"` // 回水温度 °C
	DeltaT     float64   `json:"delta_t" db:"deltaT"`           // 供回水温差 °C
	FlowRateLS float64   `json:"flow_rate_L_s" db:"vazao_L_s"`  // 流量 L/s
	PowerKW    float64   `json:"power_kW" db:"potencia_kW"`     // 功率 kW
	EnergyKWh  float64   `json:"energy_kWh" db:"energia_kWh"`   // 能量 kWh
}

// DerivedReading 带派生指标的读数
type DerivedReading struct {
	CanonicalReading
	GasConsumptionM3H float64 `json:"gas_consumption_m3_per_h"`
	CumulativeFlowL   float64 `json:"cumulative_flow_L"`
}

// ReadingKey 持久化主键 (device_id, observed_at)
type ReadingKey struct {
	DeviceID   string
	ObservedAt time.Time
}

// Key 返回读数的去重键
func (r CanonicalReading) Key() ReadingKey {
	return ReadingKey{DeviceID: r.DeviceID, ObservedAt: r.ObservedAt.UTC()}
}

// TruncateObservedAt 时间戳截断到微秒，与 Postgres timestamptz 精度一致
func TruncateObservedAt(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
