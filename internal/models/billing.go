package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPower 按天汇总的功率读数
type DailyPower struct {
	Day      time.Time
	PowerSum float64
	Samples  int
}

// BillDay 单日燃气消耗与费用
type BillDay struct {
	Date          string          `json:"date"` // YYYY-MM-DD
	ConsumptionM3 float64         `json:"consumption_m3"`
	Cost          decimal.Decimal `json:"cost"`
	Samples       int             `json:"samples"`
}

// BillMonth 月度汇总
type BillMonth struct {
	Month         string          `json:"month"` // YYYY-MM
	ConsumptionM3 float64         `json:"consumption_m3"`
	Cost          decimal.Decimal `json:"cost"`
}

// Bill 账单
type Bill struct {
	DeviceID  string          `json:"device_id"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Daily     []BillDay       `json:"daily"`
	Monthly   []BillMonth     `json:"monthly"`
	TotalM3   float64         `json:"total_m3"`
	TotalCost decimal.Decimal `json:"total_cost"`
}
