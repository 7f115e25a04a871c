package evaluator

import (
	"fmt"
	"math"
	"time"

	"boiler-telemetry/internal/aggregator"
	"boiler-telemetry/internal/models"

	"github.com/shopspring/decimal"
)

// PeriodTotal 已持久化的当日功率汇总（SUM(potencia_kW) 截至 AsOf）
type PeriodTotal struct {
	PowerSum float64
	Samples  int
	AsOf     time.Time
}

// Input 一次报警评估的全部输入
type Input struct {
	Window     []models.DerivedReading
	Thresholds models.ThresholdConfig
	UnitPrice  decimal.Decimal
	GasFactor  float64

	// 为 nil 时只用窗口内的当日读数
	Persisted *PeriodTotal

	// 按时间倒序，[0] 为最新
	Ambient          []models.AmbientSample
	AmbientAvailable bool

	Now      time.Time
	Location *time.Location
}

// DayBounds 返回 now 在 loc 时区所在自然日的 [start, end)
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// PeriodConsumption 当日燃气消耗 m³
// 已持久化汇总 + 窗口内 AsOf 之后的当日读数
func PeriodConsumption(in Input) float64 {
	factor := in.GasFactor
	if factor <= 0 {
		factor = aggregator.DefaultGasConversionFactor
	}
	start, end := DayBounds(in.Now, in.Location)

	total := 0.0
	var asOf time.Time
	if in.Persisted != nil {
		total = in.Persisted.PowerSum * factor
		asOf = in.Persisted.AsOf
	}

	for _, r := range in.Window {
		if r.ObservedAt.Before(start) || !r.ObservedAt.Before(end) {
			continue
		}
		if in.Persisted != nil && !r.ObservedAt.After(asOf) {
			continue
		}
		total += r.PowerKW * factor
	}
	return roundTo(total, 6)
}

// Evaluate 评估全部报警规则，返回新的报警集合（替换旧集合）
// 阈值 <= 0 表示关闭该规则；边界值触发报警
func Evaluate(in Input) []models.Alert {
	alerts := []models.Alert{}
	now := in.Now

	unitPrice := in.UnitPrice
	if unitPrice.IsZero() {
		unitPrice = aggregator.DefaultGasPricePerM3
	}

	consumption := PeriodConsumption(in)
	if limit := in.Thresholds.GasLimitM3; limit > 0 && consumption >= limit {
		alerts = append(alerts, models.Alert{
			Kind:       models.AlertGasLimit,
			Message:    fmt.Sprintf("Daily gas consumption %.2f m³ reached the limit of %.2f m³", consumption, limit),
			Value:      consumption,
			Limit:      limit,
			ObservedAt: now,
		})
	}

	// 比较用未取整的费用，取整只用于展示
	cost := aggregator.Cost(consumption, unitPrice)
	if limit := in.Thresholds.CostLimit; limit > 0 && cost.GreaterThanOrEqual(decimal.NewFromFloat(limit)) {
		shown := cost.Round(2)
		value, _ := shown.Float64()
		alerts = append(alerts, models.Alert{
			Kind:       models.AlertCostLimit,
			Message:    fmt.Sprintf("Daily gas cost %s reached the limit of %.2f", shown.StringFixed(2), limit),
			Value:      value,
			Limit:      limit,
			ObservedAt: now,
		})
	}

	if alert, ok := temperatureSwing(in); ok {
		alerts = append(alerts, alert)
	}

	return alerts
}

func temperatureSwing(in Input) (models.Alert, bool) {
	threshold := in.Thresholds.TemperatureVariationThreshold
	if !in.AmbientAvailable || threshold <= 0 || len(in.Ambient) < 2 {
		return models.Alert{}, false
	}

	current, previous := in.Ambient[0], in.Ambient[1]
	variation := roundTo(math.Abs(current.Temperature-previous.Temperature), 6)
	if variation < threshold {
		return models.Alert{}, false
	}

	alert := models.Alert{
		Value:      variation,
		Limit:      threshold,
		ObservedAt: current.ObservedAt,
	}
	if current.Temperature > previous.Temperature {
		alert.Kind = models.AlertTempIncrease
		alert.Message = fmt.Sprintf("Ambient temperature rose %.1f°C, consider lowering the boiler setpoint", variation)
	} else {
		alert.Kind = models.AlertTempDecrease
		alert.Message = fmt.Sprintf("Ambient temperature dropped %.1f°C, consider raising the boiler setpoint", variation)
	}
	return alert, true
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
