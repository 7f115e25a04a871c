package aggregator

import (
	"time"

	"boiler-telemetry/internal/models"

	"github.com/shopspring/decimal"
)

const (
	// DefaultGasConversionFactor kW -> m³/h 的换算系数
	DefaultGasConversionFactor = 0.1
	// DefaultSampleInterval 固件上报间隔；累计流量按固定间隔积分，不测量实际到达间隔
	DefaultSampleInterval = 5 * time.Second
)

// Calculator 派生指标计算器（纯函数，无副作用）
type Calculator struct {
	GasFactor      float64
	SampleInterval time.Duration
}

// NewCalculator 创建计算器，非正参数回退到默认值
func NewCalculator(gasFactor float64, sampleInterval time.Duration) Calculator {
	if gasFactor <= 0 {
		gasFactor = DefaultGasConversionFactor
	}
	if sampleInterval <= 0 {
		sampleInterval = DefaultSampleInterval
	}
	return Calculator{GasFactor: gasFactor, SampleInterval: sampleInterval}
}

// Derive 计算单条读数的派生指标
func (c Calculator) Derive(reading models.CanonicalReading, priorCumulativeFlow float64) models.DerivedReading {
	return deriveWith(reading, priorCumulativeFlow, c.SampleInterval.Seconds(), c.GasFactor)
}

// DeriveSeries 从零开始按顺序重新计算一组读数的累计流量
func (c Calculator) DeriveSeries(readings []models.CanonicalReading) []models.DerivedReading {
	out := make([]models.DerivedReading, 0, len(readings))
	cumulative := 0.0
	for _, r := range readings {
		d := c.Derive(r, cumulative)
		cumulative = d.CumulativeFlowL
		out = append(out, d)
	}
	return out
}

// GasConsumption 瞬时燃气消耗 m³/h
func (c Calculator) GasConsumption(powerKW float64) float64 {
	return powerKW * c.GasFactor
}

// Derive 使用默认换算系数计算派生指标
func Derive(reading models.CanonicalReading, priorCumulativeFlow float64, sampleIntervalSeconds float64) models.DerivedReading {
	return deriveWith(reading, priorCumulativeFlow, sampleIntervalSeconds, DefaultGasConversionFactor)
}

func deriveWith(reading models.CanonicalReading, prior, intervalSeconds, factor float64) models.DerivedReading {
	return models.DerivedReading{
		CanonicalReading:  reading,
		GasConsumptionM3H: reading.PowerKW * factor,
		CumulativeFlowL:   prior + reading.FlowRateLS*intervalSeconds,
	}
}

// Cost 费用 = 消耗量 × 单价
func Cost(consumption float64, unitPrice decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(consumption).Mul(unitPrice)
}
