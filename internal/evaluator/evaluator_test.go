package evaluator_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"boiler-telemetry/internal/aggregator"
	"boiler-telemetry/internal/evaluator"
	"boiler-telemetry/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func windowOf(powers ...float64) []models.DerivedReading {
	calc := aggregator.NewCalculator(0, 0)
	out := make([]models.DerivedReading, len(powers))
	prior := 0.0
	for i, p := range powers {
		r := models.CanonicalReading{
			DeviceID:   "boiler-1",
			ObservedAt: noon.Add(time.Duration(i-len(powers)) * 5 * time.Second),
			PowerKW:    p,
		}
		out[i] = calc.Derive(r, prior)
		prior = out[i].CumulativeFlowL
	}
	return out
}

func kinds(alerts []models.Alert) []models.AlertKind {
	out := make([]models.AlertKind, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestEvaluate_GasLimitInclusiveBoundary(t *testing.T) {
	in := evaluator.Input{
		Window: windowOf(250, 250, 250, 250), // 1000 kW * 0.1 = 100 m³
		Thresholds: models.ThresholdConfig{
			GasLimitM3: 100,
			CostLimit:  0,
		},
		Now: noon,
	}

	alerts := evaluator.Evaluate(in)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertGasLimit, alerts[0].Kind)
	assert.Equal(t, 100.0, alerts[0].Value)
	assert.Equal(t, 100.0, alerts[0].Limit)
}

func TestEvaluate_BelowLimitsNoAlerts(t *testing.T) {
	in := evaluator.Input{
		Window:     windowOf(10, 10),
		Thresholds: models.DefaultThresholds("condo-1", "boiler-1"),
		Now:        noon,
	}
	assert.Empty(t, evaluator.Evaluate(in))
}

func TestEvaluate_CostLimitUsesUnitPrice(t *testing.T) {
	in := evaluator.Input{
		Window: windowOf(500, 500), // 100 m³ * 8.00 = 800
		Thresholds: models.ThresholdConfig{
			GasLimitM3: 1000,
			CostLimit:  800,
		},
		Now: noon,
	}

	alerts := evaluator.Evaluate(in)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCostLimit, alerts[0].Kind)
	assert.Equal(t, 800.0, alerts[0].Value)
}

func TestEvaluate_CostJustBelowLimitNoAlert(t *testing.T) {
	in := evaluator.Input{
		// 999.994 kW * 0.1 = 99.9994 m³ -> 799.9952，展示为 800.00
		Persisted: &evaluator.PeriodTotal{PowerSum: 999.994, Samples: 200, AsOf: noon},
		Thresholds: models.ThresholdConfig{
			GasLimitM3: 1000,
			CostLimit:  800,
		},
		Now: noon,
	}
	assert.Empty(t, evaluator.Evaluate(in))

	in.Persisted.PowerSum = 1000.0006 // 800.00048
	alerts := evaluator.Evaluate(in)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCostLimit, alerts[0].Kind)
	assert.Equal(t, 800.0, alerts[0].Value)
	assert.Contains(t, alerts[0].Message, "800.00")
}

func TestEvaluate_NonPositiveLimitsDisableRules(t *testing.T) {
	in := evaluator.Input{
		Window: windowOf(1000),
		Thresholds: models.ThresholdConfig{
			GasLimitM3:                    0,
			CostLimit:                     -1,
			TemperatureVariationThreshold: 0,
		},
		Ambient: []models.AmbientSample{
			{Temperature: 30, ObservedAt: noon},
			{Temperature: 10, ObservedAt: noon.Add(-30 * time.Minute)},
		},
		AmbientAvailable: true,
		Now:              noon,
	}
	assert.Empty(t, evaluator.Evaluate(in))
}

func TestPeriodConsumption_PersistedPlusWindowAfterAsOf(t *testing.T) {
	window := windowOf(10, 20, 30)
	in := evaluator.Input{
		Window: window,
		Persisted: &evaluator.PeriodTotal{
			PowerSum: 500,
			Samples:  50,
			AsOf:     window[0].ObservedAt, // 第一条已经计入汇总
		},
		Now: noon,
	}

	assert.InDelta(t, (500+20+30)*0.1, evaluator.PeriodConsumption(in), 1e-9)
}

func TestPeriodConsumption_IgnoresReadingsFromOtherDays(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	// 02:30 UTC 在圣保罗仍是前一天 23:30
	now := time.Date(2024, 6, 2, 3, 30, 0, 0, time.UTC)
	window := []models.DerivedReading{
		{CanonicalReading: models.CanonicalReading{ObservedAt: time.Date(2024, 6, 2, 2, 30, 0, 0, time.UTC), PowerKW: 100}},
		{CanonicalReading: models.CanonicalReading{ObservedAt: time.Date(2024, 6, 2, 3, 10, 0, 0, time.UTC), PowerKW: 40}},
	}

	in := evaluator.Input{Window: window, Now: now, Location: loc}
	assert.InDelta(t, 4.0, evaluator.PeriodConsumption(in), 1e-9)

	in.Location = time.UTC
	assert.InDelta(t, 14.0, evaluator.PeriodConsumption(in), 1e-9)
}

func TestDayBounds(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	start, end := evaluator.DayBounds(time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, loc), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestEvaluate_TemperatureSwing(t *testing.T) {
	thresholds := models.ThresholdConfig{TemperatureVariationThreshold: 5}

	tests := []struct {
		name      string
		current   float64
		previous  float64
		available bool
		want      []models.AlertKind
	}{
		{"increase at boundary", 25, 20, true, []models.AlertKind{models.AlertTempIncrease}},
		{"decrease", 12, 20, true, []models.AlertKind{models.AlertTempDecrease}},
		{"small change", 22, 20, true, []models.AlertKind{}},
		{"ambient unavailable", 30, 10, false, []models.AlertKind{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := evaluator.Input{
				Thresholds: thresholds,
				Ambient: []models.AmbientSample{
					{Temperature: tt.current, ObservedAt: noon},
					{Temperature: tt.previous, ObservedAt: noon.Add(-30 * time.Minute)},
				},
				AmbientAvailable: tt.available,
				Now:              noon,
			}
			assert.Equal(t, tt.want, kinds(evaluator.Evaluate(in)))
		})
	}
}

func TestEvaluate_TemperatureSwingNeedsTwoSamples(t *testing.T) {
	in := evaluator.Input{
		Thresholds:       models.ThresholdConfig{TemperatureVariationThreshold: 1},
		Ambient:          []models.AmbientSample{{Temperature: 40, ObservedAt: noon}},
		AmbientAvailable: true,
		Now:              noon,
	}
	assert.Empty(t, evaluator.Evaluate(in))
}
