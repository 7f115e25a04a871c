package aggregator

import (
	"math"
	"sort"
	"time"

	"boiler-telemetry/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultGasPricePerM3 默认燃气单价（每 m³）
var DefaultGasPricePerM3 = decimal.RequireFromString("8.00")

// BuildBill 由按天汇总的功率计算日/月燃气消耗与费用
// 日消耗保留 4 位小数，费用保留 2 位；月度与总计由日数据累加
func BuildBill(deviceID string, from, to time.Time, days []models.DailyPower, calc Calculator, unitPrice decimal.Decimal) models.Bill {
	sorted := make([]models.DailyPower, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Day.Before(sorted[j].Day) })

	bill := models.Bill{
		DeviceID:  deviceID,
		From:      from,
		To:        to,
		UnitPrice: unitPrice,
		Daily:     make([]models.BillDay, 0, len(sorted)),
		Monthly:   []models.BillMonth{},
		TotalCost: decimal.Zero,
	}

	monthIndex := make(map[string]int)
	for _, d := range sorted {
		consumption := calc.GasConsumption(d.PowerSum)
		day := models.BillDay{
			Date:          d.Day.Format("2006-01-02"),
			ConsumptionM3: round4(consumption),
			Cost:          Cost(consumption, unitPrice).Round(2),
			Samples:       d.Samples,
		}
		bill.Daily = append(bill.Daily, day)
		bill.TotalM3 += day.ConsumptionM3
		bill.TotalCost = bill.TotalCost.Add(day.Cost)

		month := d.Day.Format("2006-01")
		idx, ok := monthIndex[month]
		if !ok {
			bill.Monthly = append(bill.Monthly, models.BillMonth{Month: month, Cost: decimal.Zero})
			idx = len(bill.Monthly) - 1
			monthIndex[month] = idx
		}
		bill.Monthly[idx].ConsumptionM3 = round4(bill.Monthly[idx].ConsumptionM3 + day.ConsumptionM3)
		bill.Monthly[idx].Cost = bill.Monthly[idx].Cost.Add(day.Cost)
	}
	bill.TotalM3 = round4(bill.TotalM3)

	return bill
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
