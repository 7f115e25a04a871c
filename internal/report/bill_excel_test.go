package report_test

import (
	"bytes"
	"testing"
	"time"

	"boiler-telemetry/internal/aggregator"
	"boiler-telemetry/internal/models"
	"boiler-telemetry/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestGenerateBillWorkbook(t *testing.T) {
	days := []models.DailyPower{
		{Day: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), PowerSum: 1000, Samples: 20},
		{Day: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), PowerSum: 250, Samples: 10},
	}
	bill := aggregator.BuildBill("boiler-1", days[0].Day, days[1].Day.AddDate(0, 0, 1), days,
		aggregator.NewCalculator(0, 0), aggregator.DefaultGasPricePerM3)

	data, err := report.GenerateBillWorkbook(bill)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Daily", "Monthly"}, f.GetSheetList())

	daily, err := f.GetRows("Daily")
	require.NoError(t, err)
	require.Len(t, daily, 4) // 表头 + 2 天 + 合计
	assert.Equal(t, report.DailyHeader, daily[0])
	assert.Equal(t, "2024-01-31", daily[1][0])
	assert.Equal(t, "100", daily[1][1])
	assert.Equal(t, "800", daily[1][2])
	assert.Equal(t, "Total", daily[3][0])
	assert.Equal(t, "1000", daily[3][2])

	monthly, err := f.GetRows("Monthly")
	require.NoError(t, err)
	require.Len(t, monthly, 3)
	assert.Equal(t, "2024-02", monthly[2][0])
	assert.Equal(t, "25", monthly[2][1])
}

func TestGenerateBillWorkbook_Empty(t *testing.T) {
	data, err := report.GenerateBillWorkbook(models.Bill{DeviceID: "boiler-1"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	daily, err := f.GetRows("Daily")
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "Total", daily[1][0])
}
