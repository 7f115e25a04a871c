package report

import (
	"bytes"
	"fmt"

	"boiler-telemetry/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	dailySheet   = "Daily"
	monthlySheet = "Monthly"
)

// DailyHeader 日账单表头
var DailyHeader = []string{"Date", "Gas Consumption (m³)", "Cost", "Samples"}

// MonthlyHeader 月账单表头
var MonthlyHeader = []string{"Month", "Gas Consumption (m³)", "Cost"}

// GenerateBillWorkbook 生成燃气账单 Excel（Daily / Monthly 两个工作表）
func GenerateBillWorkbook(bill models.Bill) ([]byte, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	dailyRows := make([][]interface{}, 0, len(bill.Daily)+1)
	for _, d := range bill.Daily {
		dailyRows = append(dailyRows, []interface{}{d.Date, d.ConsumptionM3, d.Cost.InexactFloat64(), d.Samples})
	}
	dailyRows = append(dailyRows, []interface{}{"Total", bill.TotalM3, bill.TotalCost.InexactFloat64()})

	monthlyRows := make([][]interface{}, 0, len(bill.Monthly))
	for _, m := range bill.Monthly {
		monthlyRows = append(monthlyRows, []interface{}{m.Month, m.ConsumptionM3, m.Cost.InexactFloat64()})
	}

	// 第一个工作表复用默认的 Sheet1
	if err := f.SetSheetName("Sheet1", dailySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSheet(f, dailySheet, DailyHeader, dailyRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(monthlySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeSheet(f, monthlySheet, MonthlyHeader, monthlyRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Gas bill %s", bill.DeviceID),
		Creator: "boiler-telemetry",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set doc properties: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, headerStyle int) error {
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", last, 22); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}
