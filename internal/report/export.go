package report

import (
	"bytes"
	"fmt"
	"math"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary = "Summary"
	sheetDaily   = "Daily"
	sheetHourly  = "Hourly"
)

var (
	dailyHeader  = []string{"Date", "Screen Time (min)", "Good Posture (min)", "Good Posture (%)", "Mean Distance (cm)", "Distance Samples"}
	hourlyHeader = []string{"Date", "Hour", "Screen Time (min)", "Good Posture (min)", "Good Posture (%)", "Mean Distance (cm)", "Distance Samples"}
)

// Export renders the metrics, the period's days and one day's hours as an .xlsx
// workbook.
func Export(m Metrics, days []models.DailyAggregate, hours []models.HourlyAggregate) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetSummary)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

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
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummary(f, headerStyle, m); err != nil {
		f.Close()
		return nil, err
	}

	dailyRows := make([][]interface{}, 0, len(days))
	for _, d := range days {
		dailyRows = append(dailyRows, append([]interface{}{d.Date}, totalsCells(d.Totals)...))
	}
	if err := writeTable(f, headerStyle, sheetDaily, dailyHeader, dailyRows); err != nil {
		f.Close()
		return nil, err
	}

	hourlyRows := make([][]interface{}, 0, len(hours))
	for _, h := range hours {
		hourlyRows = append(hourlyRows, append([]interface{}{h.Date, h.Hour}, totalsCells(h.Totals)...))
	}
	if err := writeTable(f, headerStyle, sheetHourly, hourlyHeader, hourlyRows); err != nil {
		f.Close()
		return nil, err
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

func writeSummary(f *excelize.File, headerStyle int, m Metrics) error {
	rows := [][]interface{}{
		{"Metric", "Current", "Previous"},
		{"Period", string(m.Period), string(m.Period)},
		{"From", m.Current.Range.From(), m.Previous.Range.From()},
		{"To", m.Current.Range.To(), m.Previous.Range.To()},
		{"Screen Time (min)", minutes(m.Current.Totals.ScreenTimeSeconds), minutes(m.Previous.Totals.ScreenTimeSeconds)},
		{"Good Posture (min)", minutes(m.Current.Totals.PostureGoodSeconds), minutes(m.Previous.Totals.PostureGoodSeconds)},
		{"Good Posture (%)", round1(m.Current.PosturePercent()), round1(m.Previous.PosturePercent())},
		{"Mean Distance (cm)", meanCell(m.Current.Totals), meanCell(m.Previous.Totals)},
	}
	for _, kind := range models.AllAlertKinds {
		rows = append(rows, []interface{}{"Alerts: " + string(kind), m.Current.Alerts[kind], m.Previous.Alerts[kind]})
	}
	if change, ok := m.ScreenTimeChangePercent(); ok {
		rows = append(rows, []interface{}{"Screen Time Change (%)", round1(change), ""})
	}

	for r, row := range rows {
		for c, v := range row {
			if err := setCellValue(f, sheetSummary, c+1, r+1, v); err != nil {
				return fmt.Errorf("failed to set summary cell: %w", err)
			}
		}
	}
	if err := f.SetCellStyle(sheetSummary, "A1", "C1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheetSummary, "A", "A", 28); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(sheetSummary, "B", "C", 14)
}

func writeTable(f *excelize.File, headerStyle int, sheet string, header []string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
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
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for r, row := range rows {
		for c, v := range row {
			if err := setCellValue(f, sheet, c+1, r+2, v); err != nil {
				return fmt.Errorf("failed to set cell value at row %d, col %d: %w", r+2, c+1, err)
			}
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func totalsCells(t models.Totals) []interface{} {
	pct := 0.0
	if t.ScreenTimeSeconds > 0 {
		pct = 100 * t.PostureGoodSeconds / t.ScreenTimeSeconds
	}
	return []interface{}{
		minutes(t.ScreenTimeSeconds),
		minutes(t.PostureGoodSeconds),
		round1(pct),
		meanCell(t),
		t.DistanceSampleCount,
	}
}

func meanCell(t models.Totals) interface{} {
	mean, ok := t.MeanDistanceCM()
	if !ok {
		return ""
	}
	return round1(mean)
}

func minutes(seconds float64) float64 {
	return round1(seconds / 60)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func setCellValue(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
