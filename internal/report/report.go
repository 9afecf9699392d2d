// Package report renders the per-machine maintenance summary as a spreadsheet.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ukydev/plant-maintenance/internal/models"
	"github.com/xuri/excelize/v2"
)

// ContentType of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const sheetName = "Machine Summary"

// SummaryHeader is the first row of the summary sheet.
var SummaryHeader = []string{
	"Machine ID",
	"Machine",
	"Downtime (min)",
	"Open Requests",
	"Spare Parts Cost",
	"Avg Resolution (h)",
}

var columnWidths = []float64{28, 30, 16, 15, 18, 20}

// SummaryWorkbook builds an XLSX workbook with one row per machine and a
// totals row.
func SummaryWorkbook(rows []models.MachineSummary, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}

	for col, header := range SummaryHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		colName, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(sheetName, colName, colName, columnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(SummaryHeader), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	var totalDowntime, totalOpen int64
	var totalCost float64
	for i, r := range rows {
		values := []interface{}{
			r.MachineID.Hex(),
			r.MachineName,
			r.TotalDowntimeMinutes,
			r.OpenRequests,
			r.TotalCost,
			nil,
		}
		if r.AvgResolutionHours != nil {
			values[5] = *r.AvgResolutionHours
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
		totalDowntime += r.TotalDowntimeMinutes
		totalOpen += r.OpenRequests
		totalCost += r.TotalCost
	}

	totalRow := len(rows) + 2
	totals := []interface{}{"Total", "", totalDowntime, totalOpen, totalCost}
	cell, _ := excelize.CoordinatesToCellName(1, totalRow)
	if err := f.SetSheetRow(sheetName, cell, &totals); err != nil {
		return nil, fmt.Errorf("failed to write totals: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "E2", fmt.Sprintf("E%d", totalRow), moneyStyle); err != nil {
		return nil, fmt.Errorf("failed to set cost style: %w", err)
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Maintenance summary",
		Created: generatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("failed to set properties: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
