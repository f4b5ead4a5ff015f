// Package export writes a user's reading history as a spreadsheet for
// sharing with a clinician.
package export

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"ppg-screening/internal/bp"
	"ppg-screening/internal/models"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Readings"

var ReadingsHeader = []string{
	"Measured At",
	"Systolic",
	"Diastolic",
	"MAP",
	"Category",
	"Heart Rate",
	"Method",
	"Rhythm",
	"Confidence",
	"Device",
	"Notes",
}

var columnWidths = []float64{20, 10, 10, 10, 12, 12, 14, 22, 12, 22, 60}

// ReadingsWorkbook renders readings, in the order given, into an xlsx file.
// Times are written in loc; nil means UTC.
func ReadingsWorkbook(readings []models.BPReading, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
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

	for col, header := range ReadingsHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range readings {
		row := i + 2
		for col, value := range readingRow(r, loc) {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
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

func readingRow(r models.BPReading, loc *time.Location) []any {
	c := bp.Classify(r.Systolic, r.Diastolic)
	row := []any{
		r.MeasuredAt.In(loc).Format("2006-01-02 15:04:05"),
		r.Systolic,
		r.Diastolic,
		math.Round(bp.MAP(r.Systolic, r.Diastolic)*100) / 100,
		string(c.Category),
		nil,
		string(r.Method),
		nil,
		nil,
		nil,
		nil,
	}
	if r.HeartRateBPM != nil {
		row[5] = *r.HeartRateBPM
	}
	if r.PPGSignal != nil {
		row[7] = string(r.PPGSignal.Rhythm)
		row[9] = r.PPGSignal.Device
	}
	if r.Confidence != nil {
		row[8] = *r.Confidence
	}
	if r.Notes != nil {
		row[10] = *r.Notes
	}
	return row
}
