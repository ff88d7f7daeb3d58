package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ExportHeader is the column order of both export formats
var ExportHeader = []string{
	"ID",
	"House No",
	"Resident Name",
	"Gender",
	"Date Of Birth",
	"NIDA Number",
	"Phone",
	"Occupation",
	"Education Level",
	"Employment Status",
	"Ownership",
	"Family Size",
	"Ward",
	"Village",
	"Registered At",
}

var columnWidths = []float64{8, 12, 28, 10, 14, 24, 14, 20, 18, 20, 12, 12, 20, 20, 20}

func (r ExportRow) values() []interface{} {
	return []interface{}{
		r.ID,
		r.HouseNo,
		r.ResidentName,
		r.Gender,
		r.DateOfBirth.Format("2006-01-02"),
		r.NIDANumber,
		r.Phone,
		r.Occupation,
		r.EducationLevel,
		r.EmploymentStatus,
		r.Ownership,
		r.FamilySize,
		r.WardName,
		r.VillageName,
		r.CreatedAt.UTC().Format("2006-01-02 15:04"),
	}
}

// WriteCSV writes rows as CSV with a header line
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	record := make([]string, len(ExportHeader))
	for _, r := range rows {
		for i, v := range r.values() {
			switch t := v.(type) {
			case string:
				record[i] = t
			case uint:
				record[i] = strconv.FormatUint(uint64(t), 10)
			case int:
				record[i] = strconv.Itoa(t)
			default:
				record[i] = fmt.Sprint(t)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildXLSX renders rows as a single-sheet workbook
func BuildXLSX(rows []ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Residences"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
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

	for col, header := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, name, name, columnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		vals := r.values()
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
