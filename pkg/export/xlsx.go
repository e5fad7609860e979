package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrSheetNotFound is returned when a requested worksheet is absent.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrUnreadable marks input that is not an xlsx workbook.
	ErrUnreadable = errors.New("unreadable xlsx")
)

// Sheet is a named dataset inside a workbook.
type Sheet struct {
	Name string
	Data Dataset
}

// XLSXExporter renders datasets into an Excel workbook, one sheet each.
type XLSXExporter struct{}

// NewXLSXExporter builds an xlsx exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes the sheets in order. Cells that round-trip as numbers are
// stored as numbers.
func (e *XLSXExporter) Render(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one sheet")
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		if sheet.Name == "" {
			return nil, fmt.Errorf("sheet %d has no name", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return nil, fmt.Errorf("rename sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet); err != nil {
			return nil, err
		}
		if len(sheet.Data.Headers) > 0 {
			if err := f.SetRowStyle(sheet.Name, 1, 1, bold); err != nil {
				return nil, fmt.Errorf("style sheet %q: %w", sheet.Name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	header := make([]interface{}, len(sheet.Data.Headers))
	for i, h := range sheet.Data.Headers {
		header[i] = h
	}
	if err := setRow(f, sheet.Name, 1, header); err != nil {
		return err
	}
	for r, row := range sheet.Data.Rows {
		values := make([]interface{}, len(sheet.Data.Headers))
		for i, h := range sheet.Data.Headers {
			values[i] = cellValue(row[h])
		}
		if err := setRow(f, sheet.Name, r+2, values); err != nil {
			return err
		}
	}
	if n := len(sheet.Data.Headers); n > 0 {
		last, err := excelize.ColumnNumberToName(n)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(sheet.Name, "A", last, 18); err != nil {
			return fmt.Errorf("set column width on %q: %w", sheet.Name, err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %q: %w", row, sheet, err)
	}
	return nil
}

func cellValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == s {
		return f
	}
	return s
}

// ReadWorkbook loads the named sheets from an xlsx stream. The first row of
// each sheet is the header; short rows are padded with empty cells.
func ReadWorkbook(r io.Reader, sheets ...string) (map[string]Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	present := map[string]bool{}
	for _, name := range f.GetSheetList() {
		present[name] = true
	}
	out := make(map[string]Dataset, len(sheets))
	for _, name := range sheets {
		if !present[name] {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		out[name] = toDataset(rows)
	}
	return out, nil
}

func toDataset(rows [][]string) Dataset {
	if len(rows) == 0 {
		return Dataset{}
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	data := Dataset{Headers: headers}
	for _, raw := range rows[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(raw) {
				row[h] = raw[i]
			} else {
				row[h] = ""
			}
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}
