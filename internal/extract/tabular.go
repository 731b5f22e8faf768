package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

func extractCSV(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(stripBOM(data)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	segments := []string{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if blankRow(record) {
			continue
		}
		segments = append(segments, renderRow(header, record))
	}
	return segments, nil
}

func extractXLSX(data []byte, maxRows int) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	segments := []string{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		header := rows[0]
		for i, row := range rows[1:] {
			if maxRows > 0 && i >= maxRows {
				break
			}
			if blankRow(row) {
				continue
			}
			segments = append(segments, renderRow(header, row))
		}
	}
	return segments, nil
}

// renderRow formats a row as "col: val | col: val" in header order. Missing
// cells render empty; cells past the header get positional names.
func renderRow(header, row []string) string {
	width := len(header)
	if len(row) > width {
		width = len(row)
	}

	parts := make([]string, 0, width)
	for i := 0; i < width; i++ {
		name := fmt.Sprintf("column_%d", i+1)
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			name = strings.TrimSpace(header[i])
		}
		val := ""
		if i < len(row) {
			val = strings.TrimSpace(row[i])
		}
		parts = append(parts, name+": "+val)
	}
	return strings.Join(parts, " | ")
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
