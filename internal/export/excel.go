package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/david/licitacoes/internal/browse"
)

const (
	SheetName = "Biddings"
	MIMEType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	FileName  = "bidding_opportunities.xlsx"
)

// illegalChars are the control characters the xlsx format rejects.
var illegalChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// CleanCell strips illegal control characters from text. Other values
// are returned unchanged.
func CleanCell(v any) any {
	if s, ok := v.(string); ok {
		return illegalChars.ReplaceAllString(s, "")
	}
	return v
}

// cellValue maps a dataset value onto something excelize can write.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil, string, float64, bool, int, int64:
		return CleanCell(x)
	case time.Time:
		return x
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(cleanNested(x)); err != nil {
			return CleanCell(fmt.Sprint(x))
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
}

// cleanNested returns a copy of v with every string key and leaf cleaned.
// Marshaling escapes control characters, so they must go first.
func cleanNested(v any) any {
	switch x := v.(type) {
	case string:
		return illegalChars.ReplaceAllString(x, "")
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			out[illegalChars.ReplaceAllString(k, "")] = cleanNested(child)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			out[i] = cleanNested(child)
		}
		return out
	default:
		return v
	}
}

// ToExcel writes a header row plus rows to a single-sheet workbook and
// returns the file bytes. Zero rows yields a header-only file.
func ToExcel(columns []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = CleanCell(c)
	}
	if len(header) > 0 {
		if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// View exports a projected browse result.
func View(v browse.View) ([]byte, error) {
	return ToExcel(v.Columns, v.Rows)
}
