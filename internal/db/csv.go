package db

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/david/licitacoes/internal/models"
)

// FormatCell renders a value for text output. Nulls become "".
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// WriteCSV writes the human-readable copy of ds. Types are not preserved,
// so the file is never read back.
func WriteCSV(path string, ds *models.Dataset) error {
	err := writeAtomic(path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		bw := bufio.NewWriter(f)
		// BOM so spreadsheet tools pick UTF-8.
		bw.WriteString("\ufeff")

		w := csv.NewWriter(bw)
		if err := w.Write(ds.Columns); err != nil {
			f.Close()
			return err
		}
		record := make([]string, len(ds.Columns))
		for _, r := range ds.Rows {
			for i, col := range ds.Columns {
				record[i] = FormatCell(r[col])
			}
			if err := w.Write(record); err != nil {
				f.Close()
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return err
		}
		if err := bw.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("writing csv %s: %w", path, err)
	}
	return nil
}
