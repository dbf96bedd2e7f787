package browse

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/david/licitacoes/internal/models"
)

// Stats summarises the filtered rows before projection.
type Stats struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total_value"`
}

// TotalDisplay formats Total as "R$ 1,234,567.89".
func (s Stats) TotalDisplay() string {
	return FormatCurrency(s.Total)
}

// View is the projected result handed to a consumer.
type View struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Stats   Stats    `json:"stats"`
}

// Summarize counts rows and sums the value column, skipping nulls.
func Summarize(rows []models.Record, valueColumn string) Stats {
	total := decimal.Zero
	for _, r := range rows {
		if v, ok := toFloat(r[valueColumn]); ok {
			total = total.Add(decimal.NewFromFloat(v))
		}
	}
	return Stats{Count: len(rows), Total: total}
}

// FormatCurrency renders d with two decimals, comma thousands separators and
// a "R$ " prefix.
func FormatCurrency(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return "R$ " + sign + b.String() + frac
}

// Project keeps the requested columns that exist, in requested order and
// without repeats. With no usable name it falls back per cfg.Defaults.
func Project(available []string, selection []string, defaults Defaults) []string {
	exists := make(map[string]bool, len(available))
	for _, c := range available {
		exists[c] = true
	}
	used := make(map[string]bool, len(selection))
	var cols []string
	for _, c := range selection {
		if exists[c] && !used[c] {
			used[c] = true
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 && defaults.EmptySelectionShowsAll {
		return append([]string(nil), available...)
	}
	return cols
}

// ResolveDefaultColumns returns cfg.DefaultColumns restricted to columns the
// dataset has, or its first five columns when none exist.
func ResolveDefaultColumns(ds *models.Dataset, cfg Config) []string {
	cols := Project(ds.Columns, cfg.DefaultColumns, Defaults{})
	if len(cols) > 0 {
		return cols
	}
	n := len(ds.Columns)
	if n > 5 {
		n = 5
	}
	return append([]string(nil), ds.Columns[:n]...)
}

// Options returns the sorted distinct non-null string values of column.
func Options(ds *models.Dataset, column string) []string {
	seen := make(map[string]struct{})
	for _, r := range ds.Rows {
		if s, ok := r[column].(string); ok {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FacetOptions returns Options for each categorical filter column, keyed by
// column name.
func FacetOptions(ds *models.Dataset, cfg Config) map[string][]string {
	facets := make(map[string][]string, 4)
	for _, col := range []string{cfg.StatusColumn, cfg.StateColumn, cfg.MunicipalityColumn, cfg.ModalityColumn} {
		facets[col] = Options(ds, col)
	}
	return facets
}

// Apply filters ds, computes the summary over the filtered rows and
// projects them onto the selected columns.
func Apply(ds *models.Dataset, c Criteria, selection []string, cfg Config) View {
	rows := Filter(ds.Rows, c, cfg)
	cols := Project(ds.Columns, selection, cfg.Defaults)

	view := View{
		Columns: cols,
		Rows:    make([][]any, len(rows)),
		Stats:   Summarize(rows, cfg.ValueColumn),
	}
	for i, r := range rows {
		row := make([]any, len(cols))
		for j, col := range cols {
			row[j] = r[col]
		}
		view.Rows[i] = row
	}
	return view
}
