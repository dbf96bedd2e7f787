package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/david/licitacoes/internal/models"
)

// powerLabels maps the single-letter poderId code to its label.
var powerLabels = map[string]string{
	"E": "Estadual",
	"M": "Municipal",
	"N": "Nacional",
}

// nestedColumns are flattened into the top-level namespace, in this order.
var nestedColumns = []string{models.ColOrgEntity, models.ColOrgUnit}

// NormalizeStats counts the per-cell problems recovered during a pass.
type NormalizeStats struct {
	InputRows     int
	OutputRows    int
	Duplicates    int
	DatesNulled   int
	UnmappedPower int
	// Namespaced lists flattened keys that were renamed to avoid a clash,
	// keyed by final column name.
	Namespaced map[string]string
}

// MapPower returns the label for a power code, or nil for anything outside
// {E, M, N}.
func MapPower(code any) any {
	s, ok := code.(string)
	if !ok {
		return nil
	}
	if label, ok := powerLabels[s]; ok {
		return label
	}
	return nil
}

type dedupKey struct {
	value       string
	description string
}

func keyPart(v any) string {
	switch x := v.(type) {
	case nil:
		return "n:"
	case string:
		return "s:" + x
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "x:" + fmt.Sprint(x)
		}
		return "j:" + string(b)
	}
}

// Deduplicate drops rows whose (valorTotalEstimado, objetoCompra) pair was
// already seen, keeping the first occurrence. Nulls compare equal.
func Deduplicate(rows []models.Record) ([]models.Record, int) {
	seen := make(map[dedupKey]struct{}, len(rows))
	out := make([]models.Record, 0, len(rows))
	for _, r := range rows {
		k := dedupKey{
			value:       keyPart(r[models.ColEstimatedTotal]),
			description: keyPart(r[models.ColObject]),
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

// CoerceDates replaces every date column value with a time.Time or nil and
// returns how many non-null cells could not be parsed.
func CoerceDates(r models.Record) int {
	nulled := 0
	for _, col := range models.DateColumns {
		v, ok := coerceDate(r[col])
		if !ok {
			nulled++
		}
		r[col] = v
	}
	return nulled
}

// flattenValue writes the leaves of v under prefix, joining keys with '.'.
// Lists and scalars are leaves.
func flattenValue(prefix string, v any, out map[string]any) {
	m, ok := v.(map[string]any)
	if !ok {
		out[prefix] = v
		return
	}
	for k, child := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flattenValue(key, child, out)
	}
}

func flattenObject(v any) map[string]any {
	out := make(map[string]any)
	if m, ok := v.(map[string]any); ok {
		for k, child := range m {
			flattenValue(k, child, out)
		}
	}
	return out
}

// flattenPlan fixes the column name of every flattened key of one nested
// object across the whole dataset.
type flattenPlan struct {
	source string
	keys   []string
	names  map[string]string
}

// planFlatten collects the union of flattened keys for source. A key keeps
// its bare name unless the name is already taken, in which case it becomes
// "<source>.<key>".
func planFlatten(rows []models.Record, source string, taken map[string]bool) flattenPlan {
	keySet := make(map[string]struct{})
	for _, r := range rows {
		for k := range flattenObject(r[source]) {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	plan := flattenPlan{source: source, keys: keys, names: make(map[string]string, len(keys))}
	for _, k := range keys {
		name := k
		if taken[name] {
			name = source + "." + k
		}
		taken[name] = true
		plan.names[k] = name
	}
	return plan
}

func (p flattenPlan) columns() []string {
	cols := make([]string, len(p.keys))
	for i, k := range p.keys {
		cols[i] = p.names[k]
	}
	return cols
}

func (p flattenPlan) apply(src models.Record, dst models.Record) {
	flat := flattenObject(src[p.source])
	for _, k := range p.keys {
		dst[p.names[k]] = flat[k]
	}
}

// Normalize turns a raw concatenated dataset into the clean dataset:
// dedup, date coercion, valor, flattening of orgaoEntidade and unidadeOrgao,
// and the poder label. raw is not modified.
func Normalize(raw *models.Dataset) (*models.Dataset, NormalizeStats) {
	stats := NormalizeStats{InputRows: raw.Len(), Namespaced: map[string]string{}}

	rows, dups := Deduplicate(raw.Rows)
	stats.Duplicates = dups

	skip := map[string]bool{models.ColValue: true, models.ColPower: true}
	for _, n := range nestedColumns {
		skip[n] = true
	}

	var base []string
	taken := map[string]bool{models.ColValue: true, models.ColPower: true}
	for _, c := range raw.Columns {
		if skip[c] {
			continue
		}
		base = append(base, c)
		taken[c] = true
	}
	for _, c := range models.DateColumns {
		if !taken[c] {
			base = append(base, c)
			taken[c] = true
		}
	}

	orgPlan := planFlatten(rows, models.ColOrgEntity, taken)
	unitPlan := planFlatten(rows, models.ColOrgUnit, taken)
	for _, plan := range []flattenPlan{orgPlan, unitPlan} {
		for k, name := range plan.names {
			if name != k {
				stats.Namespaced[name] = k
			}
		}
	}

	powerCol, hasPower := orgPlan.names[models.ColPowerCode]
	if !hasPower && taken[models.ColPowerCode] {
		powerCol, hasPower = models.ColPowerCode, true
	}

	columns := make([]string, 0, len(base)+len(orgPlan.keys)+len(unitPlan.keys)+2)
	columns = append(columns, base...)
	columns = append(columns, models.ColValue)
	columns = append(columns, orgPlan.columns()...)
	columns = append(columns, models.ColPower)
	columns = append(columns, unitPlan.columns()...)

	clean := &models.Dataset{Columns: columns, Rows: make([]models.Record, 0, len(rows))}
	for _, r := range rows {
		out := make(models.Record, len(columns))
		for _, c := range base {
			out[c] = r[c]
		}
		stats.DatesNulled += CoerceDates(out)
		out[models.ColValue] = r[models.ColEstimatedTotal]
		orgPlan.apply(r, out)

		var code any
		if hasPower {
			code = out[powerCol]
		}
		out[models.ColPower] = MapPower(code)
		if out[models.ColPower] == nil {
			stats.UnmappedPower++
		}

		unitPlan.apply(r, out)
		clean.Rows = append(clean.Rows, out)
	}

	stats.OutputRows = clean.Len()
	return clean, stats
}
