package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/david/licitacoes/internal/models"
)

// Kind is the storage type of a snapshot column.
type Kind string

const (
	KindText      Kind = "text"
	KindReal      Kind = "real"
	KindBool      Kind = "boolean"
	KindTimestamp Kind = "timestamp"
	KindJSON      Kind = "json"
)

const (
	StageRaw   = "raw"
	StageClean = "clean"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

func kindOf(v any) Kind {
	switch v.(type) {
	case string:
		return KindText
	case float64:
		return KindReal
	case bool:
		return KindBool
	case time.Time:
		return KindTimestamp
	default:
		return KindJSON
	}
}

// inferKind picks one kind for a column from its non-null values. Columns
// mixing kinds are stored as JSON; all-null columns as text.
func inferKind(rows []models.Record, col string) Kind {
	var kind Kind
	for _, r := range rows {
		v := r[col]
		if v == nil {
			continue
		}
		k := kindOf(v)
		if kind == "" {
			kind = k
		} else if kind != k {
			return KindJSON
		}
	}
	if kind == "" {
		return KindText
	}
	return kind
}

func sqlType(k Kind) string {
	switch k {
	case KindReal:
		return "REAL"
	case KindBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func encodeValue(k Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case KindText, KindReal:
		return v, nil
	case KindBool:
		if v.(bool) {
			return int64(1), nil
		}
		return int64(0), nil
	case KindTimestamp:
		return v.(time.Time).UTC().Format(time.RFC3339Nano), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func decodeValue(k Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch k {
	case KindText:
		return fmt.Sprint(v), nil
	case KindReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case KindBool:
		switch x := v.(type) {
		case int64:
			return x != 0, nil
		case bool:
			return x, nil
		}
	case KindTimestamp:
		if s, ok := v.(string); ok {
			return time.Parse(time.RFC3339Nano, s)
		}
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	case KindJSON:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, err
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("cannot decode %T as %s", v, k)
}

// physical column names avoid SQLite's case-insensitive identifiers.
func physical(i int) string {
	return "c" + strconv.Itoa(i)
}

// SaveSnapshot writes ds to a typed SQLite file at path, replacing any
// previous snapshot atomically.
func SaveSnapshot(ctx context.Context, path string, ds *models.Dataset, stage string) (*models.SnapshotInfo, error) {
	info := &models.SnapshotInfo{
		RunID:     uuid.NewString(),
		Stage:     stage,
		CreatedAt: time.Now().UTC(),
		RowCount:  ds.Len(),
		Columns:   len(ds.Columns),
	}

	err := writeAtomic(path, func(tmp string) error {
		conn, err := Open(ctx, tmp)
		if err != nil {
			return err
		}
		defer conn.Close()
		return writeSnapshot(ctx, conn, ds, info)
	})
	if err != nil {
		return nil, fmt.Errorf("saving snapshot %s: %w", path, err)
	}
	return info, nil
}

func writeSnapshot(ctx context.Context, conn *sql.DB, ds *models.Dataset, info *models.SnapshotInfo) error {
	if err := ApplyMigrations(ctx, conn); err != nil {
		return err
	}

	kinds := make([]Kind, len(ds.Columns))
	defs := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		kinds[i] = inferKind(ds.Rows, col)
		defs[i] = physical(i) + " " + sqlType(kinds[i])
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	create := "CREATE TABLE records (rowid INTEGER PRIMARY KEY"
	if len(defs) > 0 {
		create += ", " + strings.Join(defs, ", ")
	}
	create += ")"
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create records: %w", err)
	}

	for i, col := range ds.Columns {
		if _, err := tx.ExecContext(ctx, "INSERT INTO snapshot_columns (position, name, kind) VALUES (?, ?, ?)", i, col, string(kinds[i])); err != nil {
			return fmt.Errorf("insert column %q: %w", col, err)
		}
	}

	meta := map[string]string{
		"run_id":     info.RunID,
		"stage":      info.Stage,
		"created_at": info.CreatedAt.Format(time.RFC3339Nano),
		"row_count":  strconv.Itoa(info.RowCount),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO snapshot_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	if len(ds.Columns) > 0 {
		names := make([]string, len(ds.Columns))
		for i := range ds.Columns {
			names[i] = physical(i)
		}
		ph := strings.TrimRight(strings.Repeat("?,", len(names)), ",")
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO records ("+strings.Join(names, ",")+") VALUES ("+ph+")")
		if err != nil {
			return err
		}
		defer stmt.Close()

		args := make([]any, len(ds.Columns))
		for n, r := range ds.Rows {
			for i, col := range ds.Columns {
				v, err := encodeValue(kinds[i], r[col])
				if err != nil {
					return fmt.Errorf("row %d column %q: %w", n, col, err)
				}
				args[i] = v
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert row %d: %w", n, err)
			}
		}
	} else {
		for range ds.Rows {
			if _, err := tx.ExecContext(ctx, "INSERT INTO records DEFAULT VALUES"); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(ctx context.Context, path string) (*models.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return nil, err
	}

	conn, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	colRows, err := conn.QueryContext(ctx, "SELECT name, kind FROM snapshot_columns ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	ds := &models.Dataset{}
	var kinds []Kind
	for colRows.Next() {
		var name, kind string
		if err := colRows.Scan(&name, &kind); err != nil {
			colRows.Close()
			return nil, err
		}
		ds.Columns = append(ds.Columns, name)
		kinds = append(kinds, Kind(kind))
	}
	colRows.Close()
	if err := colRows.Err(); err != nil {
		return nil, err
	}

	selectCols := []string{"rowid"}
	for i := range ds.Columns {
		selectCols = append(selectCols, physical(i))
	}
	rows, err := conn.QueryContext(ctx, "SELECT "+strings.Join(selectCols, ",")+" FROM records ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	defer rows.Close()

	vals := make([]any, len(selectCols))
	ptrs := make([]any, len(selectCols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(models.Record, len(ds.Columns))
		for i, col := range ds.Columns {
			v, err := decodeValue(kinds[i], vals[i+1])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			rec[col] = v
		}
		ds.Rows = append(ds.Rows, rec)
	}
	return ds, rows.Err()
}

// ReadInfo returns the metadata of a snapshot without loading its rows.
func ReadInfo(ctx context.Context, path string) (*models.SnapshotInfo, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return nil, err
	}

	conn, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "SELECT key, value FROM snapshot_meta")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	info := &models.SnapshotInfo{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		switch k {
		case "run_id":
			info.RunID = v
		case "stage":
			info.Stage = v
		case "created_at":
			info.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
		case "row_count":
			info.RowCount, _ = strconv.Atoi(v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshot_columns").Scan(&info.Columns); err != nil {
		return nil, err
	}
	return info, nil
}
