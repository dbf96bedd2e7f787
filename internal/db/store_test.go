package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/david/licitacoes/internal/models"
)

func sampleDataset() *models.Dataset {
	opening := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	return &models.Dataset{
		Columns: []string{"numeroControlePNCP", "dataAberturaProposta", "valor", "srp", "orgaoEntidade", "mixed", "vazio"},
		Rows: []models.Record{
			{
				"numeroControlePNCP":   "001",
				"dataAberturaProposta": opening,
				"valor":                1500.25,
				"srp":                  true,
				"orgaoEntidade":        map[string]any{"cnpj": "123", "poderId": "E"},
				"mixed":                "text",
				"vazio":                nil,
			},
			{
				"numeroControlePNCP":   "002",
				"dataAberturaProposta": nil,
				"valor":                nil,
				"srp":                  false,
				"orgaoEntidade":        nil,
				"mixed":                float64(3),
				"vazio":                nil,
			},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "contracts_clean.sqlite")
	ds := sampleDataset()

	info, err := SaveSnapshot(ctx, path, ds, StageClean)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if info.RowCount != 2 || info.RunID == "" {
		t.Fatalf("unexpected info: %+v", info)
	}

	got, err := LoadSnapshot(ctx, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !reflect.DeepEqual(got.Columns, ds.Columns) {
		t.Fatalf("columns: expected %v, got %v", ds.Columns, got.Columns)
	}
	if len(got.Rows) != len(ds.Rows) {
		t.Fatalf("expected %d rows, got %d", len(ds.Rows), len(got.Rows))
	}
	for i := range ds.Rows {
		if !reflect.DeepEqual(got.Rows[i], ds.Rows[i]) {
			t.Errorf("row %d: expected %#v, got %#v", i, ds.Rows[i], got.Rows[i])
		}
	}

	ts, ok := got.Rows[0]["dataAberturaProposta"].(time.Time)
	if !ok {
		t.Fatalf("timestamp typing lost: %T", got.Rows[0]["dataAberturaProposta"])
	}
	if !ts.Equal(time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", ts)
	}

	meta, err := ReadInfo(ctx, path)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if meta.Stage != StageClean || meta.RunID != info.RunID || meta.Columns != len(ds.Columns) || meta.RowCount != 2 {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestSaveSnapshotReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts.sqlite")

	if _, err := SaveSnapshot(ctx, path, sampleDataset(), StageRaw); err != nil {
		t.Fatalf("first save: %v", err)
	}
	small := &models.Dataset{Columns: []string{"a"}, Rows: []models.Record{{"a": "x"}}}
	if _, err := SaveSnapshot(ctx, path, small, StageRaw); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := LoadSnapshot(ctx, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0]["a"] != "x" {
		t.Fatalf("snapshot not replaced: %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	_, err := LoadSnapshot(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite"))
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	if _, err := SaveSnapshot(ctx, path, &models.Dataset{}, StageRaw); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSnapshot(ctx, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Columns) != 0 || len(got.Rows) != 0 {
		t.Fatalf("expected empty dataset, got %+v", got)
	}
}

func TestInferKind(t *testing.T) {
	rows := []models.Record{
		{"s": "a", "f": 1.0, "b": true, "t": time.Now(), "m": "a", "n": nil, "o": map[string]any{}},
		{"s": nil, "f": 2.0, "b": nil, "t": nil, "m": 1.0, "n": nil, "o": nil},
	}
	tests := map[string]Kind{
		"s": KindText,
		"f": KindReal,
		"b": KindBool,
		"t": KindTimestamp,
		"m": KindJSON,
		"n": KindText,
		"o": KindJSON,
	}
	for col, want := range tests {
		if got := inferKind(rows, col); got != want {
			t.Errorf("column %s: expected %s, got %s", col, want, got)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.csv")
	if err := WriteCSV(path, sampleDataset()); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := strings.TrimPrefix(string(b), "\ufeff")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "numeroControlePNCP,dataAberturaProposta,valor") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "2024-05-10T09:30:00Z") || !strings.Contains(lines[1], "1500.25") {
		t.Errorf("unexpected first row %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "002,,,false,,3,") {
		t.Errorf("unexpected second row %q", lines[2])
	}
}
