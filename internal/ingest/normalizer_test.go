package ingest

import (
	"fmt"
	"testing"
	"time"

	"github.com/david/licitacoes/internal/models"
)

func rawDataset() *models.Dataset {
	return &models.Dataset{
		Columns: []string{"numeroControlePNCP", "objetoCompra", "valorTotalEstimado", "dataAberturaProposta", "orgaoEntidade", "unidadeOrgao", "modalidadeNome"},
		Rows: []models.Record{
			{
				"numeroControlePNCP":   "1",
				"objetoCompra":         "Aquisição de medicamentos",
				"valorTotalEstimado":   1000.0,
				"dataAberturaProposta": "2024-03-01T08:00:00",
				"orgaoEntidade":        map[string]any{"cnpj": "111", "razaoSocial": "Prefeitura", "poderId": "M", "esferaId": "M"},
				"unidadeOrgao":         map[string]any{"ufSigla": "SP", "municipioNome": "Campinas", "codigoUnidade": "10"},
				"modalidadeNome":       "Pregão - Eletrônico",
			},
			{
				// duplicate of the first on (valor, objeto)
				"numeroControlePNCP":   "2",
				"objetoCompra":         "Aquisição de medicamentos",
				"valorTotalEstimado":   1000.0,
				"dataAberturaProposta": "not a date",
				"orgaoEntidade":        map[string]any{"cnpj": "222", "poderId": "E"},
				"unidadeOrgao":         map[string]any{"ufSigla": "RJ"},
			},
			{
				"numeroControlePNCP":   "3",
				"objetoCompra":         "Serviços de limpeza",
				"valorTotalEstimado":   nil,
				"dataAberturaProposta": "2024-03-02",
				"orgaoEntidade":        map[string]any{"cnpj": "333", "poderId": "X"},
				"unidadeOrgao":         nil,
			},
			{
				"numeroControlePNCP":   "4",
				"objetoCompra":         nil,
				"valorTotalEstimado":   nil,
				"dataAberturaProposta": "31/12/2024",
				"orgaoEntidade":        map[string]any{"cnpj": "444", "poderId": "N"},
				"unidadeOrgao":         map[string]any{"ufSigla": "DF", "codigoUnidade": "20"},
			},
			{
				"numeroControlePNCP": "5",
				"objetoCompra":       nil,
				"valorTotalEstimado": nil,
			},
		},
	}
}

func TestMapPower(t *testing.T) {
	tests := []struct {
		code any
		want any
	}{
		{"E", "Estadual"},
		{"M", "Municipal"},
		{"N", "Nacional"},
		{"e", nil},
		{"X", nil},
		{"", nil},
		{nil, nil},
		{1.0, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := MapPower(tt.code); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDeduplicateKeepsFirst(t *testing.T) {
	rows, dropped := Deduplicate(rawDataset().Rows)
	if dropped != 2 {
		t.Fatalf("expected 2 duplicates, got %d", dropped)
	}
	var ids []string
	for _, r := range rows {
		ids = append(ids, r["numeroControlePNCP"].(string))
	}
	if fmt.Sprint(ids) != "[1 3 4]" {
		t.Errorf("expected [1 3 4], got %v", ids)
	}

	seen := map[string]bool{}
	for _, r := range rows {
		k := keyPart(r[models.ColEstimatedTotal]) + "|" + keyPart(r[models.ColObject])
		if seen[k] {
			t.Errorf("duplicate pair survived: %s", k)
		}
		seen[k] = true
	}
}

func TestNormalize(t *testing.T) {
	raw := rawDataset()
	clean, stats := Normalize(raw)

	if stats.Duplicates != 2 || stats.OutputRows != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	wantCols := []string{
		"numeroControlePNCP", "objetoCompra", "valorTotalEstimado", "dataAberturaProposta", "modalidadeNome",
		"dataEncerramentoProposta", "dataInclusao", "dataPublicacaoPncp", "dataAtualizacao", "dataAtualizacaoGlobal",
		"valor",
		"cnpj", "esferaId", "poderId", "razaoSocial",
		"poder",
		"codigoUnidade", "municipioNome", "ufSigla",
	}
	if fmt.Sprint(clean.Columns) != fmt.Sprint(wantCols) {
		t.Fatalf("columns:\nexpected %v\ngot      %v", wantCols, clean.Columns)
	}

	first := clean.Rows[0]
	if first["valor"] != 1000.0 {
		t.Errorf("valor should copy valorTotalEstimado, got %v", first["valor"])
	}
	if first["poder"] != "Municipal" || first["municipioNome"] != "Campinas" || first["cnpj"] != "111" {
		t.Errorf("unexpected first row: %v", first)
	}
	if _, ok := first["orgaoEntidade"]; ok {
		t.Error("nested orgaoEntidade column should be replaced by its fields")
	}
	opening, ok := first["dataAberturaProposta"].(time.Time)
	if !ok || !opening.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected opening date %v", first["dataAberturaProposta"])
	}

	third := clean.Rows[1]
	if third["poder"] != nil {
		t.Errorf("unmapped power code should give nil, got %v", third["poder"])
	}
	if third["ufSigla"] != nil || third["razaoSocial"] != nil {
		t.Errorf("missing nested fields should be nil: %v", third)
	}

	fourth := clean.Rows[2]
	if fourth["dataAberturaProposta"] != nil {
		t.Errorf("unparseable date should be nil, got %v", fourth["dataAberturaProposta"])
	}
	if fourth["poder"] != "Nacional" {
		t.Errorf("expected Nacional, got %v", fourth["poder"])
	}
	if stats.DatesNulled != 1 || stats.UnmappedPower != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}

	for i, r := range clean.Rows {
		for _, col := range models.DateColumns {
			switch r[col].(type) {
			case nil, time.Time:
			default:
				t.Errorf("row %d column %s left as %T", i, col, r[col])
			}
		}
	}

	if _, ok := raw.Rows[0]["dataAberturaProposta"].(string); !ok {
		t.Error("raw dataset must not be modified")
	}
}

func TestNormalizeCollisionPolicy(t *testing.T) {
	raw := &models.Dataset{
		Columns: []string{"codigo", "orgaoEntidade", "unidadeOrgao"},
		Rows: []models.Record{
			{
				"codigo":        "top",
				"orgaoEntidade": map[string]any{"codigo": "org", "nome": "Org", "poderId": "E"},
				"unidadeOrgao":  map[string]any{"nome": "Unit", "endereco": map[string]any{"cidade": "Recife"}},
			},
		},
	}
	clean, stats := Normalize(raw)
	r := clean.Rows[0]

	checks := map[string]any{
		"codigo":               "top",
		"orgaoEntidade.codigo": "org",
		"nome":                 "Org",
		"unidadeOrgao.nome":    "Unit",
		"endereco.cidade":      "Recife",
		"poder":                "Estadual",
	}
	for col, want := range checks {
		if r[col] != want {
			t.Errorf("%s: expected %v, got %v", col, want, r[col])
		}
	}
	if stats.Namespaced["orgaoEntidade.codigo"] != "codigo" || stats.Namespaced["unidadeOrgao.nome"] != "nome" {
		t.Errorf("unexpected namespaced map: %v", stats.Namespaced)
	}
	if !clean.HasColumn("unidadeOrgao.nome") || clean.HasColumn("unidadeOrgao") {
		t.Errorf("unexpected columns %v", clean.Columns)
	}
}

func TestParseDateRobust(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-01T08:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), true},
		{"2024-03-01T08:00:00.123", time.Date(2024, 3, 1, 8, 0, 0, 123000000, time.UTC), true},
		{"2024-03-01T08:00:00Z", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), true},
		{"2024-03-01T08:00:00-03:00", time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), true},
		{"2024-03-01 08:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), true},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"2024-13-45", time.Time{}, false},
		{"amanhã", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDateRobust(tt.in)
			if tt.ok != (err == nil) {
				t.Fatalf("expected ok=%v, got err=%v", tt.ok, err)
			}
			if tt.ok && !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
