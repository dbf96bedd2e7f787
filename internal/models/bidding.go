package models

import "time"

// Column names as published by the PNCP consultation API, plus the two
// columns derived during normalization (valor, poder).
const (
	ColControlNumber   = "numeroControlePNCP"
	ColProposalOpening = "dataAberturaProposta"
	ColProposalClosing = "dataEncerramentoProposta"
	ColIncludedAt      = "dataInclusao"
	ColPublishedAt     = "dataPublicacaoPncp"
	ColUpdatedAt       = "dataAtualizacao"
	ColGlobalUpdatedAt = "dataAtualizacaoGlobal"
	ColObject          = "objetoCompra"
	ColEstimatedTotal  = "valorTotalEstimado"
	ColAwardedTotal    = "valorTotalHomologado"
	ColValue           = "valor"
	ColStatus          = "situacaoCompraNome"
	ColInstrumentType  = "tipoInstrumentoConvocatorioNome"
	ColModality        = "modalidadeNome"
	ColState           = "ufSigla"
	ColMunicipality    = "municipioNome"
	ColOrgEntity       = "orgaoEntidade"
	ColOrgUnit         = "unidadeOrgao"
	ColPowerCode       = "poderId"
	ColPower           = "poder"
)

// DateColumns are coerced to timestamps during normalization.
var DateColumns = []string{
	ColProposalOpening,
	ColProposalClosing,
	ColIncludedAt,
	ColPublishedAt,
	ColUpdatedAt,
	ColGlobalUpdatedAt,
}

// Record is one procurement notice. Values are nil, string, float64, bool,
// time.Time, map[string]any or []any.
type Record map[string]any

// Dataset is an ordered collection of records sharing a column set.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// HasColumn reports whether name is part of the dataset's column set.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) []Record {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	return d.Rows[:n]
}

// SnapshotInfo describes a persisted dataset.
type SnapshotInfo struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	RowCount  int       `json:"row_count"`
	Columns   int       `json:"columns"`
}
