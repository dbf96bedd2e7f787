package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEndpointConfigEmbedded(t *testing.T) {
	t.Setenv("PNCP_BASE_URL", "")

	cfg, err := LoadEndpointConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL() != "https://pncp.gov.br/api/consulta/v1/contratacoes/proposta" {
		t.Errorf("unexpected URL %s", cfg.URL())
	}
	if cfg.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", cfg.PageSize)
	}
	if cfg.Params["dataFinal"] != "20400618" {
		t.Errorf("expected default dataFinal, got %q", cfg.Params["dataFinal"])
	}
	if cfg.Fetch.MaxRetries != 3 || cfg.Fetch.TimeoutSeconds != 60 {
		t.Errorf("unexpected fetch config %+v", cfg.Fetch)
	}
}

func TestLoadEndpointConfigFromFile(t *testing.T) {
	t.Setenv("PNCP_TEST_HOST", "http://localhost:9999/")
	path := filepath.Join(t.TempDir(), "pncp.yaml")
	yml := "base_url: ${PNCP_TEST_HOST}\nendpoint: v1/x\nfetch:\n  max_retries: 0\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadEndpointConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL() != "http://localhost:9999/v1/x" {
		t.Errorf("unexpected URL %s", cfg.URL())
	}
	if cfg.PageSize != DefaultPageSize || cfg.Fetch.MaxRetries != 0 || cfg.Fetch.RetryWaitMinMs != 500 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}
