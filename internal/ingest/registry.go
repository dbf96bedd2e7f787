package ingest

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/pncp.yaml
var endpointYAML embed.FS

const (
	DefaultBaseURL  = "https://pncp.gov.br/api/consulta"
	DefaultEndpoint = "/v1/contratacoes/proposta"
	DefaultPageSize = 50
)

// FetchConfig defines HTTP behaviour for the listing endpoint.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"` // Default: 60
	MaxRetries     int    `yaml:"max_retries"`               // 0 means a single attempt
	RetryWaitMinMs int    `yaml:"retry_wait_min_ms,omitempty"`
	RetryWaitMaxMs int    `yaml:"retry_wait_max_ms,omitempty"`
	UserAgent      string `yaml:"user_agent,omitempty"`
}

// EndpointConfig describes the paged listing endpoint and its default query.
type EndpointConfig struct {
	BaseURL  string            `yaml:"base_url"`
	Endpoint string            `yaml:"endpoint"`
	PageSize int               `yaml:"page_size"`
	Params   map[string]string `yaml:"params,omitempty"`
	Fetch    FetchConfig       `yaml:"fetch,omitempty"`
}

// URL joins base URL and endpoint path.
func (c *EndpointConfig) URL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.Endpoint, "/")
}

// LoadEndpointConfig reads the embedded pncp.yaml, or the file at path when
// one is given.
func LoadEndpointConfig(path string) (*EndpointConfig, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = endpointYAML.ReadFile("config/pncp.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("reading endpoint config: %w", err)
	}

	// Expand environment variables within the YAML content (e.g. ${PNCP_BASE_URL})
	expanded := os.ExpandEnv(string(data))

	var cfg EndpointConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing endpoint config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *EndpointConfig) applyDefaults() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = 60
	}
	if c.Fetch.MaxRetries < 0 {
		c.Fetch.MaxRetries = 0
	}
	if c.Fetch.RetryWaitMinMs <= 0 {
		c.Fetch.RetryWaitMinMs = 500
	}
	if c.Fetch.RetryWaitMaxMs < c.Fetch.RetryWaitMinMs {
		c.Fetch.RetryWaitMaxMs = c.Fetch.RetryWaitMinMs * 16
	}
	if c.Params == nil {
		c.Params = map[string]string{}
	}
}
