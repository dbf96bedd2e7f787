package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/david/licitacoes/internal/logging"
	"github.com/david/licitacoes/internal/models"
)

var (
	ErrMissingData       = errors.New("response has no data array")
	ErrMissingPagination = errors.New("response has no pagination counters")
)

// FetchPageError aborts a whole fetch. Page is 1-based.
type FetchPageError struct {
	Page int
	Err  error
}

func (e *FetchPageError) Error() string {
	return fmt.Sprintf("fetching page %d: %v", e.Page, e.Err)
}

func (e *FetchPageError) Unwrap() error { return e.Err }

// Params is the caller-supplied filter bag. Empty fields are not sent and
// fall back to the endpoint defaults.
type Params struct {
	DataFinal        string
	DataInicial      string
	CodigoModalidade string
	UF               string
	Extra            map[string]string
}

const (
	pageParam     = "pagina"
	pageSizeParam = "tamanhoPagina"
)

// Values merges defaults with the non-empty fields of p. The paging
// parameters are reserved and never taken from the bag.
func (p Params) Values(defaults map[string]string) url.Values {
	v := url.Values{}
	for k, val := range defaults {
		v.Set(k, val)
	}
	for k, val := range p.Extra {
		v.Set(k, val)
	}
	set := func(key, val string) {
		if val = strings.TrimSpace(val); val != "" {
			v.Set(key, val)
		}
	}
	set("dataFinal", p.DataFinal)
	set("dataInicial", p.DataInicial)
	set("codigoModalidadeContratacao", p.CodigoModalidade)
	set("uf", p.UF)
	v.Del(pageParam)
	v.Del(pageSizeParam)
	return v
}

// ProgressFunc is called once per fetched page, in page order.
type ProgressFunc func(page, totalPages, items int)

// Page is one decoded listing response.
type Page struct {
	Number    int
	Records   []models.Record
	Columns   []string
	Remaining int
	Total     int
}

// PNCPClient pages through the PNCP consultation API.
type PNCPClient struct {
	Config   *EndpointConfig
	HTTP     *retryablehttp.Client
	Progress ProgressFunc
}

func NewPNCPClient(cfg *EndpointConfig) *PNCPClient {
	return &PNCPClient{
		Config: cfg,
		HTTP:   NewRetryClient(cfg.Fetch),
	}
}

// QueryAll requests pages 1, 2, ... until the server reports zero remaining
// pages. Any page failure discards everything fetched so far.
func (c *PNCPClient) QueryAll(ctx context.Context, params Params) (*models.Dataset, error) {
	query := params.Values(c.Config.Params)
	ds := &models.Dataset{}
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		p, err := c.FetchPage(ctx, query, page)
		if err != nil {
			return nil, err
		}

		for _, col := range p.Columns {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				ds.Columns = append(ds.Columns, col)
			}
		}
		ds.Rows = append(ds.Rows, p.Records...)

		if c.Progress != nil {
			c.Progress(page, p.Total, len(p.Records))
		}

		if p.Remaining == 0 {
			break
		}
	}

	return ds, nil
}

// FetchPage requests a single page. query is not modified.
func (c *PNCPClient) FetchPage(ctx context.Context, query url.Values, page int) (*Page, error) {
	q := url.Values{}
	for k, vals := range query {
		q[k] = append([]string(nil), vals...)
	}
	q.Set(pageParam, strconv.Itoa(page))
	q.Set(pageSizeParam, strconv.Itoa(c.Config.PageSize))

	reqURL := c.Config.URL() + "?" + q.Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchPageError{Page: page, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if ua := c.Config.Fetch.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	logging.Log.Debugf("[PNCP] GET %s", reqURL)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &FetchPageError{Page: page, Err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	// 204 is how the API answers a query with no matches.
	if resp.StatusCode == http.StatusNoContent {
		return &Page{Number: page, Total: page - 1}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchPageError{Page: page, Err: fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchPageError{Page: page, Err: fmt.Errorf("reading body: %w", err)}
	}

	p, err := decodePage(body)
	if err != nil {
		return nil, &FetchPageError{Page: page, Err: err}
	}
	p.Number = page
	return p, nil
}

func decodePage(body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON body")
	}
	res := gjson.ParseBytes(body)

	data := res.Get("data")
	if !data.Exists() || !data.IsArray() {
		return nil, ErrMissingData
	}
	remaining := res.Get("paginasRestantes")
	total := res.Get("totalPaginas")
	if !remaining.Exists() || !total.Exists() {
		return nil, ErrMissingPagination
	}

	p := &Page{
		Remaining: int(remaining.Int()),
		Total:     int(total.Int()),
	}
	seen := make(map[string]struct{})

	var itemErr error
	data.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			itemErr = fmt.Errorf("data[%d] is not an object", len(p.Records))
			return false
		}
		rec := make(models.Record)
		item.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			rec[k] = value.Value()
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				p.Columns = append(p.Columns, k)
			}
			return true
		})
		p.Records = append(p.Records, rec)
		return true
	})
	if itemErr != nil {
		return nil, itemErr
	}

	return p, nil
}
