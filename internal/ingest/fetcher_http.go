package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/david/licitacoes/internal/logging"
)

// retryStatusCodes are treated as transient.
var retryStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// NewRetryClient builds the HTTP client used for every listing request:
// bounded retries with exponential backoff and a per-request timeout.
func NewRetryClient(cfg FetchConfig) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = time.Duration(cfg.RetryWaitMinMs) * time.Millisecond
	client.RetryWaitMax = time.Duration(cfg.RetryWaitMaxMs) * time.Millisecond
	client.CheckRetry = shouldRetry
	client.Backoff = retryablehttp.DefaultBackoff
	client.Logger = logging.RetryLogger{Tag: "pncp"}
	client.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	return client
}

// shouldRetry retries connection failures and the status codes in
// retryStatusCodes. Anything else is returned to the caller as is.
func shouldRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return retryStatusCodes[resp.StatusCode], nil
}
