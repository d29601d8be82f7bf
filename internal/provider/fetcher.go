package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	feederrors "github.com/apexsports/feedgate/pkg/errors"
)

// maxResponseBytes caps how much of a provider response is read. Sports
// payloads are small; anything larger is a misbehaving endpoint.
const maxResponseBytes = 8 << 20

// Fetcher executes outbound provider requests. A shared token-bucket
// limiter smooths the aggregate outbound rate across all providers so
// scheduler bursts do not stampede the network, independent of the
// per-provider quota enforcement in the ratelimit package.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// FetcherConfig controls the HTTP client and outbound smoothing.
type FetcherConfig struct {
	// Timeout is the default per-request timeout when the provider does
	// not specify one.
	Timeout time.Duration
	// GlobalRPS caps aggregate outbound requests per second. Zero
	// disables smoothing.
	GlobalRPS float64
	// GlobalBurst is the smoothing burst size.
	GlobalBurst int
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}

	return &Fetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// Fetch executes one provider request and returns the raw response body.
// Transport failures are classified as network errors; non-2xx responses
// go through the provider's error mapping.
func (f *Fetcher) Fetch(ctx context.Context, p *Provider, dataType DataType, sport, apiKey string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = f.client.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := p.BuildRequest(reqCtx, dataType, sport, apiKey)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, feederrors.NewNetworkError(p.Name, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, feederrors.NewNetworkError(p.Name, "read response: "+err.Error())
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, p.MapError(resp.StatusCode, body)
	}
	return body, nil
}

// Probe performs a lightweight credential check against the provider: a
// minimal request that succeeds only when the key is accepted.
func (f *Fetcher) Probe(ctx context.Context, p *Provider, apiKey string) error {
	dataType := DataTypeTeams
	if len(p.DataTypes) > 0 {
		dataType = p.DataTypes[0]
	}
	sport := "nba"
	if len(p.Sports) > 0 {
		sport = p.Sports[0]
	}

	_, err := f.Fetch(ctx, p, dataType, sport, apiKey)
	return err
}
