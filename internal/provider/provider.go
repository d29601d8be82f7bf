package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	feederrors "github.com/apexsports/feedgate/pkg/errors"
)

// Provider is the immutable description of one external sports-data source.
// It is loaded once from configuration and never mutated; all mutable state
// (rate limits, credentials) lives in the ratelimit and keypool registries.
type Provider struct {
	Name    string
	BaseURL string

	// KeyInHeader carries the API key as a request header named KeyParam
	// when true, otherwise as a query parameter named KeyParam.
	KeyInHeader bool
	KeyParam    string

	Timeout    time.Duration
	RetryDelay time.Duration

	Sports    []string
	DataTypes []DataType
	Priority  int
}

// Supports reports whether the provider can serve the given sport and data
// type. Empty Sports or DataTypes lists mean "everything".
func (p *Provider) Supports(sport string, dataType DataType) bool {
	if len(p.Sports) > 0 && !containsFold(p.Sports, sport) {
		return false
	}
	if len(p.DataTypes) > 0 {
		found := false
		for _, dt := range p.DataTypes {
			if dt == dataType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BuildRequest constructs the outbound GET request for a data type and
// sport, attaching the API key where the provider expects it.
func (p *Provider) BuildRequest(ctx context.Context, dataType DataType, sport, apiKey string) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(p.BaseURL, "/") + "/" + string(dataType))
	if err != nil {
		return nil, feederrors.NewValidationError(p.Name, "invalid base url: "+err.Error())
	}

	q := u.Query()
	q.Set("sport", sport)
	if !p.KeyInHeader {
		q.Set(p.KeyParam, apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.KeyInHeader {
		req.Header.Set(p.KeyParam, apiKey)
	}
	return req, nil
}

// MapError converts a non-2xx provider response into a typed error.
func (p *Provider) MapError(statusCode int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return feederrors.NewRateLimitError(p.Name, msg)
	case statusCode == http.StatusUnauthorized:
		return feederrors.NewAuthenticationError(p.Name, msg)
	case statusCode == http.StatusForbidden:
		return feederrors.NewAuthorizationError(p.Name, msg)
	case statusCode >= 500:
		return feederrors.NewServerError(p.Name, statusCode, msg)
	default:
		return feederrors.NewValidationError(p.Name, msg)
	}
}

func containsFold(list []string, needle string) bool {
	for _, item := range list {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}
