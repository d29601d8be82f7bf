package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feederrors "github.com/apexsports/feedgate/pkg/errors"
)

func serverProvider(url string) *Provider {
	return &Provider{
		Name:      "testprov",
		BaseURL:   url,
		KeyParam:  "apiKey",
		Timeout:   5 * time.Second,
		Sports:    []string{"nba"},
		DataTypes: []DataType{DataTypeGames},
	}
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games", r.URL.Path)
		assert.Equal(t, "nba", r.URL.Query().Get("sport"))
		assert.Equal(t, "k-123", r.URL.Query().Get("apiKey"))
		w.Write([]byte(`[{"id":"g1"}]`))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{})
	body, err := f.Fetch(context.Background(), serverProvider(srv.URL), DataTypeGames, "nba", "k-123")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"g1"}]`, string(body))
}

func TestFetcher_FetchMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{})
	_, err := f.Fetch(context.Background(), serverProvider(srv.URL), DataTypeGames, "nba", "k")
	require.Error(t, err)

	var fe *feederrors.FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, feederrors.CategoryRateLimit, fe.Category)
	assert.Contains(t, fe.Message, "quota exhausted")
}

func TestFetcher_FetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewFetcher(FetcherConfig{})
	_, err := f.Fetch(context.Background(), serverProvider(srv.URL), DataTypeGames, "nba", "k")
	require.Error(t, err)

	var fe *feederrors.FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, feederrors.CategoryNetwork, fe.Category)
}

func TestFetcher_FetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := serverProvider(srv.URL)
	p.Timeout = 20 * time.Millisecond

	f := NewFetcher(FetcherConfig{})
	_, err := f.Fetch(context.Background(), p, DataTypeGames, "nba", "k")
	require.Error(t, err)

	var fe *feederrors.FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, feederrors.CategoryNetwork, fe.Category)
}

func TestFetcher_Probe(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("apiKey")
		if gotKey != "good" {
			http.Error(w, "denied", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{})
	p := serverProvider(srv.URL)

	require.NoError(t, f.Probe(context.Background(), p, "good"))
	assert.Equal(t, "good", gotKey)

	err := f.Probe(context.Background(), p, "bad")
	var fe *feederrors.FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, feederrors.CategoryAuthentication, fe.Category)
}

func TestFetcher_GlobalSmoothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{GlobalRPS: 50, GlobalBurst: 1})
	p := serverProvider(srv.URL)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), p, DataTypeGames, "nba", "k")
		require.NoError(t, err)
	}
	// Burst 1 at 50 rps forces ~20ms between the remaining two calls.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
