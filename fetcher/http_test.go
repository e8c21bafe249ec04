package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(logger.NewNop(), &Config{Endpoint: srv.URL + "/", APIKey: "secret"}, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	return c
}

func TestHTTPClient_FetchBatch(t *testing.T) {
	var gotKeys []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != batchGetPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		var req batchGetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotKeys = req.Keys

		_, _ = w.Write([]byte(`{
			"items": [
				{"key": "A", "title": "Yoga Mat", "price": "29.90", "currency": "EUR", "image_url": "https://img/a.jpg"},
				{"key": "M", "price": "1.00"}
			],
			"errors": [
				{"key": "B", "code": "not_found", "message": "no such item"},
				{"key": "C", "code": "rate_limited"},
				{"key": "D", "code": "internal"}
			]
		}`))
	})

	results, err := c.FetchBatch(context.Background(), []string{"A", "B", "C", "D", "M"}, time.Second)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D", "M"}, gotKeys); diff != "" {
		t.Errorf("request keys mismatch (-want +got):\n%s", diff)
	}

	a := results["A"]
	if !a.OK() || a.Record.Title != "Yoga Mat" || !a.Record.Price.Equal(decimal.RequireFromString("29.9")) {
		t.Errorf("unexpected record for A: %+v", a)
	}
	kinds := map[string]error{
		"B": product.ErrNotFound,
		"C": product.ErrRateLimited,
		"D": product.ErrNetwork,
		"M": product.ErrMalformed,
	}
	for key, kind := range kinds {
		if !errors.Is(results[key].Err, kind) {
			t.Errorf("%s: expected %v, got %v", key, kind, results[key].Err)
		}
	}
}

func TestHTTPClient_TooManyRequests(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchBatch(context.Background(), []string{"A"}, time.Second)
	if !errors.Is(err, product.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestHTTPClient_ServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchBatch(context.Background(), []string{"A"}, time.Second)
	if err == nil || errors.Is(err, product.ErrRateLimited) {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestHTTPClient_MalformedBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [`))
	})

	results, err := c.FetchBatch(context.Background(), []string{"A", "B"}, time.Second)
	if err != nil {
		t.Fatalf("malformed body must be reported per key: %v", err)
	}
	for _, key := range []string{"A", "B"} {
		if !errors.Is(results[key].Err, product.ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", key, results[key].Err)
		}
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := c.FetchBatch(context.Background(), []string{"A"}, 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTPClient_ThroughFetcher(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [{"key": "A", "title": "Strap", "price": "5"}]}`))
	})
	f := newTestFetcher(t, c, nil)

	results, err := f.Fetch(context.Background(), []string{"A", "B"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !results["A"].OK() || !errors.Is(results["B"].Err, product.ErrNotFound) {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestNewHTTPClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPClient(logger.NewNop(), &Config{}, nil); err == nil {
		t.Error("expected error without endpoint")
	}
}
