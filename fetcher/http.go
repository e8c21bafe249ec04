package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"go.uber.org/zap"
)

const batchGetPath = "/products:batchGet"

// upstream error codes
const (
	codeNotFound    = "not_found"
	codeRateLimited = "rate_limited"
	codeMalformed   = "malformed"
)

type batchGetRequest struct {
	Keys []string `json:"keys"`
}

type batchGetResponse struct {
	Items  []product.Record `json:"items"`
	Errors []itemError      `json:"errors"`
}

type itemError struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPClient talks JSON to the upstream product API
type HTTPClient struct {
	logger   logger.Logger
	http     *http.Client
	endpoint string
	apiKey   string
	maxBody  int64
}

// NewHTTPClient creates an upstream client for cfg.Endpoint
// httpClient may be nil to use a client without its own timeout; calls are bounded by context
func NewHTTPClient(log logger.Logger, cfg *Config, httpClient *http.Client) (*HTTPClient, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, ErrInvalidConfig("endpoint is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{
		logger:   log,
		http:     httpClient,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		maxBody:  cfg.MaxResponseBytes,
	}, nil
}

// FetchBatch posts keys to the batchGet endpoint
func (c *HTTPClient) FetchBatch(ctx context.Context, keys []string, timeout time.Duration) (map[string]product.Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(batchGetRequest{Keys: keys})
	if err != nil {
		return nil, ErrRequest(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+batchGetPath, bytes.NewReader(body))
	if err != nil {
		return nil, ErrRequest(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ErrRequest(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrUpstreamRateLimited(resp.Header.Get("Retry-After"))
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
		return nil, ErrStatus(resp.StatusCode)
	}

	var payload batchGetResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxBody)).Decode(&payload); err != nil {
		c.logger.Warn("undecodable upstream response", zap.Int("keys", len(keys)), zap.Error(err))
		return failAll(keys, product.ErrMalformed, ErrDecode(err)), nil
	}

	results := make(map[string]product.Result, len(keys))
	for i := range payload.Items {
		rec := payload.Items[i]
		if err := rec.Validate(); err != nil {
			if rec.Key != "" {
				results[rec.Key] = product.Failure(rec.Key, product.ErrMalformed, err)
			}
			continue
		}
		results[rec.Key] = product.Result{Record: &rec}
	}
	for _, e := range payload.Errors {
		if e.Key == "" {
			continue
		}
		results[e.Key] = product.Failure(e.Key, errorKind(e.Code), itemErrorCause(e))
	}
	return results, nil
}

func errorKind(code string) error {
	switch code {
	case codeNotFound:
		return product.ErrNotFound
	case codeRateLimited:
		return product.ErrRateLimited
	case codeMalformed:
		return product.ErrMalformed
	default:
		return product.ErrNetwork
	}
}

func itemErrorCause(e itemError) error {
	if e.Message == "" {
		return nil
	}
	return &upstreamError{code: e.Code, message: e.Message}
}

type upstreamError struct {
	code    string
	message string
}

func (e *upstreamError) Error() string {
	return "upstream " + e.code + ": " + e.message
}
