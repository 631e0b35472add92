package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

// httpClient is the transport shared by the REST adapters.
type httpClient struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	authorize  func(*http.Request)
	parseError func(status int, body []byte) *Error
}

func newHTTPClient(provider, baseURL string, timeout time.Duration, authorize func(*http.Request), parseError func(int, []byte) *Error) *httpClient {
	return &httpClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		authorize:  authorize,
		parseError: parseError,
	}
}

type request struct {
	method         string
	path           string
	body           io.Reader
	contentType    string
	idemHeader     string
	idempotencyKey string
}

func jsonRequest(method, path string, payload any, idemHeader, idempotencyKey string) (request, error) {
	req := request{method: method, path: path, idemHeader: idemHeader, idempotencyKey: idempotencyKey}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return req, fmt.Errorf("error marshalling json: %w", err)
		}
		req.body = strings.NewReader(string(data))
		req.contentType = "application/json"
	}
	return req, nil
}

func formRequest(method, path string, form url.Values, idemHeader, idempotencyKey string) request {
	return request{
		method:         method,
		path:           path,
		body:           strings.NewReader(form.Encode()),
		contentType:    "application/x-www-form-urlencoded",
		idemHeader:     idemHeader,
		idempotencyKey: idempotencyKey,
	}
}

// send is a generic helper for calling a provider and decoding its JSON response
func send[Resp any](ctx context.Context, c *httpClient, r request) (*Resp, error) {
	httpReq, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		httpReq.Header.Set("Content-Type", r.contentType)
	}
	if r.idemHeader != "" && r.idempotencyKey != "" {
		httpReq.Header.Set(r.idemHeader, r.idempotencyKey)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: c.provider, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Provider: c.provider, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.parseError(resp.StatusCode, body)
	}

	var out Resp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("error decoding %s response: %w", c.provider, err)
	}
	return &out, nil
}
