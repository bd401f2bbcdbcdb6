package integrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	xhttp "SOCPulse/pkg/http"
)

// HTTPServiceBase is the shared JSON client for vendor APIs. Every call
// goes through the integration's Reliability wrapper.
type HTTPServiceBase struct {
	baseURL string
	headers map[string]string
	client  *xhttp.Client
	rel     *Reliability
}

// NewHTTPServiceBase builds a client with timeout and base URL.
func NewHTTPServiceBase(baseURL string, timeout time.Duration, headers map[string]string, rel *Reliability, opts ...xhttp.ClientOption) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  xhttp.NewClient(opts...),
		rel:     rel,
	}
}

// GetJSON fetches path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, dest interface{}) error {
	return b.send(ctx, xhttp.MethodGet, path, nil, dest)
}

// PostJSON posts the payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	return b.send(ctx, xhttp.MethodPost, path, payload, dest)
}

func (b *HTTPServiceBase) send(ctx context.Context, method, path string, payload, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("http client not initialized")
	}
	headers := map[string]string{"Accept": "application/json"}
	for k, v := range b.headers {
		headers[k] = v
	}
	opts := &xhttp.RequestOptions{
		Method:  method,
		URL:     b.baseURL + path,
		Headers: headers,
		Body:    payload,
	}
	call := func(ctx context.Context) error {
		return b.client.SendAndParse(ctx, opts, dest)
	}

	var err error
	if b.rel != nil {
		err = b.rel.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(method), path, err)
	}
	return nil
}
