package irandargah

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/platform/txlog"
)

// DefaultTimeout bounds a single attempt.
const DefaultTimeout = 15 * time.Second

// RESTClient sends JSON requests to the provider over HTTP/1.1.
type RESTClient struct {
	httpClient *http.Client
	retry      RetryPolicy
	log        *txlog.Logger
}

// NewRESTClient creates the HTTP-JSON transport. The provider's certificate
// chain is not verified and redirects are not followed.
func NewRESTClient(timeout time.Duration, retry RetryPolicy, logger *txlog.Logger) *RESTClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // provider trust model
		// A non-nil empty map disables HTTP/2.
		TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{},
		TLSHandshakeTimeout: timeout,
	}
	return &RESTClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		retry: retry,
		log:   logger,
	}
}

// Send posts call.Payload as JSON to call.Target, or issues a GET with the
// payload as query parameters when call.UseGET is set.
func (c *RESTClient) Send(ctx context.Context, call domain.OutboundCall) domain.TransportResult {
	return c.retry.Do(ctx, func(ctx context.Context) (*domain.ProviderResponse, error) {
		body, err := c.do(ctx, call)
		if err != nil {
			c.log.When(call.Logging).Printf("Error in sending request to %s: %v", call.Target, err)
			return nil, err
		}
		return decodeJSONResponse(body)
	})
}

func (c *RESTClient) do(ctx context.Context, call domain.OutboundCall) ([]byte, error) {
	req, err := c.newRequest(ctx, call)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrTransport, "failed to create request: "+err.Error(), "REQUEST_ERROR")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrTransport, "request failed: "+err.Error(), "HTTP_ERROR")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrTransport, "failed to read response: "+err.Error(), "HTTP_ERROR")
	}
	return body, nil
}

func (c *RESTClient) newRequest(ctx context.Context, call domain.OutboundCall) (*http.Request, error) {
	jsonBody, err := json.Marshal(call.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if call.UseGET {
		target, err := withQuery(call.Target, jsonBody)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.Target, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// withQuery flattens a JSON object into the target's query string.
func withQuery(target string, jsonBody []byte) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	var fields map[string]any
	if err := json.Unmarshal(jsonBody, &fields); err != nil {
		return "", fmt.Errorf("payload is not an object: %w", err)
	}
	q := u.Query()
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			q.Set(k, val)
		case float64:
			q.Set(k, strconv.FormatFloat(val, 'f', -1, 64))
		case nil:
		default:
			q.Set(k, fmt.Sprint(val))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decodeJSONResponse returns nil without error when the body is not a JSON
// object, so the caller retries.
func decodeJSONResponse(body []byte) (*domain.ProviderResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var resp domain.ProviderResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, domain.NewServiceError(domain.ErrProviderFault, "failed to decode response: "+err.Error(), "DECODE_ERROR")
	}
	return &resp, nil
}
