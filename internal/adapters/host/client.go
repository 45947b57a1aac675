// Package host notifies the store backend about verified payments.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
)

// EventPaymentVerified is the event name sent to the host.
const EventPaymentVerified = "payment.verified"

// Client implements ports.EventPublisher over the host's HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new host backend client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// verifiedPayload is the body of the verified-payment notification.
type verifiedPayload struct {
	Event     string `json:"event"`
	OrderID   int64  `json:"order_id"`
	RefID     string `json:"ref_id"`
	Timestamp string `json:"timestamp"`
}

// PublishPaymentVerified tells the host an order was paid.
// POST /api/v1/payments/irandargah/verified
func (c *Client) PublishPaymentVerified(ctx context.Context, event domain.PaymentVerifiedEvent) error {
	url := fmt.Sprintf("%s/api/v1/payments/irandargah/verified", c.baseURL)

	jsonBody, err := json.Marshal(verifiedPayload{
		Event:     EventPaymentVerified,
		OrderID:   event.OrderID,
		RefID:     event.RefID,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.NewServiceError(domain.ErrHostNotificationFailed,
			"failed to marshal payload", "MARSHAL_ERROR")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return domain.NewServiceError(domain.ErrHostNotificationFailed,
			"failed to create request", "REQUEST_ERROR")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewServiceError(domain.ErrHostNotificationFailed,
			"request failed: "+err.Error(), "HTTP_ERROR")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return domain.NewServiceError(domain.ErrHostNotificationFailed,
			fmt.Sprintf("host returned status %d: %s", resp.StatusCode, string(body)),
			"HOST_ERROR")
	}

	return nil
}

// NopPublisher drops events. It is used when no host API is configured.
type NopPublisher struct{}

// PublishPaymentVerified does nothing.
func (NopPublisher) PublishPaymentVerified(context.Context, domain.PaymentVerifiedEvent) error {
	return nil
}
