// Package ports defines the interfaces (ports) for the payment service.
// These are contracts that adapters must implement.
package ports

import (
	"context"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
)

// Transport sends one call to the provider, retrying as its policy allows.
type Transport interface {
	Send(ctx context.Context, call domain.OutboundCall) domain.TransportResult
}

// OrderRepository is the host order store.
type OrderRepository interface {
	// GetOrder returns domain.ErrOrderNotFound if the order does not exist.
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error

	// AddNote appends to the order's audit log.
	AddNote(ctx context.Context, id int64, note string) error

	SetMeta(ctx context.Context, id int64, key, value string) error

	// MarkPaid records the payment transaction id on the order.
	MarkPaid(ctx context.Context, id int64, transactionID string) error
}

// Cart is the shopper's active cart in the host.
type Cart interface {
	Empty(ctx context.Context, customerID string) error
}

// EventPublisher delivers gateway domain events to external subscribers.
type EventPublisher interface {
	PublishPaymentVerified(ctx context.Context, event domain.PaymentVerifiedEvent) error
}

// SettingsProvider supplies the gateway settings snapshot.
type SettingsProvider interface {
	Settings(ctx context.Context) (domain.GatewaySettings, error)
}

// CallbackSigner signs the order reference placed in the callback URL.
type CallbackSigner interface {
	Sign(orderID int64) string
	Verify(orderID int64, signature string) bool
}
