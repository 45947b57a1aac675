package service

import (
	"context"
	"log"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/core/ports"
	"github.com/irandargah/irandargah-payments/internal/platform/txlog"
)

// Order notes written when the provider cannot be reached.
const (
	notePaymentUnreachable      = "Error in sending request for connecting to gateway"
	noteVerificationUnreachable = "Error in sending request for transaction's verification"
)

// Dispatcher routes provider calls to a transport and turns missing
// responses into order-visible failures.
type Dispatcher struct {
	rest      ports.Transport
	soap      ports.Transport
	orders    ports.OrderRepository
	presenter *Presenter
	baseURL   string
	txlog     *txlog.Logger
}

// NewDispatcher creates a dispatcher. baseURL is the provider host.
func NewDispatcher(rest, soap ports.Transport, orders ports.OrderRepository, presenter *Presenter, baseURL string, logger *txlog.Logger) *Dispatcher {
	return &Dispatcher{
		rest:      rest,
		soap:      soap,
		orders:    orders,
		presenter: presenter,
		baseURL:   baseURL,
		txlog:     logger,
	}
}

// Endpoints returns the provider URLs for the settings' environment.
func (d *Dispatcher) Endpoints(settings domain.GatewaySettings) domain.Endpoints {
	return domain.EndpointsFor(d.baseURL, settings.EffectiveMethod() == domain.MethodSandbox)
}

// Dispatch sends payload for op over the transport selected by the effective
// connection method. When no response is obtained it records the failure on
// the order and returns a Failure outcome; the response is then nil.
func (d *Dispatcher) Dispatch(ctx context.Context, settings domain.GatewaySettings, op domain.Operation, orderID int64, payload domain.Payload) (*domain.ProviderResponse, domain.Outcome) {
	method := settings.EffectiveMethod()
	tx := d.txlog.When(settings.LogsTransactions())

	if method.RequestsGET() {
		payload.TagAction("GET")
	}

	var result domain.TransportResult
	if method.UsesHTTPJSON() {
		result = d.rest.Send(ctx, domain.OutboundCall{
			Target:  d.Endpoints(settings).URL(op),
			Payload: payload,
			UseGET:  method.RequestsGET() && settings.UseGETVerb,
			Logging: settings.LogsTransactions(),
		})
	} else {
		result = d.soap.Send(ctx, domain.OutboundCall{
			Target:  domain.Procedure(op),
			Payload: payload,
			Logging: settings.LogsTransactions(),
		})
	}

	if !result.Absent() {
		tx.Printf("%s response for order %d after %d attempt(s): status=%d message=%q",
			op, orderID, result.Attempts, result.Response.Status, result.Response.Message)
		return result.Response, nil
	}

	tx.Printf("%s request for order %d failed after %d attempt(s): %v", op, orderID, result.Attempts, result.Err)
	return nil, d.unreachable(ctx, settings, op, orderID, result.Err)
}

func (d *Dispatcher) unreachable(ctx context.Context, settings domain.GatewaySettings, op domain.Operation, orderID int64, cause error) domain.Outcome {
	note := notePaymentUnreachable
	if op == domain.OperationVerification {
		note = noteVerificationUnreachable
		if err := d.orders.UpdateStatus(ctx, orderID, domain.StatusFailed); err != nil {
			log.Printf("Failed to mark order %d failed: %v", orderID, err)
		}
	}
	if err := d.orders.AddNote(ctx, orderID, note); err != nil {
		log.Printf("Failed to add note to order %d: %v", orderID, err)
	}

	reason := "provider unreachable"
	if cause != nil {
		reason = cause.Error()
	}
	return d.presenter.Failure(settings, orderID, domain.FailureTransport, reason, "")
}
