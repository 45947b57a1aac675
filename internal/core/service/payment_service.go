// Package service implements the core business logic.
package service

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/core/ports"
	"github.com/irandargah/irandargah-payments/internal/platform/txlog"
)

// PaymentService orchestrates payment initiation and callback verification.
type PaymentService struct {
	settings   ports.SettingsProvider
	orders     ports.OrderRepository
	cart       ports.Cart
	events     ports.EventPublisher
	signer     ports.CallbackSigner
	dispatcher *Dispatcher
	presenter  *Presenter
	txlog      *txlog.Logger
	locks      *orderLocks
}

// NewPaymentService creates a new payment service.
func NewPaymentService(
	settings ports.SettingsProvider,
	orders ports.OrderRepository,
	cart ports.Cart,
	events ports.EventPublisher,
	signer ports.CallbackSigner,
	dispatcher *Dispatcher,
	presenter *Presenter,
	logger *txlog.Logger,
) *PaymentService {
	return &PaymentService{
		settings:   settings,
		orders:     orders,
		cart:       cart,
		events:     events,
		signer:     signer,
		dispatcher: dispatcher,
		presenter:  presenter,
		txlog:      logger,
		locks:      newOrderLocks(),
	}
}

// Settings returns the current gateway settings snapshot.
func (s *PaymentService) Settings(ctx context.Context) (domain.GatewaySettings, error) {
	return s.settings.Settings(ctx)
}

// StartPayment requests an authority for the order and returns a Redirect to
// the provider's hosted payment page, or a Failure back to checkout.
// Errors are returned only when the order or settings cannot be loaded.
func (s *PaymentService) StartPayment(ctx context.Context, orderID int64) (domain.Outcome, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, domain.NewServiceError(err, "failed to load gateway settings", "SETTINGS_ERROR")
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, domain.NewServiceError(err, fmt.Sprintf("order %d not loaded", orderID), "ORDER_NOT_FOUND")
	}

	if !settings.IsAvailable() {
		log.Printf("Payment attempt for order %d but the gateway is not available", orderID)
		return s.presenter.Failure(settings, orderID, domain.FailureGatewayUnavailable,
			domain.ErrGatewayUnavailable.Error(), ""), nil
	}

	if order.Status == domain.StatusCompleted {
		s.tx(settings).Printf("Order %d is already completed, not starting a new payment", orderID)
		return s.presenter.Success(settings, orderID, order.Meta(domain.MetaTransactionRefID)), nil
	}

	callbackURL := s.presenter.CallbackURL(orderID, s.signer.Sign(orderID))
	payload := BuildPaymentRequest(order, settings, callbackURL)
	s.tx(settings).Printf("Sending payment request for order %d: amount=%d method=%s", orderID, payload.Amount, settings.EffectiveMethod())

	resp, failure := s.dispatcher.Dispatch(ctx, settings, domain.OperationPayment, orderID, payload)
	if failure != nil {
		return failure, nil
	}

	s.addNote(ctx, orderID, resp.Message)

	if int64(resp.Status) != domain.CodePaymentAccepted {
		log.Printf("Payment request for order %d rejected with status %d", orderID, resp.Status)
		return s.presenter.Failure(settings, orderID, domain.FailurePaymentRejected,
			domain.ErrBusinessRejection.Error(), resp.Message), nil
	}

	if err := s.orders.SetMeta(ctx, orderID, domain.MetaAuthority, resp.Authority.String()); err != nil {
		log.Printf("Failed to record authority for order %d: %v", orderID, err)
	}

	log.Printf("Created payment authority %s for order %d, amount: %d", resp.Authority, orderID, payload.Amount)

	return domain.Redirect{URL: s.dispatcher.Endpoints(settings).StartPayURL + resp.Authority.String()}, nil
}

// HandleCallback runs the verification state machine for one provider
// callback. The returned error reports order-store failures; the result
// always carries an outcome to present.
func (s *PaymentService) HandleCallback(ctx context.Context, cb domain.CallbackData) (domain.CallbackResult, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return domain.CallbackResult{State: domain.StateRejected, Outcome: s.internalFailure(settings, 0)},
			domain.NewServiceError(err, "failed to load gateway settings", "SETTINGS_ERROR")
	}

	s.tx(settings).Printf("Callback received: wc_order=%s code=%d authority=%s amount=%d orderId=%d message=%q",
		cb.OrderRef, cb.Code, cb.Authority, cb.Amount, cb.OrderID, cb.Message)

	orderID, err := strconv.ParseInt(cb.OrderRef, 10, 64)
	if err != nil || orderID <= 0 {
		return s.reject("missing or malformed wc_order"), domain.NewServiceError(domain.ErrInvalidCallback,
			"callback without a valid order reference", "INVALID_ORDER_REF")
	}
	if !s.signer.Verify(orderID, cb.Signature) {
		return s.reject("bad callback signature"), domain.NewServiceError(domain.ErrInvalidCallback,
			fmt.Sprintf("callback signature mismatch for order %d", orderID), "INVALID_SIGNATURE")
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return s.reject("order not found"), domain.NewServiceError(err,
			fmt.Sprintf("order %d not loaded", orderID), "ORDER_NOT_FOUND")
	}
	s.tx(settings).Printf("Order details: customer id=%s order id=%d status=%s total=%s currency=%s",
		order.CustomerID, order.ID, order.Status, order.Total.String(), order.Currency)

	if order.Status == domain.StatusCompleted {
		s.tx(settings).Printf("Order %d has already been processed", orderID)
		return s.replay(settings, order), nil
	}

	if cb.Code != domain.CodeConfirmed {
		return s.paymentFailed(ctx, settings, order, cb)
	}

	result, err := s.verify(ctx, settings, order, cb)
	s.tx(settings).Printf("End processing callback for order %d: %s", orderID, result.State)
	return result, err
}

// paymentFailed handles callbacks whose code is not confirmed.
func (s *PaymentService) paymentFailed(ctx context.Context, settings domain.GatewaySettings, order *domain.Order, cb domain.CallbackData) (domain.CallbackResult, error) {
	s.addNote(ctx, order.ID, fillTemplate(settings.FailedMessage, order.ID, "")+"<br />"+cb.Message)

	result := domain.CallbackResult{
		State: domain.StateFailed,
		Outcome: s.presenter.Failure(settings, order.ID, domain.FailurePaymentFailed,
			fmt.Sprintf("callback code %d", cb.Code), cb.Message),
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.StatusPending); err != nil {
		return result, domain.NewServiceError(err, fmt.Sprintf("failed to set order %d pending", order.ID), "ORDER_UPDATE_ERROR")
	}
	return result, nil
}

// verify performs the idempotency guards and the verification call.
func (s *PaymentService) verify(ctx context.Context, settings domain.GatewaySettings, order *domain.Order, cb domain.CallbackData) (domain.CallbackResult, error) {
	if order.Status == domain.StatusProcessing ||
		order.Meta(domain.MetaTransactionStatus) == strconv.Itoa(domain.CodeConfirmed) {
		s.tx(settings).Printf("Order %d already verified, skipping verification call", order.ID)
		return s.replay(settings, order), nil
	}

	payload := BuildVerificationRequest(cb, settings)
	resp, failure := s.dispatcher.Dispatch(ctx, settings, domain.OperationVerification, order.ID, payload)
	if failure != nil {
		return domain.CallbackResult{State: domain.StateVerificationFailed, Outcome: failure}, nil
	}

	if int64(resp.Status) != domain.CodeConfirmed {
		s.addNote(ctx, order.ID, fillTemplate(settings.FailedMessage, order.ID, ""))
		result := domain.CallbackResult{
			State: domain.StateVerificationFailed,
			Outcome: s.presenter.Failure(settings, order.ID, domain.FailureVerification,
				fmt.Sprintf("verification status %d", resp.Status), resp.Message),
		}
		if err := s.orders.UpdateStatus(ctx, order.ID, domain.StatusFailed); err != nil {
			return result, domain.NewServiceError(err, fmt.Sprintf("failed to mark order %d failed", order.ID), "ORDER_UPDATE_ERROR")
		}
		return result, nil
	}

	if err := s.complete(ctx, order, cb, resp); err != nil {
		return domain.CallbackResult{
			State:   domain.StateVerificationFailed,
			Outcome: s.internalFailure(settings, order.ID),
		}, err
	}

	log.Printf("Callback processed: order %d verified, ref id %s", order.ID, resp.RefID)

	return domain.CallbackResult{
		State:   domain.StateVerified,
		Outcome: s.presenter.Success(settings, order.ID, resp.RefID.String()),
	}, nil
}

// complete records a confirmed verification on the order.
func (s *PaymentService) complete(ctx context.Context, order *domain.Order, cb domain.CallbackData, resp *domain.ProviderResponse) error {
	refID := resp.RefID.String()
	s.addNote(ctx, order.ID, fmt.Sprintf("Transaction payment status: %d<br />Transaction ref id: %s<br />Payer card number: %s",
		resp.Status, refID, resp.CardNumber))

	meta := []struct{ key, value string }{
		{domain.MetaPaymentAmount, strconv.FormatInt(cb.Amount, 10)},
		{domain.MetaTransactionOrderID, strconv.FormatInt(order.ID, 10)},
		{domain.MetaTransactionRefID, refID},
		{domain.MetaTransactionAmount, strconv.FormatInt(int64(resp.Amount), 10)},
		{domain.MetaCardNumber, resp.CardNumber},
	}
	for _, m := range meta {
		if err := s.orders.SetMeta(ctx, order.ID, m.key, m.value); err != nil {
			return domain.NewServiceError(err, fmt.Sprintf("failed to set %s on order %d", m.key, order.ID), "ORDER_UPDATE_ERROR")
		}
	}

	if err := s.orders.MarkPaid(ctx, order.ID, refID); err != nil {
		return domain.NewServiceError(err, fmt.Sprintf("failed to mark order %d paid", order.ID), "ORDER_UPDATE_ERROR")
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.StatusCompleted); err != nil {
		return domain.NewServiceError(err, fmt.Sprintf("failed to complete order %d", order.ID), "ORDER_UPDATE_ERROR")
	}

	// The status marker short-circuits later callbacks, so it is written
	// only once the order is completed.
	status := strconv.FormatInt(int64(resp.Status), 10)
	if err := s.orders.SetMeta(ctx, order.ID, domain.MetaTransactionStatus, status); err != nil {
		log.Printf("Failed to set %s on order %d: %v", domain.MetaTransactionStatus, order.ID, err)
	}

	if err := s.cart.Empty(ctx, order.CustomerID); err != nil {
		log.Printf("Failed to empty cart for customer %s (order %d): %v", order.CustomerID, order.ID, err)
	}

	event := domain.PaymentVerifiedEvent{OrderID: order.ID, RefID: refID}
	if err := s.events.PublishPaymentVerified(ctx, event); err != nil {
		log.Printf("Failed to publish payment verified event for order %d: %v", order.ID, err)
	}
	return nil
}

// tx returns the transaction log gated by the settings' logging flag.
func (s *PaymentService) tx(settings domain.GatewaySettings) *txlog.Logger {
	return s.txlog.When(settings.LogsTransactions())
}

// replay presents an already processed order as a success without mutating it.
func (s *PaymentService) replay(settings domain.GatewaySettings, order *domain.Order) domain.CallbackResult {
	return domain.CallbackResult{
		State:   domain.StateAlreadyCompleted,
		Outcome: s.presenter.Success(settings, order.ID, order.Meta(domain.MetaTransactionRefID)),
	}
}

func (s *PaymentService) reject(reason string) domain.CallbackResult {
	log.Printf("Rejected callback: %s", reason)
	return domain.CallbackResult{State: domain.StateRejected, Outcome: s.presenter.InvalidOrder(reason)}
}

func (s *PaymentService) internalFailure(settings domain.GatewaySettings, orderID int64) domain.Failure {
	return s.presenter.Failure(settings, orderID, domain.FailureInternal, "order store error", "")
}

func (s *PaymentService) addNote(ctx context.Context, orderID int64, note string) {
	if note == "" {
		return
	}
	if err := s.orders.AddNote(ctx, orderID, note); err != nil {
		log.Printf("Failed to add note to order %d: %v", orderID, err)
	}
}
