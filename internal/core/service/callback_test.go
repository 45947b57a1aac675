package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedCallback() domain.CallbackData {
	return domain.CallbackData{
		OrderRef:  "123",
		Code:      domain.CodeConfirmed,
		Authority: "AUTH1",
		Amount:    50000,
		OrderID:   123,
	}
}

func verifiedResponse() *domain.ProviderResponse {
	return &domain.ProviderResponse{
		Status:     100,
		Message:    "verified",
		RefID:      "R1",
		CardNumber: "603799******1234",
		Amount:     50000,
	}
}

func TestHandleCallback_Verified(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))
	h.rest.respond(verifiedResponse())

	result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVerified, result.State)
	success, ok := result.Outcome.(domain.Success)
	require.True(t, ok)
	assert.Equal(t, "R1", success.RefID)
	assert.Equal(t, "https://shop.example/checkout/order-received/123/?wc_status=success", success.URL)
	assert.Equal(t, "Paid order 123, ref R1", success.Notice.Text)

	order := h.orders.order(123)
	assert.Equal(t, domain.StatusCompleted, order.Status)
	assert.Equal(t, "R1", order.TransactionID)
	assert.Equal(t, "100", order.Meta(domain.MetaTransactionStatus))
	assert.Equal(t, "R1", order.Meta(domain.MetaTransactionRefID))
	assert.Equal(t, "123", order.Meta(domain.MetaTransactionOrderID))
	assert.Equal(t, "50000", order.Meta(domain.MetaTransactionAmount))
	assert.Equal(t, "50000", order.Meta(domain.MetaPaymentAmount))
	assert.Equal(t, "603799******1234", order.Meta(domain.MetaCardNumber))
	assert.Equal(t, []string{
		"Transaction payment status: 100<br />Transaction ref id: R1<br />Payer card number: 603799******1234",
	}, h.orders.notesFor(123))

	assert.Equal(t, []string{"cust-1"}, h.cart.emptied)
	assert.Equal(t, []domain.PaymentVerifiedEvent{{OrderID: 123, RefID: "R1"}}, h.events.events)

	require.Len(t, h.rest.calls, 1)
	call := h.rest.calls[0]
	assert.Equal(t, "https://dargaah.test/verification", call.Target)
	assert.Equal(t, &domain.VerificationRequest{
		MerchantID: "merchant-42",
		Authority:  "AUTH1",
		Amount:     50000,
		OrderID:    123,
	}, call.Payload)
}

func TestHandleCallback_ReplayAfterCompletion(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))
	h.rest.respond(verifiedResponse())

	_, err := h.svc.HandleCallback(context.Background(), confirmedCallback())
	require.NoError(t, err)
	mutations := h.orders.mutationCount()

	result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.NoError(t, err)
	assert.Equal(t, domain.StateAlreadyCompleted, result.State)
	assert.Equal(t, "R1", result.Outcome.(domain.Success).RefID)
	assert.Equal(t, 1, h.providerCalls())
	assert.Equal(t, mutations, h.orders.mutationCount())
	assert.Len(t, h.events.events, 1)
}

func TestHandleCallback_StoreFailureAllowsRetry(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))
	h.orders.failMeta = map[string]error{domain.MetaTransactionRefID: errors.New("disk full")}
	h.rest.respond(verifiedResponse())

	result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.Error(t, err)
	assert.Equal(t, domain.StateVerificationFailed, result.State)
	order := h.orders.order(123)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Empty(t, order.Meta(domain.MetaTransactionStatus))
	assert.Empty(t, h.cart.emptied)

	h.rest.respond(verifiedResponse())
	result, err = h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVerified, result.State)
	order = h.orders.order(123)
	assert.Equal(t, domain.StatusCompleted, order.Status)
	assert.Equal(t, "R1", order.TransactionID)
	assert.Equal(t, "100", order.Meta(domain.MetaTransactionStatus))
	assert.Equal(t, 2, h.providerCalls())
	assert.Equal(t, []string{"cust-1"}, h.cart.emptied)
	assert.Len(t, h.events.events, 1)
}

func TestHandleCallback_StatusMarkerWrittenLast(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))
	h.orders.failMeta = map[string]error{domain.MetaTransactionStatus: errors.New("disk full")}
	h.rest.respond(verifiedResponse())

	result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVerified, result.State)
	assert.Equal(t, domain.StatusCompleted, h.orders.order(123).Status)

	result, err = h.svc.HandleCallback(context.Background(), confirmedCallback())
	require.NoError(t, err)
	assert.Equal(t, domain.StateAlreadyCompleted, result.State)
	assert.Equal(t, 1, h.providerCalls())
}

func TestHandleCallback_CompletedOrderIgnoresFailureCode(t *testing.T) {
	order := testOrder(123, "50000")
	order.Status = domain.StatusCompleted
	h := newHarness(defaultSettings(), order)
	cb := confirmedCallback()
	cb.Code = 0

	result, err := h.svc.HandleCallback(context.Background(), cb)

	require.NoError(t, err)
	assert.Equal(t, domain.StateAlreadyCompleted, result.State)
	assert.Zero(t, h.orders.mutationCount())
	assert.Zero(t, h.providerCalls())
}

func TestHandleCallback_PaymentNotConfirmed(t *testing.T) {
	order := testOrder(123, "50000")
	order.Status = domain.StatusFailed
	h := newHarness(defaultSettings(), order)
	cb := confirmedCallback()
	cb.Code = -2
	cb.Message = "cancelled by user"

	result, err := h.svc.HandleCallback(context.Background(), cb)

	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.State)
	failure, ok := result.Outcome.(domain.Failure)
	require.True(t, ok)
	assert.Equal(t, domain.FailurePaymentFailed, failure.Code)
	assert.Equal(t, testURLs.CheckoutURL, failure.URL)
	assert.Equal(t, "Payment for order 123 failed<br />cancelled by user", failure.Notice.Text)

	assert.Equal(t, domain.StatusPending, h.orders.order(123).Status)
	assert.Equal(t, []string{"Payment for order 123 failed<br />cancelled by user"}, h.orders.notesFor(123))
	assert.Zero(t, h.providerCalls())
	assert.Empty(t, h.cart.emptied)
}

func TestHandleCallback_AlreadyVerifiedGuards(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*domain.Order)
	}{
		{"processing order", func(o *domain.Order) { o.Status = domain.StatusProcessing }},
		{"verified status meta", func(o *domain.Order) {
			o.Metadata = map[string]string{domain.MetaTransactionStatus: "100", domain.MetaTransactionRefID: "R0"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := testOrder(123, "50000")
			tt.setup(order)
			h := newHarness(defaultSettings(), order)

			result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

			require.NoError(t, err)
			assert.Equal(t, domain.StateAlreadyCompleted, result.State)
			assert.IsType(t, domain.Success{}, result.Outcome)
			assert.Zero(t, h.providerCalls())
			assert.Zero(t, h.orders.mutationCount())
		})
	}
}

func TestHandleCallback_VerificationRejected(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))
	h.rest.respond(&domain.ProviderResponse{Status: -31, Message: "amount mismatch"})

	result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVerificationFailed, result.State)
	failure, ok := result.Outcome.(domain.Failure)
	require.True(t, ok)
	assert.Equal(t, domain.FailureVerification, failure.Code)
	assert.Equal(t, "Payment for order 123 failed<br />amount mismatch", failure.Notice.Text)

	order := h.orders.order(123)
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Empty(t, order.Meta(domain.MetaTransactionStatus))
	assert.Equal(t, []string{"Payment for order 123 failed"}, h.orders.notesFor(123))
	assert.Empty(t, h.cart.emptied)
	assert.Empty(t, h.events.events)
}

func TestHandleCallback_VerificationUnreachable(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))

	result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVerificationFailed, result.State)
	assert.Equal(t, domain.FailureTransport, result.Outcome.(domain.Failure).Code)
	assert.Equal(t, domain.StatusFailed, h.orders.order(123).Status)
	assert.Equal(t, []string{noteVerificationUnreachable}, h.orders.notesFor(123))
}

func TestHandleCallback_SOAPVerification(t *testing.T) {
	settings := defaultSettings()
	settings.ConnectionMethod = domain.MethodSOAP
	h := newHarness(settings, testOrder(123, "50000"))
	h.soap.respond(verifiedResponse())

	result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())

	require.NoError(t, err)
	assert.Equal(t, domain.StateVerified, result.State)
	require.Len(t, h.soap.calls, 1)
	assert.Equal(t, domain.ProcedureVerification, h.soap.calls[0].Target)
	assert.Zero(t, h.rest.callCount())
}

func TestHandleCallback_InvalidOrderReference(t *testing.T) {
	for _, ref := range []string{"", "abc", "0", "-4"} {
		t.Run(ref, func(t *testing.T) {
			h := newHarness(defaultSettings(), testOrder(123, "50000"))
			cb := confirmedCallback()
			cb.OrderRef = ref

			result, err := h.svc.HandleCallback(context.Background(), cb)

			assert.ErrorIs(t, err, domain.ErrInvalidCallback)
			assert.Equal(t, domain.StateRejected, result.State)
			assert.Equal(t, domain.FailureInvalidOrder, result.Outcome.(domain.Failure).Code)
			assert.Zero(t, h.orders.mutationCount())
			assert.Zero(t, h.providerCalls())
		})
	}
}

func TestHandleCallback_UnknownOrder(t *testing.T) {
	h := newHarness(defaultSettings())
	cb := confirmedCallback()
	cb.OrderRef = "999"

	result, err := h.svc.HandleCallback(context.Background(), cb)

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Equal(t, domain.StateRejected, result.State)
	assert.Zero(t, h.providerCalls())
}

func TestHandleCallback_BadSignature(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))
	h.svc.signer = fixedSigner{sig: "good"}
	cb := confirmedCallback()
	cb.Signature = "forged"

	result, err := h.svc.HandleCallback(context.Background(), cb)

	assert.ErrorIs(t, err, domain.ErrInvalidCallback)
	assert.Equal(t, domain.StateRejected, result.State)
	assert.Zero(t, h.providerCalls())
}

func TestHandleCallback_ConcurrentCallbacksVerifyOnce(t *testing.T) {
	h := newHarness(defaultSettings(), testOrder(123, "50000"))
	h.rest.respond(verifiedResponse())

	var wg sync.WaitGroup
	states := make(chan domain.CallbackState, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.svc.HandleCallback(context.Background(), confirmedCallback())
			assert.NoError(t, err)
			states <- result.State
		}()
	}
	wg.Wait()
	close(states)

	verified := 0
	for s := range states {
		if s == domain.StateVerified {
			verified++
		}
	}
	assert.Equal(t, 1, verified)
	assert.Equal(t, 1, h.providerCalls())
	assert.Len(t, h.events.events, 1)
}
