package service

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
)

// DefaultDescriptionTemplate is the payment description shown by the provider.
const DefaultDescriptionTemplate = "سفارش شماره: {order_id} خریدار: {first_name} {last_name}"

// BuildPaymentRequest maps an order and the gateway settings into the
// payment-initiation payload.
func BuildPaymentRequest(order *domain.Order, settings domain.GatewaySettings, callbackURL string) *domain.PaymentRequest {
	merchantID := settings.MerchantID
	if settings.Sandbox {
		merchantID = domain.SandboxMerchantID
	}

	return &domain.PaymentRequest{
		MerchantID:  merchantID,
		CallbackURL: callbackURL,
		Mobile:      order.BillingPhone,
		OrderID:     order.ID,
		Amount:      domain.ProviderAmount(order.Total, settings.Currency),
		Description: describeOrder(order, settings.DescriptionTemplate),
	}
}

// BuildVerificationRequest copies the callback's authority, amount and order
// id. The merchant id always comes from the settings, even in sandbox mode.
func BuildVerificationRequest(cb domain.CallbackData, settings domain.GatewaySettings) *domain.VerificationRequest {
	return &domain.VerificationRequest{
		MerchantID: settings.MerchantID,
		Authority:  cb.Authority,
		Amount:     cb.Amount,
		OrderID:    cb.OrderID,
	}
}

// BuildCallbackURL adds the order reference (and its signature, if any) to
// the public callback URL.
func BuildCallbackURL(base string, orderID int64, signature string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("wc_order", strconv.FormatInt(orderID, 10))
	if signature != "" {
		q.Set("wc_sig", signature)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func describeOrder(order *domain.Order, template string) string {
	if template == "" {
		template = DefaultDescriptionTemplate
	}
	return strings.NewReplacer(
		"{order_id}", strconv.FormatInt(order.ID, 10),
		"{first_name}", order.BillingFirstName,
		"{last_name}", order.BillingLastName,
	).Replace(template)
}
