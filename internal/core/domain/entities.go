// Package domain contains the core business entities for the payment service.
// This is the innermost layer - no infrastructure dependencies.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the host order status this gateway reads and writes.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
)

// Order metadata keys written by the gateway.
const (
	MetaTransactionStatus  = "irandargah_transaction_status"
	MetaTransactionOrderID = "irandargah_transaction_order_id"
	MetaTransactionRefID   = "irandargah_transaction_refid"
	MetaTransactionAmount  = "irandargah_transaction_amount"
	MetaCardNumber         = "irandargah_payment_card_no"
	MetaPaymentAmount      = "irandargah_payment_amount"
	MetaAuthority          = "irandargah_authority"
)

// Provider status codes.
const (
	// CodeConfirmed marks a confirmed callback or verification.
	CodeConfirmed = 100
	// CodePaymentAccepted is returned when a payment request was accepted
	// and an authority was issued.
	CodePaymentAccepted = 200
)

// SandboxMerchantID is the merchant id the provider expects in sandbox mode.
const SandboxMerchantID = "TEST"

// Order is the subset of a host order the gateway works with.
// The host owns the record; the gateway only mutates status, notes and metadata.
type Order struct {
	ID               int64             `json:"id"`
	CustomerID       string            `json:"customer_id"`
	Total            decimal.Decimal   `json:"total"`
	Currency         string            `json:"currency"`
	BillingPhone     string            `json:"billing_phone"`
	BillingFirstName string            `json:"billing_first_name"`
	BillingLastName  string            `json:"billing_last_name"`
	Status           OrderStatus       `json:"status"`
	TransactionID    string            `json:"transaction_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value or "" when it is not set.
func (o *Order) Meta(key string) string {
	if o == nil || o.Metadata == nil {
		return ""
	}
	return o.Metadata[key]
}

// ConnectionMethod selects how requests reach the provider.
type ConnectionMethod string

const (
	MethodRESTPost ConnectionMethod = "REST_POST"
	MethodRESTGet  ConnectionMethod = "REST_GET"
	MethodSOAP     ConnectionMethod = "SOAP"
	MethodSandbox  ConnectionMethod = "SANDBOX"
)

// UsesHTTPJSON reports whether the method is served by the HTTP-JSON transport.
func (m ConnectionMethod) UsesHTTPJSON() bool {
	return m == MethodSandbox || strings.HasPrefix(string(m), "REST")
}

// RequestsGET reports whether the method asks for GET behavior.
func (m ConnectionMethod) RequestsGET() bool {
	return strings.Contains(string(m), "GET")
}

// ParseConnectionMethod validates a configured connection method.
func ParseConnectionMethod(s string) (ConnectionMethod, error) {
	switch m := ConnectionMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodRESTPost, MethodRESTGet, MethodSOAP:
		return m, nil
	case "":
		return MethodRESTPost, nil
	default:
		return "", fmt.Errorf("unknown connection method %q", s)
	}
}

// Currency is the store's active currency.
type Currency string

const (
	// CurrencyIRR is the Iranian rial, the unit the provider expects.
	CurrencyIRR Currency = "IRR"
	// CurrencyIRT is the toman; one toman is ten rials.
	CurrencyIRT Currency = "IRT"
)

// Operation is one of the two provider calls.
type Operation string

const (
	OperationPayment      Operation = "payment"
	OperationVerification Operation = "verification"
)

// GatewaySettings is a read-only snapshot of the gateway options for one
// payment or verification cycle.
type GatewaySettings struct {
	Title               string
	Description         string
	MerchantID          string
	Sandbox             bool
	ConnectionMethod    ConnectionMethod
	Currency            Currency
	EnableLogging       bool
	SuccessMessage      string
	FailedMessage       string
	DescriptionTemplate string
	// UseGETVerb makes REST_GET issue real GET requests instead of only
	// tagging the payload with action=GET.
	UseGETVerb bool
}

// LogsTransactions reports whether gateway transactions are written to the
// transaction log. Sandbox mode always logs.
func (s GatewaySettings) LogsTransactions() bool {
	return s.EnableLogging || s.Sandbox
}

// EffectiveMethod returns SANDBOX when sandbox mode is on, else the configured method.
func (s GatewaySettings) EffectiveMethod() ConnectionMethod {
	if s.Sandbox {
		return MethodSandbox
	}
	if s.ConnectionMethod == "" {
		return MethodRESTPost
	}
	return s.ConnectionMethod
}

// CallbackFromQuery reports whether callback fields arrive in the query string.
func (s GatewaySettings) CallbackFromQuery() bool {
	return s.ConnectionMethod == MethodRESTGet && !s.Sandbox
}

// IsAvailable reports whether the gateway can take payments with these settings.
func (s GatewaySettings) IsAvailable() bool {
	if s.Currency != CurrencyIRR && s.Currency != CurrencyIRT {
		return false
	}
	return s.Sandbox || s.MerchantID != ""
}

// ProviderAmount converts an order total into the amount the provider expects:
// the total truncated to an integer, in rials.
func ProviderAmount(total decimal.Decimal, currency Currency) int64 {
	amount := total.IntPart()
	if currency == CurrencyIRT {
		amount *= 10
	}
	return amount
}

// Payload is an outbound request body that can carry an action marker.
type Payload interface {
	TagAction(action string)
}

// PaymentRequest is the payment-initiation payload.
type PaymentRequest struct {
	MerchantID  string `json:"merchantID" xml:"merchantID"`
	CallbackURL string `json:"callbackURL" xml:"callbackURL"`
	Mobile      string `json:"mobile" xml:"mobile"`
	OrderID     int64  `json:"orderId" xml:"orderId"`
	Amount      int64  `json:"amount" xml:"amount"`
	Description string `json:"description" xml:"description"`
	Action      string `json:"action,omitempty" xml:"action,omitempty"`
}

// TagAction implements Payload.
func (r *PaymentRequest) TagAction(action string) { r.Action = action }

// VerificationRequest is the verification payload.
type VerificationRequest struct {
	MerchantID string `json:"merchantID" xml:"merchantID"`
	Authority  string `json:"authority" xml:"authority"`
	Amount     int64  `json:"amount" xml:"amount"`
	OrderID    int64  `json:"orderId" xml:"orderId"`
	Action     string `json:"action,omitempty" xml:"action,omitempty"`
}

// TagAction implements Payload.
func (r *VerificationRequest) TagAction(action string) { r.Action = action }

// FlexInt is an integer the provider may send either as a number or a string.
type FlexInt int64

// UnmarshalJSON accepts 100, "100", 1.0e2 and null.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	return f.UnmarshalText([]byte(strings.Trim(string(b), `"`)))
}

// UnmarshalText is used for XML character data and quoted JSON values.
func (f *FlexInt) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = FlexInt(v)
	return nil
}

// FlexString is a reference the provider may send either as a string or a
// number. Numbers keep their literal digits.
type FlexString string

// UnmarshalJSON accepts "R1", 987654321 and null.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid reference %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

// UnmarshalText is used for XML character data.
func (f *FlexString) UnmarshalText(b []byte) error {
	*f = FlexString(strings.TrimSpace(string(b)))
	return nil
}

func (f FlexString) String() string { return string(f) }

// ProviderResponse is a decoded provider answer. A nil *ProviderResponse
// means no response was obtained, which is distinct from a non-confirming status.
type ProviderResponse struct {
	Status     FlexInt    `json:"status" xml:"status"`
	Message    string     `json:"message" xml:"message"`
	Authority  FlexString `json:"authority,omitempty" xml:"authority"`
	RefID      FlexString `json:"refId,omitempty" xml:"refId"`
	CardNumber string     `json:"cardNumber,omitempty" xml:"cardNumber"`
	Amount     FlexInt    `json:"amount,omitempty" xml:"amount"`
}

// OutboundCall is one request handed to a transport. Target is a URL for the
// HTTP transport and a procedure name for the SOAP transport.
type OutboundCall struct {
	Target  string
	Payload any
	UseGET  bool
	// Logging enables transaction log entries for this call.
	Logging bool
}

// TransportResult is the outcome of a transport call after retries.
// Response is nil when the call produced nothing usable; Err then says why.
type TransportResult struct {
	Response *ProviderResponse
	Err      error
	Attempts int
}

// Absent reports whether no response was obtained.
func (r TransportResult) Absent() bool {
	return r.Response == nil
}

// CallbackData is the asynchronous callback sent by the provider.
type CallbackData struct {
	OrderRef  string // wc_order query parameter
	Signature string // wc_sig query parameter
	Code      int64
	Authority string
	Amount    int64
	OrderID   int64
	Message   string
}

// PaymentVerifiedEvent is published once an order has been verified and completed.
type PaymentVerifiedEvent struct {
	OrderID int64
	RefID   string
}
