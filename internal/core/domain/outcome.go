package domain

// NoticeLevel is the severity of a shopper-facing notice.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a message the host shows to the shopper after a redirect.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Outcome is the terminal result of a payment or callback flow.
// It is one of Success, Redirect or Failure; the HTTP layer performs the
// actual redirect.
type Outcome interface {
	// Location is where the shopper should be sent.
	Location() string
	isOutcome()
}

// Success means the order is paid.
type Success struct {
	OrderID int64
	RefID   string
	URL     string
	Notice  *Notice
}

// Redirect sends the shopper somewhere without a final verdict,
// e.g. to the provider's hosted payment page.
type Redirect struct {
	URL string
}

// Failure means the flow ended without payment. Reason is for logs only.
type Failure struct {
	OrderID int64
	Code    string
	Reason  string
	URL     string
	Notice  *Notice
}

func (o Success) Location() string  { return o.URL }
func (o Redirect) Location() string { return o.URL }
func (o Failure) Location() string  { return o.URL }

func (Success) isOutcome()  {}
func (Redirect) isOutcome() {}
func (Failure) isOutcome()  {}

// Failure codes.
const (
	FailureGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	FailureTransport          = "TRANSPORT_ERROR"
	FailurePaymentRejected    = "PAYMENT_REJECTED"
	FailureInvalidOrder       = "INVALID_ORDER"
	FailurePaymentFailed      = "PAYMENT_FAILED"
	FailureVerification       = "VERIFICATION_FAILED"
	FailureInternal           = "INTERNAL_ERROR"
)

// CallbackState names the states of the callback state machine.
type CallbackState string

const (
	StateReceived             CallbackState = "received"
	StateRejected             CallbackState = "rejected"
	StateAlreadyCompleted     CallbackState = "already_completed"
	StateFailed               CallbackState = "failed"
	StateAwaitingVerification CallbackState = "awaiting_verification"
	StateVerified             CallbackState = "verified"
	StateVerificationFailed   CallbackState = "verification_failed"
)

// CallbackResult is the terminal state reached by a callback and the
// outcome to present.
type CallbackResult struct {
	State   CallbackState
	Outcome Outcome
}
