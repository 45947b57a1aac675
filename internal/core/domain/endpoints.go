package domain

import "strings"

// DefaultProviderBaseURL is the provider's public host.
const DefaultProviderBaseURL = "https://dargaah.com"

// SOAP procedure names.
const (
	ProcedurePayment      = "IRDPayment"
	ProcedureVerification = "IRDVerification"
)

// Endpoints holds the provider URLs for one environment.
type Endpoints struct {
	PaymentURL      string
	VerificationURL string
	StartPayURL     string
}

// EndpointsFor returns the production or sandbox URLs under baseURL.
func EndpointsFor(baseURL string, sandbox bool) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultProviderBaseURL
	}
	if sandbox {
		base += "/sandbox"
	}
	return Endpoints{
		PaymentURL:      base + "/payment",
		VerificationURL: base + "/verification",
		StartPayURL:     base + "/ird/startpay/",
	}
}

// URL returns the HTTP target for an operation.
func (e Endpoints) URL(op Operation) string {
	if op == OperationPayment {
		return e.PaymentURL
	}
	return e.VerificationURL
}

// Procedure returns the SOAP procedure for an operation.
func Procedure(op Operation) string {
	if op == OperationPayment {
		return ProcedurePayment
	}
	return ProcedureVerification
}
