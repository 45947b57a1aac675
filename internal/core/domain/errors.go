// Package domain contains the core business entities for the payment service.
package domain

import "errors"

// Domain errors - represent business rule violations.
var (
	// ErrTransport is returned when the provider could not be reached.
	ErrTransport = errors.New("transport error")

	// ErrProviderFault is returned when the provider answered with a
	// service-level fault or an undecodable body.
	ErrProviderFault = errors.New("provider fault")

	// ErrBusinessRejection is returned when the provider answered with a
	// non-confirming status.
	ErrBusinessRejection = errors.New("payment rejected by provider")

	// ErrDuplicateCallback marks a callback for an order that was already
	// processed. It is not a failure.
	ErrDuplicateCallback = errors.New("duplicate callback")

	// ErrOrderNotFound is returned when the host has no such order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidCallback is returned for callbacks without a usable order
	// reference or with a bad signature.
	ErrInvalidCallback = errors.New("invalid callback")

	// ErrGatewayUnavailable is returned when the gateway settings do not
	// allow taking payments.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrHostNotificationFailed is returned when the host did not accept a
	// payment notification.
	ErrHostNotificationFailed = errors.New("host notification failed")
)

// ServiceError wraps errors with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}
