// Package irandargah implements the transports used to reach the IranDargah
// payment service: an HTTP-JSON client and a SOAP client, both with bounded retry.
package irandargah

import (
	"context"
	"errors"
	"time"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
)

// DefaultMaxAttempts is how many times a call is tried before giving up.
const DefaultMaxAttempts = 3

// errNoResponse is returned by an attempt that reached the provider but
// could not decode anything from the answer.
var errNoResponse = domain.NewServiceError(domain.ErrProviderFault,
	"provider returned no decodable response", "EMPTY_RESPONSE")

// RetryPolicy is a fixed-count retry with optional fixed backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy tries three times without waiting between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

// Do runs attempt until it yields a response, returns a non-recoverable
// error, or the attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, attempt func(ctx context.Context) (*domain.ProviderResponse, error)) domain.TransportResult {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result domain.TransportResult
	for result.Attempts < maxAttempts {
		resp, err := attempt(ctx)
		result.Attempts++
		result.Response = resp
		result.Err = err

		if resp != nil {
			result.Err = nil
			return result
		}
		if result.Err == nil {
			result.Err = errNoResponse
		}
		if !Recoverable(result.Err) || result.Attempts == maxAttempts {
			return result
		}

		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				result.Err = domain.NewServiceError(domain.ErrTransport, "retry interrupted", "CANCELLED")
				return result
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			result.Err = domain.NewServiceError(domain.ErrTransport, "retry interrupted", "CANCELLED")
			return result
		}
	}
	return result
}

// Recoverable reports whether another attempt may succeed. Hard transport
// errors are final; provider faults and empty answers are retried.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrTransport) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
