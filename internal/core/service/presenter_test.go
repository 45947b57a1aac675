package service

import (
	"testing"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenter_Success(t *testing.T) {
	p := NewPresenter(testURLs)

	out := p.Success(defaultSettings(), 123, "R1")

	assert.Equal(t, "https://shop.example/checkout/order-received/123/?wc_status=success", out.Location())
	require.NotNil(t, out.Notice)
	assert.Equal(t, domain.NoticeSuccess, out.Notice.Level)
	assert.Equal(t, "Paid order 123, ref R1", out.Notice.Text)
}

func TestPresenter_FailureAppendsDetail(t *testing.T) {
	p := NewPresenter(testURLs)

	out := p.Failure(defaultSettings(), 8, domain.FailurePaymentRejected, "rejected", "invalid merchant")

	assert.Equal(t, testURLs.CheckoutURL, out.Location())
	assert.Equal(t, domain.FailurePaymentRejected, out.Code)
	require.NotNil(t, out.Notice)
	assert.Equal(t, domain.NoticeError, out.Notice.Level)
	assert.Equal(t, "Payment for order 8 failed<br />invalid merchant", out.Notice.Text)
}

func TestPresenter_InvalidOrder(t *testing.T) {
	out := NewPresenter(testURLs).InvalidOrder("missing")

	assert.Equal(t, domain.FailureInvalidOrder, out.Code)
	assert.Equal(t, testURLs.CheckoutURL, out.URL)
	assert.Contains(t, out.Notice.Text, "There is no order number referenced.")
}
