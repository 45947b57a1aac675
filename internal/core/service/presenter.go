package service

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
)

// URLs are the host pages the shopper is sent back to.
type URLs struct {
	// CallbackURL is the public address of the callback endpoint.
	CallbackURL string
	// CheckoutURL is the host cart/checkout entry point.
	CheckoutURL string
	// OrderReceivedURL is the host "thank you" page; {order_id} is replaced.
	OrderReceivedURL string
}

// Presenter turns terminal states into notices and redirect targets.
type Presenter struct {
	urls URLs
}

// NewPresenter creates a presenter for the given host URLs.
func NewPresenter(urls URLs) *Presenter {
	return &Presenter{urls: urls}
}

// Success builds the success outcome and its notice.
func (p *Presenter) Success(settings domain.GatewaySettings, orderID int64, refID string) domain.Success {
	return domain.Success{
		OrderID: orderID,
		RefID:   refID,
		URL:     p.successURL(orderID),
		Notice: &domain.Notice{
			Level: domain.NoticeSuccess,
			Text:  fillTemplate(settings.SuccessMessage, orderID, refID),
		},
	}
}

// Failure builds a failure outcome redirecting to checkout. detail is
// appended to the configured failure message when not empty.
func (p *Presenter) Failure(settings domain.GatewaySettings, orderID int64, code, reason, detail string) domain.Failure {
	text := fillTemplate(settings.FailedMessage, orderID, "")
	if detail != "" {
		text += "<br />" + detail
	}
	return domain.Failure{
		OrderID: orderID,
		Code:    code,
		Reason:  reason,
		URL:     p.urls.CheckoutURL,
		Notice:  &domain.Notice{Level: domain.NoticeError, Text: text},
	}
}

// InvalidOrder is presented when the callback does not reference a known order.
func (p *Presenter) InvalidOrder(reason string) domain.Failure {
	return domain.Failure{
		Code:   domain.FailureInvalidOrder,
		Reason: reason,
		URL:    p.urls.CheckoutURL,
		Notice: &domain.Notice{
			Level: domain.NoticeError,
			Text:  "There is no order number referenced.<br />Please try again or contact the site administrator in case of a problem.",
		},
	}
}

// CallbackURL returns the callback endpoint for an order.
func (p *Presenter) CallbackURL(orderID int64, signature string) string {
	return BuildCallbackURL(p.urls.CallbackURL, orderID, signature)
}

func (p *Presenter) successURL(orderID int64) string {
	target := strings.ReplaceAll(p.urls.OrderReceivedURL, "{order_id}", strconv.FormatInt(orderID, 10))
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("wc_status", "success")
	u.RawQuery = q.Encode()
	return u.String()
}

func fillTemplate(template string, orderID int64, refID string) string {
	return strings.NewReplacer(
		"{refid}", refID,
		"{order_id}", strconv.FormatInt(orderID, 10),
	).Replace(template)
}
