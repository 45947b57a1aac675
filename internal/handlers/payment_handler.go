// Package handlers contains the HTTP handlers for the payment service.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/core/service"
)

// AckMode selects how the callback endpoint answers the provider.
type AckMode string

const (
	// AckRedirect answers 302 to the outcome URL with an empty body.
	AckRedirect AckMode = "redirect"
	// AckStatus answers 200 with an empty body.
	AckStatus AckMode = "status"
)

// ParseAckMode returns AckRedirect for anything but "status".
func ParseAckMode(s string) AckMode {
	if AckMode(strings.ToLower(strings.TrimSpace(s))) == AckStatus {
		return AckStatus
	}
	return AckRedirect
}

// NoticeCookie carries the shopper notice to the host pages.
const NoticeCookie = "irandargah_notice"

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	service *service.PaymentService
	ack     AckMode
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(svc *service.PaymentService, ack AckMode) *PaymentHandler {
	return &PaymentHandler{service: svc, ack: ack}
}

// CheckoutResponse represents the response from the checkout endpoint.
type CheckoutResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirect_url"`
	AlreadyPaid bool   `json:"already_paid,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// callbackForm is the provider's callback payload.
type callbackForm struct {
	Code      string `form:"code" json:"code"`
	Authority string `form:"authority" json:"authority"`
	Amount    string `form:"amount" json:"amount"`
	OrderID   string `form:"orderId" json:"orderId"`
	Message   string `form:"message" json:"message"`
}

// Callback handles GET|POST /irandargah/callback?wc_order=<id>
// Receives the provider's payment callback and verifies the transaction.
func (h *PaymentHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	settings, err := h.service.Settings(ctx)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	form, err := bindCallback(c, settings.CallbackFromQuery())
	if err != nil {
		// Still processed: missing fields read as zero values.
		log.Printf("Callback parse error: %v", err)
	}

	result, err := h.service.HandleCallback(ctx, domain.CallbackData{
		OrderRef:  c.Query("wc_order"),
		Signature: c.Query("wc_sig"),
		Code:      parseInt(form.Code),
		Authority: form.Authority,
		Amount:    parseInt(form.Amount),
		OrderID:   parseInt(form.OrderID),
		Message:   form.Message,
	})
	if err != nil {
		log.Printf("Callback processing error (state %s): %v", result.State, err)
	}

	if h.ack == AckStatus {
		setNotice(c, result.Outcome)
		c.Status(http.StatusOK)
		return
	}
	renderRedirect(c, result.Outcome)
}

// bindCallback reads the callback fields from the query string or the body.
func bindCallback(c *gin.Context, fromQuery bool) (callbackForm, error) {
	var form callbackForm
	if fromQuery || c.Request.Method == http.MethodGet {
		return form, c.ShouldBindQuery(&form)
	}
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var raw map[string]any
		if err := c.ShouldBindJSON(&raw); err != nil {
			return form, err
		}
		form.Code = jsonField(raw, "code")
		form.Authority = jsonField(raw, "authority")
		form.Amount = jsonField(raw, "amount")
		form.OrderID = jsonField(raw, "orderId")
		form.Message = jsonField(raw, "message")
		return form, nil
	}
	form.Code = c.PostForm("code")
	form.Authority = c.PostForm("authority")
	form.Amount = c.PostForm("amount")
	form.OrderID = c.PostForm("orderId")
	form.Message = c.PostForm("message")
	return form, nil
}

// jsonField renders a JSON value as the form string it would have been.
func jsonField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// parseInt reads an integer field, truncating decimals. Invalid input is 0.
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// Pay handles GET /pay/:order_id
// Starts the payment and sends the shopper to the provider's payment page.
func (h *PaymentHandler) Pay(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	outcome, err := h.service.StartPayment(c.Request.Context(), orderID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	renderRedirect(c, outcome)
}

// Checkout handles POST /api/v1/payments/:order_id/checkout
// Starts the payment and returns the provider page URL.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	outcome, err := h.service.StartPayment(c.Request.Context(), orderID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	switch o := outcome.(type) {
	case domain.Redirect:
		c.JSON(http.StatusOK, CheckoutResponse{Success: true, RedirectURL: o.URL})
	case domain.Success:
		c.JSON(http.StatusOK, CheckoutResponse{Success: true, RedirectURL: o.URL, AlreadyPaid: true})
	case domain.Failure:
		c.JSON(failureStatus(o.Code), ErrorResponse{
			Success:     false,
			Error:       o.Reason,
			Code:        o.Code,
			RedirectURL: o.URL,
		})
	}
}

// Health handles GET /health
func (h *PaymentHandler) Health(c *gin.Context) {
	available := false
	if settings, err := h.service.Settings(c.Request.Context()); err == nil {
		available = settings.IsAvailable()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"service":           "irandargah-payments",
		"gateway_available": available,
	})
}

func orderIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "order_id must be a positive integer",
			Code:    "VALIDATION_ERROR",
		})
		return 0, false
	}
	return id, true
}

// renderRedirect answers 302 to the outcome's location with an empty body.
func renderRedirect(c *gin.Context, outcome domain.Outcome) {
	setNotice(c, outcome)
	c.Header("Location", outcome.Location())
	c.Status(http.StatusFound)
}

type noticePayload struct {
	Level domain.NoticeLevel `json:"level"`
	Text  string             `json:"text"`
}

// setNotice stores the outcome's notice in a short-lived cookie.
func setNotice(c *gin.Context, outcome domain.Outcome) {
	var notice *domain.Notice
	switch o := outcome.(type) {
	case domain.Success:
		notice = o.Notice
	case domain.Failure:
		notice = o.Notice
	}
	if notice == nil {
		return
	}
	b, err := json.Marshal(noticePayload{Level: notice.Level, Text: notice.Text})
	if err != nil {
		return
	}
	c.SetCookie(NoticeCookie, base64.RawURLEncoding.EncodeToString(b), 300, "/", "", false, false)
}

// failureStatus maps a failure outcome code to an HTTP status.
func failureStatus(code string) int {
	switch code {
	case domain.FailureGatewayUnavailable:
		return http.StatusForbidden
	case domain.FailureTransport:
		return http.StatusBadGateway
	case domain.FailureInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) {
		statusCode := http.StatusInternalServerError

		switch {
		case errors.Is(svcErr.Err, domain.ErrOrderNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(svcErr.Err, domain.ErrGatewayUnavailable):
			statusCode = http.StatusForbidden
		case errors.Is(svcErr.Err, domain.ErrInvalidCallback):
			statusCode = http.StatusBadRequest
		case errors.Is(svcErr.Err, domain.ErrTransport), errors.Is(svcErr.Err, domain.ErrProviderFault):
			statusCode = http.StatusBadGateway
		}

		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   svcErr.Message,
			Code:    svcErr.Code,
		})
		return
	}

	log.Printf("Unhandled error: %v", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error:   "Internal server error",
		Code:    "INTERNAL_ERROR",
	})
}
