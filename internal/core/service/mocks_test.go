package service

import (
	"context"
	"sync"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/irandargah/irandargah-payments/internal/platform/txlog"
	"github.com/shopspring/decimal"
)

// fakeOrders is an in-memory order store that counts mutations.
type fakeOrders struct {
	mu        sync.Mutex
	orders    map[int64]*domain.Order
	notes     map[int64][]string
	mutations int
	failWrite error
	// failMeta fails the next SetMeta of each listed key once.
	failMeta map[string]error
}

func newFakeOrders(orders ...*domain.Order) *fakeOrders {
	f := &fakeOrders{orders: map[int64]*domain.Order{}, notes: map[int64][]string{}}
	for _, o := range orders {
		if o.Metadata == nil {
			o.Metadata = map[string]string{}
		}
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	cp.Metadata = map[string]string{}
	for k, v := range o.Metadata {
		cp.Metadata[k] = v
	}
	return &cp, nil
}

func (f *fakeOrders) write(id int64, fn func(o *domain.Order)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite != nil {
		return f.failWrite
	}
	o, ok := f.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	f.mutations++
	fn(o)
	return nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	return f.write(id, func(o *domain.Order) { o.Status = status })
}

func (f *fakeOrders) AddNote(_ context.Context, id int64, note string) error {
	return f.write(id, func(*domain.Order) { f.notes[id] = append(f.notes[id], note) })
}

func (f *fakeOrders) SetMeta(_ context.Context, id int64, key, value string) error {
	f.mu.Lock()
	if err, ok := f.failMeta[key]; ok {
		delete(f.failMeta, key)
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.write(id, func(o *domain.Order) { o.Metadata[key] = value })
}

func (f *fakeOrders) MarkPaid(_ context.Context, id int64, transactionID string) error {
	return f.write(id, func(o *domain.Order) { o.TransactionID = transactionID })
}

func (f *fakeOrders) order(id int64) *domain.Order {
	o, _ := f.GetOrder(context.Background(), id)
	return o
}

func (f *fakeOrders) notesFor(id int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notes[id]...)
}

func (f *fakeOrders) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

type fakeCart struct {
	mu      sync.Mutex
	emptied []string
}

func (c *fakeCart) Empty(_ context.Context, customerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emptied = append(c.emptied, customerID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.PaymentVerifiedEvent
}

func (p *fakePublisher) PublishPaymentVerified(_ context.Context, e domain.PaymentVerifiedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// scriptedTransport returns queued results and records every call.
type scriptedTransport struct {
	mu      sync.Mutex
	results []domain.TransportResult
	calls   []domain.OutboundCall
}

func (s *scriptedTransport) Send(_ context.Context, call domain.OutboundCall) domain.TransportResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if len(s.results) == 0 {
		return domain.TransportResult{Attempts: 3, Err: domain.ErrProviderFault}
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r
}

func (s *scriptedTransport) respond(resp *domain.ProviderResponse) *scriptedTransport {
	s.results = append(s.results, domain.TransportResult{Response: resp, Attempts: 1})
	return s
}

func (s *scriptedTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type staticSettings domain.GatewaySettings

func (s staticSettings) Settings(context.Context) (domain.GatewaySettings, error) {
	return domain.GatewaySettings(s), nil
}

type fixedSigner struct{ sig string }

func (s fixedSigner) Sign(int64) string { return s.sig }

func (s fixedSigner) Verify(_ int64, sig string) bool { return s.sig == "" || sig == s.sig }

var testURLs = URLs{
	CallbackURL:      "https://shop.example/irandargah/callback",
	CheckoutURL:      "https://shop.example/checkout/",
	OrderReceivedURL: "https://shop.example/checkout/order-received/{order_id}/",
}

func defaultSettings() domain.GatewaySettings {
	return domain.GatewaySettings{
		MerchantID:       "merchant-42",
		ConnectionMethod: domain.MethodRESTPost,
		Currency:         domain.CurrencyIRR,
		SuccessMessage:   "Paid order {order_id}, ref {refid}",
		FailedMessage:    "Payment for order {order_id} failed",
	}
}

func testOrder(id int64, total string) *domain.Order {
	return &domain.Order{
		ID:               id,
		CustomerID:       "cust-1",
		Total:            decimal.RequireFromString(total),
		Currency:         "IRR",
		BillingPhone:     "09120000000",
		BillingFirstName: "Sara",
		BillingLastName:  "Ahmadi",
		Status:           domain.StatusPending,
	}
}

type harness struct {
	svc    *PaymentService
	orders *fakeOrders
	cart   *fakeCart
	events *fakePublisher
	rest   *scriptedTransport
	soap   *scriptedTransport
}

func newHarness(settings domain.GatewaySettings, orders ...*domain.Order) *harness {
	h := &harness{
		orders: newFakeOrders(orders...),
		cart:   &fakeCart{},
		events: &fakePublisher{},
		rest:   &scriptedTransport{},
		soap:   &scriptedTransport{},
	}
	presenter := NewPresenter(testURLs)
	dispatcher := NewDispatcher(h.rest, h.soap, h.orders, presenter, "https://dargaah.test", txlog.Discard())
	h.svc = NewPaymentService(staticSettings(settings), h.orders, h.cart, h.events, fixedSigner{},
		dispatcher, presenter, txlog.Discard())
	return h
}

func (h *harness) providerCalls() int {
	return h.rest.callCount() + h.soap.callCount()
}
