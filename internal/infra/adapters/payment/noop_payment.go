package payment

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for dev mode and tests. Each
// subscription gets one pending charge; webhooks use the Asaas wire format.
type NoopPaymentGateway struct {
	mu            sync.Mutex
	seq           int64
	customers     map[string]adapter.GatewayCustomer
	subscriptions map[string]*adapter.GatewaySubscription
	payments      map[string][]adapter.GatewayPayment // subscription id -> charges
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		customers:     make(map[string]adapter.GatewayCustomer),
		subscriptions: make(map[string]*adapter.GatewaySubscription),
		payments:      make(map[string][]adapter.GatewayPayment),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_noop%d", prefix, g.seq)
}

func (g *NoopPaymentGateway) CreateCustomer(ctx context.Context, c adapter.GatewayCustomer) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("cus")
	g.customers[id] = c
	return id, nil
}

func (g *NoopPaymentGateway) UpdateCustomer(ctx context.Context, customerID string, c adapter.GatewayCustomer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.customers[customerID]; !ok {
		return notFound("update_customer")
	}
	g.customers[customerID] = c
	return nil
}

func (g *NoopPaymentGateway) CreateSubscription(ctx context.Context, in adapter.CreateSubscriptionInput) (*adapter.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.customers[in.CustomerID]; !ok {
		return nil, &domain.GatewayError{Op: "create_subscription", StatusCode: http.StatusBadRequest, Detail: "customer not found", Err: domain.ErrGatewayRejected}
	}
	sub := &adapter.GatewaySubscription{
		ID:          g.next("sub"),
		CustomerID:  in.CustomerID,
		Status:      "ACTIVE",
		BillingType: in.BillingType,
		Value:       in.Value,
		NextDueDate: in.NextDueDate,
	}
	g.subscriptions[sub.ID] = sub

	pay := adapter.GatewayPayment{
		ID:             g.next("pay"),
		SubscriptionID: sub.ID,
		CustomerID:     in.CustomerID,
		Status:         "PENDING",
		BillingType:    in.BillingType,
		Value:          in.Value,
		DueDate:        in.NextDueDate,
	}
	pay.InvoiceURL = "https://example.test/i/" + pay.ID
	if in.CreditCard != nil {
		now := time.Now().UTC()
		pay.Status = "CONFIRMED"
		pay.ConfirmedDate = &now
	}
	g.payments[sub.ID] = append(g.payments[sub.ID], pay)

	out := *sub
	return &out, nil
}

func (g *NoopPaymentGateway) GetSubscription(ctx context.Context, subscriptionID string) (*adapter.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, notFound("get_subscription")
	}
	out := *sub
	return &out, nil
}

func (g *NoopPaymentGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subscriptions[subscriptionID]
	if !ok || sub.Deleted {
		return notFound("cancel_subscription")
	}
	sub.Deleted = true
	sub.Status = "INACTIVE"
	return nil
}

func (g *NoopPaymentGateway) ListSubscriptionPayments(ctx context.Context, subscriptionID string) ([]adapter.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.subscriptions[subscriptionID]; !ok {
		return nil, notFound("list_subscription_payments")
	}
	return append([]adapter.GatewayPayment(nil), g.payments[subscriptionID]...), nil
}

func (g *NoopPaymentGateway) CreatePayment(ctx context.Context, in adapter.CreatePaymentInput) (*adapter.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := adapter.GatewayPayment{
		ID:          g.next("pay"),
		CustomerID:  in.CustomerID,
		Status:      "PENDING",
		BillingType: in.BillingType,
		Value:       in.Value,
		DueDate:     in.DueDate,
	}
	p.InvoiceURL = "https://example.test/i/" + p.ID
	return &p, nil
}

func (g *NoopPaymentGateway) DecodeEvent(payload []byte) (*adapter.GatewayEvent, error) {
	return decodeAsaasEvent(payload)
}

func notFound(op string) error {
	return &domain.GatewayError{Op: op, StatusCode: http.StatusNotFound, Detail: "not found", Err: domain.ErrGatewayRejected}
}
