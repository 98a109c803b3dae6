//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/usecase"
)

var (
	ownerRef    = model.SubscriberRef{Kind: model.SubscriberKindProfessional, ID: "s1"}
	strangerRef = model.SubscriberRef{Kind: model.SubscriberKindProfessional, ID: "s2"}
	clientRef   = model.SubscriberRef{Kind: model.SubscriberKindClient, ID: "c1"}
)

// testEngine wires the three lifecycle use cases over shared in-memory state.
type testEngine struct {
	subscribers *MockSubscriberRepo
	plans       *MockPlanRepo
	subs        *MockSubscriptionRepo
	invoices    *MockInvoiceRepo
	events      *MockWebhookEventRepo
	gateway     *MockPaymentGateway
	locker      *MockLocker
	tm          *MockTxManager

	subUC    usecase.SubscriptionUseCase
	webhooks usecase.WebhookUseCase
	recon    usecase.ReconciliationUseCase
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	ctx := context.Background()
	e := &testEngine{
		subscribers: NewMockSubscriberRepo(),
		plans:       NewMockPlanRepo(),
		subs:        NewMockSubscriptionRepo(),
		invoices:    NewMockInvoiceRepo(),
		events:      &MockWebhookEventRepo{},
		gateway:     NewMockPaymentGateway(),
		locker:      NewMockLocker(),
		tm:          NewMockTxManager(),
	}

	for _, s := range []*model.Subscriber{
		{ID: ownerRef.ID, Kind: ownerRef.Kind, Name: "Ana Souza", Email: "ana@example.com", CpfCnpj: "24971563792"},
		{ID: strangerRef.ID, Kind: strangerRef.Kind, Name: "Bruno Lima", Email: "bruno@example.com", CpfCnpj: "62289258029"},
		{ID: clientRef.ID, Kind: clientRef.Kind, Name: "Fazenda Boa Vista", Email: "contato@boavista.example", CpfCnpj: "11222333000181"},
	} {
		if err := e.subscribers.Save(ctx, nil, s); err != nil {
			t.Fatalf("seed subscriber: %v", err)
		}
	}
	for _, p := range []struct {
		id    string
		kind  model.SubscriberKind
		price string
	}{
		{"plan-pro", model.SubscriberKindProfessional, "49.90"},
		{"plan-free", model.SubscriberKindProfessional, "0"},
		{"plan-client", model.SubscriberKindClient, "19.90"},
	} {
		plan, err := model.NewPlan(p.id, p.id, p.kind, decimal.RequireFromString(p.price), model.BillingPeriodMonthly)
		if err != nil {
			t.Fatalf("seed plan: %v", err)
		}
		if err := e.plans.Save(ctx, nil, plan); err != nil {
			t.Fatalf("seed plan: %v", err)
		}
	}

	logger := newTestLogger()
	e.subUC = usecase.NewSubscriptionUseCase(e.subscribers, e.plans, e.subs, e.invoices, e.gateway, e.locker, e.tm,
		usecase.SubscriptionOptions{FirstDueInDays: 3}, logger)
	e.webhooks = usecase.NewWebhookUseCase(e.subscribers, e.subs, e.invoices, e.events, e.gateway, e.tm, logger)
	e.recon = usecase.NewReconciliationUseCase(e.subscribers, e.subs, e.invoices, e.gateway, e.tm,
		usecase.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, logger)
	return e
}

// scriptGateway makes the gateway answer like scenario 1: subscription sub_1
// with a single pending invoice pay_1.
func (e *testEngine) scriptGateway() {
	e.gateway.CreateSubscriptionFunc = func(ctx context.Context, in adapter.CreateSubscriptionInput) (*adapter.GatewaySubscription, error) {
		return &adapter.GatewaySubscription{ID: "sub_1", CustomerID: in.CustomerID, Status: "ACTIVE", Value: in.Value}, nil
	}
	e.gateway.ListSubscriptionPaymentsFunc = func(ctx context.Context, id string) ([]adapter.GatewayPayment, error) {
		if id != "sub_1" {
			return nil, nil
		}
		return []adapter.GatewayPayment{{
			ID:             "pay_1",
			SubscriptionID: "sub_1",
			Status:         "PENDING",
			BillingType:    "PIX",
			InvoiceURL:     "https://pay/1",
			Value:          decimal.RequireFromString("49.90"),
			DueDate:        time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
		}}, nil
	}
}

// subscribe runs scenario 1 and returns the created subscription.
func (e *testEngine) subscribe(t *testing.T) *model.Subscription {
	t.Helper()
	e.scriptGateway()
	res, err := e.subUC.Create(context.Background(), usecase.CreateSubscriptionRequest{Subscriber: ownerRef, PlanID: "plan-pro"})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return res.Subscription
}

func (e *testEngine) deliver(t *testing.T, payload string) model.WebhookOutcome {
	t.Helper()
	out, err := e.webhooks.Handle(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("webhook %s: %v", payload, err)
	}
	return out
}

func (e *testEngine) subscriber(t *testing.T, ref model.SubscriberRef) *model.Subscriber {
	t.Helper()
	s, err := e.subscribers.FindByRef(context.Background(), nil, ref)
	if err != nil {
		t.Fatalf("find subscriber: %v", err)
	}
	return s
}

func (e *testEngine) subscription(t *testing.T, id string) *model.Subscription {
	t.Helper()
	s, err := e.subs.FindByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("find subscription: %v", err)
	}
	return s
}

func (e *testEngine) invoice(t *testing.T, gatewayID string) *model.Invoice {
	t.Helper()
	inv, err := e.invoices.FindByGatewayID(context.Background(), nil, gatewayID)
	if err != nil {
		t.Fatalf("find invoice %s: %v", gatewayID, err)
	}
	return inv
}

func cachedStatus(s *model.Subscriber) model.SubscriptionStatus {
	if s.SubscriptionStatus == nil {
		return ""
	}
	return *s.SubscriptionStatus
}
