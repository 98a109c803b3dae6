//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
)

func seedSubscriber(t *testing.T, kind model.SubscriberKind, id string) *model.Subscriber {
	t.Helper()
	s := &model.Subscriber{ID: id, Kind: kind, Name: "Fazenda " + id, Email: id + "@example.com", CpfCnpj: "24971563792"}
	if err := NewSubscriberRepo(testPool).Save(context.Background(), repository.NoTX, s); err != nil {
		t.Fatalf("failed to save subscriber %s: %v", id, err)
	}
	return s
}

func seedPlan(t *testing.T, id string, category model.SubscriberKind, price string) *model.Plan {
	t.Helper()
	p, err := model.NewPlan(id, "Plano "+id, category, decimal.RequireFromString(price), model.BillingPeriodMonthly)
	if err != nil {
		t.Fatalf("model.NewPlan() failed: %v", err)
	}
	if err := NewPostgresPlanRepo(testPool).Save(context.Background(), repository.NoTX, p); err != nil {
		t.Fatalf("failed to save plan %s: %v", id, err)
	}
	return p
}

func seedSubscription(t *testing.T, s *model.Subscriber, p *model.Plan, gatewayID string) *model.Subscription {
	t.Helper()
	sub, err := model.NewSubscription(s.Ref(), p, model.PaymentMethodUndefined)
	if err != nil {
		t.Fatalf("model.NewSubscription() failed: %v", err)
	}
	if gatewayID != "" {
		sub.GatewaySubscriptionID = &gatewayID
	}
	if err := NewSubscriptionRepo(testPool).Create(context.Background(), repository.NoTX, sub); err != nil {
		t.Fatalf("failed to create subscription: %v", err)
	}
	return sub
}

func newInvoice(sub *model.Subscription, gatewayPaymentID string) *model.Invoice {
	now := time.Now().UTC()
	return &model.Invoice{
		ID:               gatewayPaymentID + "-local",
		SubscriptionID:   sub.ID,
		Subscriber:       sub.Subscriber,
		GatewayPaymentID: gatewayPaymentID,
		InvoiceURL:       "https://sandbox.asaas.com/i/" + gatewayPaymentID,
		Value:            sub.Value,
		Status:           model.InvoiceStatusPending,
		BillingType:      model.PaymentMethodUndefined,
		DueDate:          now.AddDate(0, 0, 3).Truncate(24 * time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
