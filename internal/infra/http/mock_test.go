//go:build !integration

package http

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/usecase"
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type mockSubscriptionUC struct {
	CreateFunc     func(ctx context.Context, req usecase.CreateSubscriptionRequest) (*usecase.SubscriptionResult, error)
	PayDirectFunc  func(ctx context.Context, req usecase.PayDirectRequest) (*usecase.SubscriptionResult, error)
	CancelFunc     func(ctx context.Context, requester model.SubscriberRef, id string) (*model.Subscription, error)
	ReactivateFunc func(ctx context.Context, requester model.SubscriberRef, id string) (*usecase.SubscriptionResult, error)
	CurrentFunc    func(ctx context.Context, requester model.SubscriberRef) (*usecase.CurrentSubscription, error)
}

func (m *mockSubscriptionUC) Create(ctx context.Context, req usecase.CreateSubscriptionRequest) (*usecase.SubscriptionResult, error) {
	return m.CreateFunc(ctx, req)
}
func (m *mockSubscriptionUC) PayDirect(ctx context.Context, req usecase.PayDirectRequest) (*usecase.SubscriptionResult, error) {
	return m.PayDirectFunc(ctx, req)
}
func (m *mockSubscriptionUC) Cancel(ctx context.Context, requester model.SubscriberRef, id string) (*model.Subscription, error) {
	return m.CancelFunc(ctx, requester, id)
}
func (m *mockSubscriptionUC) Reactivate(ctx context.Context, requester model.SubscriberRef, id string) (*usecase.SubscriptionResult, error) {
	return m.ReactivateFunc(ctx, requester, id)
}
func (m *mockSubscriptionUC) Current(ctx context.Context, requester model.SubscriberRef) (*usecase.CurrentSubscription, error) {
	return m.CurrentFunc(ctx, requester)
}

type mockWebhookUC struct {
	HandleFunc func(ctx context.Context, payload []byte) (model.WebhookOutcome, error)
}

func (m *mockWebhookUC) Handle(ctx context.Context, payload []byte) (model.WebhookOutcome, error) {
	return m.HandleFunc(ctx, payload)
}

type mockReconciliationUC struct {
	ConfirmPaymentFunc   func(ctx context.Context, invoiceID string) (*model.Invoice, error)
	SyncSubscriptionFunc func(ctx context.Context, subscriptionID string) (*usecase.SyncResult, error)
}

func (m *mockReconciliationUC) ConfirmPayment(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	return m.ConfirmPaymentFunc(ctx, invoiceID)
}
func (m *mockReconciliationUC) SyncSubscription(ctx context.Context, subscriptionID string) (*usecase.SyncResult, error) {
	return m.SyncSubscriptionFunc(ctx, subscriptionID)
}
func (m *mockReconciliationUC) SyncStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	return 0, nil
}

type mockPlanCatalog struct {
	GetFunc  func(ctx context.Context, id string) (*model.Plan, error)
	ListFunc func(ctx context.Context) ([]*model.Plan, error)
}

func (m *mockPlanCatalog) Get(ctx context.Context, id string) (*model.Plan, error) {
	return m.GetFunc(ctx, id)
}
func (m *mockPlanCatalog) List(ctx context.Context) ([]*model.Plan, error) {
	return m.ListFunc(ctx)
}

type mockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.AllowFunc(ctx, key, limit, window)
}
