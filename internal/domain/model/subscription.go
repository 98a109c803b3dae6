package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agroconecta-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDENTE"
	SubscriptionStatusActive    SubscriptionStatus = "ATIVO"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELADO"
	SubscriptionStatusOverdue   SubscriptionStatus = "VENCIDO"
	SubscriptionStatusInactive  SubscriptionStatus = "INATIVO"
)

var AllSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusPending,
	SubscriptionStatusActive,
	SubscriptionStatusCancelled,
	SubscriptionStatusOverdue,
	SubscriptionStatusInactive,
}

func (s SubscriptionStatus) Valid() bool {
	for _, v := range AllSubscriptionStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// subscriptionSources lists, per target status, the statuses a row may be in
// for an automatic (webhook/reconciliation) transition to apply. CANCELADO is
// never a source: only an explicit reactivation leaves it.
var subscriptionSources = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive:    {SubscriptionStatusPending, SubscriptionStatusOverdue, SubscriptionStatusInactive},
	SubscriptionStatusOverdue:   {SubscriptionStatusPending, SubscriptionStatusActive},
	SubscriptionStatusPending:   {SubscriptionStatusActive, SubscriptionStatusOverdue, SubscriptionStatusInactive},
	SubscriptionStatusInactive:  {SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusOverdue},
	SubscriptionStatusCancelled: {SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusOverdue, SubscriptionStatusInactive},
}

// SubscriptionSourcesFor returns the statuses from which a transition to `to`
// is allowed. The result is a copy.
func SubscriptionSourcesFor(to SubscriptionStatus) []SubscriptionStatus {
	src := subscriptionSources[to]
	out := make([]SubscriptionStatus, len(src))
	copy(out, src)
	return out
}

// CanTransitionTo reports whether an automatic transition from s to next is allowed.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, from := range subscriptionSources[next] {
		if from == s {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodPix        PaymentMethod = "PIX"
	PaymentMethodBoleto     PaymentMethod = "BOLETO"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodUndefined  PaymentMethod = "UNDEFINED"
)

// Subscription is a recurring billing arrangement mirrored to the gateway.
// Value is snapshotted from the plan when the row is created.
type Subscription struct {
	ID                    string
	Subscriber            SubscriberRef
	PlanID                string
	GatewaySubscriptionID *string
	Status                SubscriptionStatus
	Value                 decimal.Decimal
	BillingType           PaymentMethod
	StartDate             time.Time
	EndDate               *time.Time
	PendingPaymentURL     *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewSubscription builds a row for the subscriber on the given plan. Free plans
// start ATIVO, paid plans start PENDENTE until their first invoice is confirmed.
func NewSubscription(subscriber SubscriberRef, plan *Plan, billingType PaymentMethod) (*Subscription, error) {
	if subscriber.IsZero() || !subscriber.Kind.Valid() || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	if billingType == "" {
		billingType = PaymentMethodUndefined
	}
	now := time.Now()
	status := SubscriptionStatusPending
	if plan.IsFree() {
		status = SubscriptionStatusActive
	}
	return &Subscription{
		ID:          uuid.NewString(),
		Subscriber:  subscriber,
		PlanID:      plan.ID,
		Status:      status,
		Value:       plan.Price,
		BillingType: billingType,
		StartDate:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *Subscription) OwnedBy(ref SubscriberRef) bool {
	return s.Subscriber.Kind == ref.Kind && s.Subscriber.ID == ref.ID
}

func (s *Subscription) HasGatewaySubscription() bool {
	return s.GatewaySubscriptionID != nil && *s.GatewaySubscriptionID != ""
}
