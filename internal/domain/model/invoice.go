package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDENTE"
	InvoiceStatusConfirmed InvoiceStatus = "CONFIRMADO"
	InvoiceStatusOverdue   InvoiceStatus = "VENCIDO"
	InvoiceStatusRefunded  InvoiceStatus = "ESTORNADO"
)

// CanTransitionTo reports whether s may move to next. Statuses never regress:
// PENDENTE may go anywhere, VENCIDO may still be paid or refunded, CONFIRMADO
// may only be refunded and ESTORNADO is terminal.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case InvoiceStatusPending:
		return true
	case InvoiceStatusOverdue:
		return next == InvoiceStatusConfirmed || next == InvoiceStatusRefunded
	case InvoiceStatusConfirmed:
		return next == InvoiceStatusRefunded
	default:
		return false
	}
}

// SubscriptionEffect returns the subscription status an invoice status
// propagates to, if any.
func (s InvoiceStatus) SubscriptionEffect() (SubscriptionStatus, bool) {
	switch s {
	case InvoiceStatusConfirmed:
		return SubscriptionStatusActive, true
	case InvoiceStatusOverdue:
		return SubscriptionStatusOverdue, true
	default:
		return "", false
	}
}

// Invoice ("pagamento") is a single charge of a subscription, keyed at the
// gateway by GatewayPaymentID.
type Invoice struct {
	ID               string
	SubscriptionID   string
	Subscriber       SubscriberRef
	GatewayPaymentID string
	InvoiceURL       string
	Value            decimal.Decimal
	Status           InvoiceStatus
	BillingType      PaymentMethod
	DueDate          time.Time
	PaidDate         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
