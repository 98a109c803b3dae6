package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway-native vocabularies. Local code maps them through the status tables
// in the use case layer and never switches on them directly.
const (
	GatewayCycleMonthly   = "MONTHLY"
	GatewayCycleQuarterly = "QUARTERLY"
	GatewayCycleYearly    = "YEARLY"
)

// GatewayCustomer is the subset of subscriber data the gateway needs.
type GatewayCustomer struct {
	Name              string
	Email             string
	CpfCnpj           string
	Phone             string
	ExternalReference string
}

// CreditCard and CreditCardHolder are forwarded unchanged for card direct-pay
// and are never persisted.
type CreditCard struct {
	HolderName  string
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CCV         string
}

type CreditCardHolder struct {
	Name          string
	Email         string
	CpfCnpj       string
	PostalCode    string
	AddressNumber string
	Phone         string
}

type CreateSubscriptionInput struct {
	CustomerID        string
	BillingType       string
	Value             decimal.Decimal
	NextDueDate       time.Time
	Cycle             string
	Description       string
	ExternalReference string
	CreditCard        *CreditCard
	CreditCardHolder  *CreditCardHolder
	RemoteIP          string
}

type CreatePaymentInput struct {
	CustomerID        string
	BillingType       string
	Value             decimal.Decimal
	DueDate           time.Time
	Description       string
	ExternalReference string
}

// GatewaySubscription is a gateway-side subscription as reported by the gateway.
type GatewaySubscription struct {
	ID          string
	CustomerID  string
	Status      string
	BillingType string
	Value       decimal.Decimal
	NextDueDate time.Time
	Deleted     bool
}

// GatewayPayment is a gateway-side charge. PaymentDate falls back to
// ConfirmedDate when the gateway only reports the latter.
type GatewayPayment struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	Status         string
	BillingType    string
	InvoiceURL     string
	Value          decimal.Decimal
	DueDate        time.Time
	PaymentDate    *time.Time
	ConfirmedDate  *time.Time
	Deleted        bool
}

// PaidAt returns the settlement date reported by the gateway, if any.
func (p *GatewayPayment) PaidAt() *time.Time {
	if p.PaymentDate != nil {
		return p.PaymentDate
	}
	return p.ConfirmedDate
}

// GatewayEvent is a decoded webhook delivery.
type GatewayEvent struct {
	ID           string
	Event        string
	Payment      *GatewayPayment
	Subscription *GatewaySubscription
}

// PaymentGateway is the hex port for the external payment processor. Every
// method may fail with an error wrapping domain.ErrGatewayUnavailable,
// domain.ErrGatewayTimeout or domain.ErrGatewayRejected.
type PaymentGateway interface {
	Name() string

	CreateCustomer(ctx context.Context, c GatewayCustomer) (customerID string, err error)
	UpdateCustomer(ctx context.Context, customerID string, c GatewayCustomer) error

	CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*GatewaySubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// ListSubscriptionPayments may legitimately return an empty slice right
	// after the subscription was created.
	ListSubscriptionPayments(ctx context.Context, subscriptionID string) ([]GatewayPayment, error)

	CreatePayment(ctx context.Context, in CreatePaymentInput) (*GatewayPayment, error)

	// DecodeEvent parses a webhook body in the gateway's wire format.
	DecodeEvent(payload []byte) (*GatewayEvent, error)
}
