package model

import (
	"strings"
	"time"

	"agroconecta-billing/internal/domain"
)

type SubscriberKind string

const (
	SubscriberKindProfessional SubscriberKind = "PROFISSIONAL"
	SubscriberKindClient       SubscriberKind = "CLIENTE"
)

func (k SubscriberKind) Valid() bool {
	return k == SubscriberKindProfessional || k == SubscriberKindClient
}

// ParseSubscriberKind accepts the canonical value in any case.
func ParseSubscriberKind(s string) (SubscriberKind, error) {
	k := SubscriberKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return k, nil
}

// SubscriberRef identifies a subscriber across both account families.
type SubscriberRef struct {
	Kind SubscriberKind
	ID   string
}

func (r SubscriberRef) IsZero() bool { return r.ID == "" }

func (r SubscriberRef) String() string { return string(r.Kind) + ":" + r.ID }

// Subscriber is a professional or client account able to hold subscriptions.
// SubscriptionStatus and PendingPaymentURL mirror the latest subscription.
type Subscriber struct {
	ID                 string
	Kind               SubscriberKind
	Name               string
	Email              string
	CpfCnpj            string
	Phone              string
	GatewayCustomerID  *string
	SubscriptionStatus *SubscriptionStatus
	PendingPaymentURL  *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Subscriber) Ref() SubscriberRef { return SubscriberRef{Kind: s.Kind, ID: s.ID} }

func (s *Subscriber) HasGatewayCustomer() bool {
	return s.GatewayCustomerID != nil && *s.GatewayCustomerID != ""
}
