package model

import (
	"time"

	"github.com/shopspring/decimal"

	"agroconecta-billing/internal/domain"
)

type BillingPeriod string

const (
	BillingPeriodMonthly   BillingPeriod = "MONTHLY"
	BillingPeriodQuarterly BillingPeriod = "QUARTERLY"
	BillingPeriodYearly    BillingPeriod = "YEARLY"
)

// Plan is a catalogue entry. The lifecycle engine only reads plans.
type Plan struct {
	ID            string
	Name          string
	Description   string
	Category      SubscriberKind
	Price         decimal.Decimal
	BillingPeriod BillingPeriod
	Features      []string
	UsageLimits   map[string]int
	Active        bool
	CreatedAt     time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// IsFree reports whether subscribing requires no gateway interaction.
func (p *Plan) IsFree() bool { return !p.Price.IsPositive() }

// NewPlan validates and constructs a plan.
func NewPlan(id, name string, category SubscriberKind, price decimal.Decimal, period BillingPeriod) (*Plan, error) {
	if id == "" || name == "" || !category.Valid() || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	if period == "" {
		period = BillingPeriodMonthly
	}
	return &Plan{
		ID:            id,
		Name:          name,
		Category:      category,
		Price:         price,
		BillingPeriod: period,
		UsageLimits:   map[string]int{},
		Active:        true,
		CreatedAt:     time.Now(),
	}, nil
}
