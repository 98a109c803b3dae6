package http

import (
	"time"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/usecase"
)

// ---- requests ----

type createSubscriptionRequest struct {
	PlanID      string `json:"plan_id" validate:"required,max=64"`
	BillingType string `json:"billing_type" validate:"omitempty,oneof=PIX BOLETO CREDIT_CARD UNDEFINED"`
}

type creditCardRequest struct {
	HolderName  string `json:"holder_name" validate:"required"`
	Number      string `json:"number" validate:"required,numeric,min=13,max=19"`
	ExpiryMonth string `json:"expiry_month" validate:"required,numeric,len=2"`
	ExpiryYear  string `json:"expiry_year" validate:"required,numeric,len=4"`
	CCV         string `json:"ccv" validate:"required,numeric,min=3,max=4"`
}

type creditCardHolderRequest struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	CpfCnpj       string `json:"cpf_cnpj" validate:"required,numeric,min=11,max=14"`
	PostalCode    string `json:"postal_code" validate:"required"`
	AddressNumber string `json:"address_number" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
}

type payDirectRequest struct {
	PlanID           string                   `json:"plan_id" validate:"required,max=64"`
	BillingType      string                   `json:"billing_type" validate:"required,oneof=PIX BOLETO CREDIT_CARD"`
	CreditCard       *creditCardRequest       `json:"credit_card" validate:"required_if=BillingType CREDIT_CARD"`
	CreditCardHolder *creditCardHolderRequest `json:"credit_card_holder" validate:"required_if=BillingType CREDIT_CARD"`
}

func (p *payDirectRequest) card() (*adapter.CreditCard, *adapter.CreditCardHolder) {
	if p.CreditCard == nil || p.CreditCardHolder == nil {
		return nil, nil
	}
	return &adapter.CreditCard{
			HolderName:  p.CreditCard.HolderName,
			Number:      p.CreditCard.Number,
			ExpiryMonth: p.CreditCard.ExpiryMonth,
			ExpiryYear:  p.CreditCard.ExpiryYear,
			CCV:         p.CreditCard.CCV,
		}, &adapter.CreditCardHolder{
			Name:          p.CreditCardHolder.Name,
			Email:         p.CreditCardHolder.Email,
			CpfCnpj:       p.CreditCardHolder.CpfCnpj,
			PostalCode:    p.CreditCardHolder.PostalCode,
			AddressNumber: p.CreditCardHolder.AddressNumber,
			Phone:         p.CreditCardHolder.Phone,
		}
}

// ---- responses ----

type subscriptionResponse struct {
	ID                    string     `json:"id"`
	PlanID                string     `json:"plan_id"`
	Status                string     `json:"status"`
	Value                 string     `json:"value"`
	BillingType           string     `json:"billing_type"`
	GatewaySubscriptionID string     `json:"gateway_subscription_id,omitempty"`
	PendingPaymentURL     string     `json:"pending_payment_url,omitempty"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date,omitempty"`
}

type invoiceResponse struct {
	ID               string     `json:"id"`
	GatewayPaymentID string     `json:"gateway_payment_id"`
	Status           string     `json:"status"`
	Value            string     `json:"value"`
	BillingType      string     `json:"billing_type"`
	InvoiceURL       string     `json:"invoice_url,omitempty"`
	DueDate          string     `json:"due_date"`
	PaidDate         *time.Time `json:"paid_date,omitempty"`
}

type planResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category"`
	Price         string         `json:"price"`
	BillingPeriod string         `json:"billing_period"`
	Features      []string       `json:"features"`
	UsageLimits   map[string]int `json:"usage_limits"`
}

type subscriptionResultResponse struct {
	Subscription   subscriptionResponse `json:"subscription"`
	Invoice        *invoiceResponse     `json:"invoice,omitempty"`
	PaymentURL     string               `json:"payment_url,omitempty"`
	PaymentPending bool                 `json:"payment_pending"`
}

type currentSubscriptionResponse struct {
	Subscription subscriptionResponse `json:"subscription"`
	Plan         *planResponse        `json:"plan,omitempty"`
	Invoices     []invoiceResponse    `json:"invoices"`
}

type syncResponse struct {
	Subscription    subscriptionResponse `json:"subscription"`
	InvoicesCreated int                  `json:"invoices_created"`
	InvoicesUpdated int                  `json:"invoices_updated"`
}

func toSubscriptionResponse(s *model.Subscription) subscriptionResponse {
	out := subscriptionResponse{
		ID:          s.ID,
		PlanID:      s.PlanID,
		Status:      string(s.Status),
		Value:       s.Value.StringFixed(2),
		BillingType: string(s.BillingType),
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
	}
	if s.GatewaySubscriptionID != nil {
		out.GatewaySubscriptionID = *s.GatewaySubscriptionID
	}
	if s.PendingPaymentURL != nil {
		out.PendingPaymentURL = *s.PendingPaymentURL
	}
	return out
}

func toInvoiceResponse(inv *model.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:               inv.ID,
		GatewayPaymentID: inv.GatewayPaymentID,
		Status:           string(inv.Status),
		Value:            inv.Value.StringFixed(2),
		BillingType:      string(inv.BillingType),
		InvoiceURL:       inv.InvoiceURL,
		DueDate:          inv.DueDate.Format("2006-01-02"),
		PaidDate:         inv.PaidDate,
	}
}

func toPlanResponse(p *model.Plan) planResponse {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	limits := p.UsageLimits
	if limits == nil {
		limits = map[string]int{}
	}
	return planResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Category:      string(p.Category),
		Price:         p.Price.StringFixed(2),
		BillingPeriod: string(p.BillingPeriod),
		Features:      features,
		UsageLimits:   limits,
	}
}

func toResultResponse(res *usecase.SubscriptionResult) subscriptionResultResponse {
	out := subscriptionResultResponse{
		Subscription:   toSubscriptionResponse(res.Subscription),
		PaymentURL:     res.PaymentURL,
		PaymentPending: res.PaymentPending,
	}
	if res.Invoice != nil {
		inv := toInvoiceResponse(res.Invoice)
		out.Invoice = &inv
	}
	return out
}
