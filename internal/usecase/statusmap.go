package usecase

import (
	"strings"

	"agroconecta-billing/internal/domain/model"
)

// MapPaymentStatus translates a gateway payment status into the local invoice
// vocabulary. It is total: anything unrecognized, including "", is PENDENTE.
func MapPaymentStatus(external string) model.InvoiceStatus {
	switch strings.ToUpper(strings.TrimSpace(external)) {
	case "RECEIVED", "CONFIRMED", "RECEIVED_IN_CASH", "DUNNING_RECEIVED":
		return model.InvoiceStatusConfirmed
	case "OVERDUE", "DUNNING_REQUESTED":
		return model.InvoiceStatusOverdue
	case "REFUNDED", "CHARGEBACK_REQUESTED", "CHARGEBACK_DISPUTE":
		return model.InvoiceStatusRefunded
	default:
		return model.InvoiceStatusPending
	}
}

// MapBillingType translates a gateway billing type. Unrecognized values are PIX.
func MapBillingType(external string) model.PaymentMethod {
	switch strings.ToUpper(strings.TrimSpace(external)) {
	case "BOLETO":
		return model.PaymentMethodBoleto
	case "CREDIT_CARD", "DEBIT_CARD":
		return model.PaymentMethodCreditCard
	case "UNDEFINED":
		return model.PaymentMethodUndefined
	default:
		return model.PaymentMethodPix
	}
}

// MapSubscriptionStatus translates a gateway subscription status:
// ACTIVE is ATIVO, INACTIVE is INATIVO, anything else PENDENTE.
func MapSubscriptionStatus(external string) model.SubscriptionStatus {
	switch strings.ToUpper(strings.TrimSpace(external)) {
	case "ACTIVE":
		return model.SubscriptionStatusActive
	case "INACTIVE":
		return model.SubscriptionStatusInactive
	default:
		return model.SubscriptionStatusPending
	}
}

// gatewayBillingType is the outbound direction; UNDEFINED lets the payer pick
// at checkout.
func gatewayBillingType(m model.PaymentMethod) string {
	switch m {
	case model.PaymentMethodBoleto, model.PaymentMethodCreditCard, model.PaymentMethodPix:
		return string(m)
	default:
		return string(model.PaymentMethodUndefined)
	}
}
