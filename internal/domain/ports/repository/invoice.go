package repository

import (
	"context"
	"time"

	"agroconecta-billing/internal/domain/model"
)

// InvoiceRepository is the port for invoices ("pagamentos").
type InvoiceRepository interface {
	// InsertIfAbsent inserts inv unless a row with the same gateway payment id
	// exists. It reports whether a row was inserted; inv.ID is overwritten with
	// the stored id either way.
	InsertIfAbsent(ctx context.Context, tx Tx, inv *model.Invoice) (bool, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Invoice, error)
	FindByGatewayID(ctx context.Context, tx Tx, gatewayPaymentID string) (*model.Invoice, error)
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string) ([]*model.Invoice, error)

	// TransitionStatus sets status=to only when the current status is from.
	// paidDate is written when non-nil.
	TransitionStatus(ctx context.Context, tx Tx, id string, from, to model.InvoiceStatus, paidDate *time.Time) (bool, error)
}
