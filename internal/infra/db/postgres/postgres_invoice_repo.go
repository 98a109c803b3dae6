package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
)

var _ repository.InvoiceRepository = (*invoiceRepo)(nil)

type invoiceRepo struct{ pool *pgxpool.Pool }

func NewInvoiceRepo(pool *pgxpool.Pool) *invoiceRepo {
	return &invoiceRepo{pool: pool}
}

const invoiceColumns = `id, subscription_id, subscriber_kind, subscriber_id, gateway_payment_id, invoice_url, value, status, billing_type, due_date, paid_date, created_at, updated_at`

// InsertIfAbsent relies on the unique gateway_payment_id: concurrent inserts of
// the same gateway payment collapse into one row.
func (r *invoiceRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, inv *model.Invoice) (bool, error) {
	const q = `
INSERT INTO invoices (` + invoiceColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (gateway_payment_id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q, inv.ID, inv.SubscriptionID, string(inv.Subscriber.Kind), inv.Subscriber.ID,
		inv.GatewayPaymentID, inv.InvoiceURL, inv.Value, string(inv.Status), string(inv.BillingType),
		inv.DueDate, inv.PaidDate, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return false, storageErr(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	row, err := pickRow(ctx, r.pool, tx, `SELECT id FROM invoices WHERE gateway_payment_id=$1;`, inv.GatewayPaymentID)
	if err != nil {
		return false, err
	}
	if err := row.Scan(&inv.ID); err != nil {
		return false, scanErr(err)
	}
	return false, nil
}

func (r *invoiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Invoice, error) {
	q := lockable(tx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanInvoice(row)
}

func (r *invoiceRepo) FindByGatewayID(ctx context.Context, tx repository.Tx, gatewayPaymentID string) (*model.Invoice, error) {
	q := lockable(tx, `SELECT `+invoiceColumns+` FROM invoices WHERE gateway_payment_id=$1`)
	row, err := pickRow(ctx, r.pool, tx, q, gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	return scanInvoice(row)
}

func (r *invoiceRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.Invoice, error) {
	const q = `SELECT ` + invoiceColumns + ` FROM invoices WHERE subscription_id=$1 ORDER BY due_date ASC, created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *invoiceRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.InvoiceStatus, paidDate *time.Time) (bool, error) {
	const q = `
UPDATE invoices
   SET status=$3, paid_date=COALESCE($4, paid_date), updated_at=NOW()
 WHERE id=$1 AND status=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to), paidDate)
	if err != nil {
		return false, storageErr(err)
	}
	return tag.RowsAffected() >= 1, nil
}

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	inv := &model.Invoice{}
	var kind, status, billing string
	if err := row.Scan(&inv.ID, &inv.SubscriptionID, &kind, &inv.Subscriber.ID, &inv.GatewayPaymentID, &inv.InvoiceURL,
		&inv.Value, &status, &billing, &inv.DueDate, &inv.PaidDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	inv.Subscriber.Kind = model.SubscriberKind(kind)
	inv.Status = model.InvoiceStatus(status)
	inv.BillingType = model.PaymentMethod(billing)
	return inv, nil
}
