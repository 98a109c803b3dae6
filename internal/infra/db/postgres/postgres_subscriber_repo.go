package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
)

var _ repository.SubscriberRepository = (*subscriberRepo)(nil)

type subscriberRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriberRepo(pool *pgxpool.Pool) *subscriberRepo {
	return &subscriberRepo{pool: pool}
}

// Save upserts profile fields. The gateway customer id and the subscription
// cache have their own writers and are only set here on insert.
func (r *subscriberRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscriber) error {
	const q = `
INSERT INTO subscribers (
  id, kind, name, email, cpf_cnpj, phone, gateway_customer_id, subscription_status, pending_payment_url, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
ON CONFLICT (kind, id) DO UPDATE SET
  name=EXCLUDED.name, email=EXCLUDED.email, cpf_cnpj=EXCLUDED.cpf_cnpj, phone=EXCLUDED.phone, updated_at=NOW();`

	var status *string
	if s.SubscriptionStatus != nil {
		v := string(*s.SubscriptionStatus)
		status = &v
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = nowUTC()
	}
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, string(s.Kind), s.Name, s.Email, s.CpfCnpj, s.Phone,
		s.GatewayCustomerID, status, s.PendingPaymentURL, s.CreatedAt)
	return storageErr(err)
}

func (r *subscriberRepo) FindByRef(ctx context.Context, tx repository.Tx, ref model.SubscriberRef) (*model.Subscriber, error) {
	q := lockable(tx, `
SELECT id, kind, name, email, cpf_cnpj, phone, gateway_customer_id, subscription_status, pending_payment_url, created_at, updated_at
  FROM subscribers
 WHERE kind=$1 AND id=$2`)
	row, err := pickRow(ctx, r.pool, tx, q, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, err
	}

	s := &model.Subscriber{}
	var kind string
	var status *string
	if err := row.Scan(&s.ID, &kind, &s.Name, &s.Email, &s.CpfCnpj, &s.Phone, &s.GatewayCustomerID, &status, &s.PendingPaymentURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	s.Kind = model.SubscriberKind(kind)
	if status != nil {
		st := model.SubscriptionStatus(*status)
		s.SubscriptionStatus = &st
	}
	return s, nil
}

// SetGatewayCustomerID never replaces an existing customer id.
func (r *subscriberRepo) SetGatewayCustomerID(ctx context.Context, tx repository.Tx, ref model.SubscriberRef, customerID string) error {
	const q = `
UPDATE subscribers SET gateway_customer_id=$3, updated_at=NOW()
 WHERE kind=$1 AND id=$2 AND (gateway_customer_id IS NULL OR gateway_customer_id=$3);`
	tag, err := execSQL(ctx, r.pool, tx, q, string(ref.Kind), ref.ID, customerID)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *subscriberRepo) UpdateSubscriptionCache(ctx context.Context, tx repository.Tx, ref model.SubscriberRef, status *model.SubscriptionStatus, pendingURL *string) error {
	const q = `
UPDATE subscribers SET subscription_status=$3, pending_payment_url=$4, updated_at=NOW()
 WHERE kind=$1 AND id=$2;`
	var st *string
	if status != nil {
		v := string(*status)
		st = &v
	}
	tag, err := execSQL(ctx, r.pool, tx, q, string(ref.Kind), ref.ID, st, pendingURL)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriberRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM subscribers;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
