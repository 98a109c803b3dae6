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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, subscriber_kind, subscriber_id, plan_id, gateway_subscription_id, status, value, billing_type, start_date, end_date, pending_payment_url, created_at, updated_at`

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, string(s.Subscriber.Kind), s.Subscriber.ID, s.PlanID,
		s.GatewaySubscriptionID, string(s.Status), s.Value, string(s.BillingType), s.StartDate, s.EndDate,
		s.PendingPaymentURL, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return storageErr(err)
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := lockable(tx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id=$1`)
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindByGatewayID(ctx context.Context, tx repository.Tx, gatewaySubscriptionID string) (*model.Subscription, error) {
	q := lockable(tx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE gateway_subscription_id=$1`)
	return r.queryOne(ctx, tx, q, gatewaySubscriptionID)
}

func (r *subscriptionRepo) FindLatestBySubscriber(ctx context.Context, tx repository.Tx, ref model.SubscriberRef) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE subscriber_kind=$1 AND subscriber_id=$2
 ORDER BY created_at DESC, id DESC
 LIMIT 1`
	return r.queryOne(ctx, tx, q, string(ref.Kind), ref.ID)
}

func (r *subscriptionRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from []model.SubscriptionStatus, to model.SubscriptionStatus, endDate *time.Time) (bool, error) {
	const q = `
UPDATE subscriptions
   SET status=$2, end_date=COALESCE($4, end_date), updated_at=NOW()
 WHERE id=$1 AND status = ANY($3);`

	src := make([]string, len(from))
	for i, s := range from {
		src[i] = string(s)
	}
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(to), src, endDate)
	if err != nil {
		return false, storageErr(err)
	}
	return tag.RowsAffected() >= 1, nil
}

func (r *subscriptionRepo) SetGatewaySubscriptionID(ctx context.Context, tx repository.Tx, id, gatewaySubscriptionID string) error {
	const q = `UPDATE subscriptions SET gateway_subscription_id=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, gatewaySubscriptionID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) SetPendingPaymentURL(ctx context.Context, tx repository.Tx, id string, url *string) error {
	const q = `UPDATE subscriptions SET pending_payment_url=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, url)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkSynced bumps updated_at so the row moves to the back of the stale queue.
func (r *subscriptionRepo) MarkSynced(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE subscriptions SET updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) ListStalePending(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='PENDENTE' AND gateway_subscription_id IS NOT NULL AND updated_at < $1
 ORDER BY updated_at ASC
 LIMIT $2;`
	if limit <= 0 {
		limit = 100
	}
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var kind, status, billing string
	if err := row.Scan(&s.ID, &kind, &s.Subscriber.ID, &s.PlanID, &s.GatewaySubscriptionID, &status, &s.Value,
		&billing, &s.StartDate, &s.EndDate, &s.PendingPaymentURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	s.Subscriber.Kind = model.SubscriberKind(kind)
	s.Status = model.SubscriptionStatus(status)
	s.BillingType = model.PaymentMethod(billing)
	return s, nil
}
