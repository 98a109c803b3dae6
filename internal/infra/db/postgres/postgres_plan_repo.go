package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
)

var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `id, name, description, category, price, billing_period, features, usage_limits, active, created_at`

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	const q = `
INSERT INTO plans (` + planColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE
  SET name           = EXCLUDED.name,
      description    = EXCLUDED.description,
      category       = EXCLUDED.category,
      price          = EXCLUDED.price,
      billing_period = EXCLUDED.billing_period,
      features       = EXCLUDED.features,
      usage_limits   = EXCLUDED.usage_limits,
      active         = EXCLUDED.active;`

	features := plan.Features
	if features == nil {
		features = []string{}
	}
	limits := plan.UsageLimits
	if limits == nil {
		limits = map[string]int{}
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = nowUTC()
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		plan.ID, plan.Name, plan.Description, string(plan.Category), plan.Price,
		string(plan.BillingPeriod), features, limits, plan.Active, plan.CreatedAt,
	)
	return storageErr(err)
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+planColumns+` FROM plans WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+planColumns+` FROM plans ORDER BY category, price, id;`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	var category, period string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &category, &p.Price, &period, &p.Features, &p.UsageLimits, &p.Active, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	p.Category = model.SubscriberKind(category)
	p.BillingPeriod = model.BillingPeriod(period)
	return &p, nil
}
