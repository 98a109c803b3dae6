package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

func (r *webhookEventRepo) Save(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (id, event, gateway_object_id, payload, outcome, error, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	payload := ev.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err := execSQL(ctx, r.pool, tx, q, ev.ID, ev.Event, ev.GatewayObjectID, payload, string(ev.Outcome), ev.Error, ev.ReceivedAt)
	return storageErr(err)
}
