package repository

import (
	"context"

	"agroconecta-billing/internal/domain/model"
)

// WebhookEventRepository appends gateway callback audit records.
type WebhookEventRepository interface {
	Save(ctx context.Context, tx Tx, ev *model.WebhookEvent) error
}
