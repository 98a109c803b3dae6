package repository

import (
	"context"
	"time"

	"agroconecta-billing/internal/domain/model"
)

// SubscriptionRepository is the port for subscriptions of both subscriber kinds.
type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByGatewayID(ctx context.Context, tx Tx, gatewaySubscriptionID string) (*model.Subscription, error)
	// FindLatestBySubscriber returns the most recently created subscription.
	FindLatestBySubscriber(ctx context.Context, tx Tx, ref model.SubscriberRef) (*model.Subscription, error)

	// TransitionStatus sets status=to only when the current status is one of
	// from. endDate is written when non-nil. It reports whether a row changed.
	TransitionStatus(ctx context.Context, tx Tx, id string, from []model.SubscriptionStatus, to model.SubscriptionStatus, endDate *time.Time) (bool, error)
	SetGatewaySubscriptionID(ctx context.Context, tx Tx, id, gatewaySubscriptionID string) error
	SetPendingPaymentURL(ctx context.Context, tx Tx, id string, url *string) error

	// ListStalePending returns gateway-backed PENDENTE rows not touched since
	// olderThan, least recently touched first.
	ListStalePending(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Subscription, error)
	// MarkSynced records a reconciliation attempt by bumping updated_at.
	MarkSynced(ctx context.Context, tx Tx, id string) error
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
