package repository

import (
	"context"

	"agroconecta-billing/internal/domain/model"
)

// SubscriberRepository is the port for professional and client accounts.
type SubscriberRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscriber) error
	FindByRef(ctx context.Context, tx Tx, ref model.SubscriberRef) (*model.Subscriber, error)
	SetGatewayCustomerID(ctx context.Context, tx Tx, ref model.SubscriberRef, customerID string) error
	// UpdateSubscriptionCache overwrites the denormalized status and checkout URL.
	UpdateSubscriptionCache(ctx context.Context, tx Tx, ref model.SubscriberRef, status *model.SubscriptionStatus, pendingURL *string) error
	Count(ctx context.Context, tx Tx) (int, error)
}
