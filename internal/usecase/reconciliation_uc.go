// File: internal/usecase/reconciliation_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/domain/ports/repository"
	"agroconecta-billing/internal/infra/logging"
)

var _ ReconciliationUseCase = (*reconciliationUC)(nil)

// ReconciliationUseCase brings local state in line with the gateway when
// webhooks were lost or need an operator override.
type ReconciliationUseCase interface {
	// ConfirmPayment applies the same transition as a PAYMENT_CONFIRMED webhook
	// to the invoice with the given local id.
	ConfirmPayment(ctx context.Context, invoiceID string) (*model.Invoice, error)
	// SyncSubscription pulls the gateway subscription and its payments and
	// applies them locally.
	SyncSubscription(ctx context.Context, subscriptionID string) (*SyncResult, error)
	// SyncStalePending syncs PENDENTE subscriptions not touched since olderThan,
	// least recently synced first.
	SyncStalePending(ctx context.Context, olderThan time.Time, limit int) (synced int, err error)
}

type SyncResult struct {
	Subscription    *model.Subscription
	InvoicesCreated int
	InvoicesUpdated int
}

type reconciliationUC struct {
	ledger
	gateway adapter.PaymentGateway
	tm      repository.TransactionManager
	retry   RetryPolicy
	log     *zerolog.Logger
}

func NewReconciliationUseCase(
	subscribers repository.SubscriberRepository,
	subs repository.SubscriptionRepository,
	invoices repository.InvoiceRepository,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *reconciliationUC {
	l := logger.With().Str("component", "reconciliation").Logger()
	return &reconciliationUC{
		ledger:  ledger{subscribers: subscribers, subs: subs, invoices: invoices},
		gateway: gateway,
		tm:      tm,
		retry:   retry,
		log:     &l,
	}
}

func (u *reconciliationUC) ConfirmPayment(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	defer logging.TraceDuration(u.log, "ReconciliationUC.ConfirmPayment")()

	var out *model.Invoice
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		inv, err := u.invoices.FindByID(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == model.InvoiceStatusRefunded {
			return domain.ErrConflict
		}
		if inv.Status != model.InvoiceStatusConfirmed {
			sub, err := u.subs.FindByID(ctx, tx, inv.SubscriptionID)
			if err != nil {
				return err
			}
			// the gateway no longer bills a cancelled subscription; confirming
			// would leave the invoice paid and the subscription CANCELADO
			if sub.Status == model.SubscriptionStatusCancelled {
				return fmt.Errorf("subscription %s is cancelled: %w", sub.ID, domain.ErrConflict)
			}
		}
		now := time.Now()
		if _, err := u.applyInvoiceStatus(ctx, tx, inv, model.InvoiceStatusConfirmed, &now, sourceAdmin); err != nil {
			return err
		}
		if inv.Status != model.InvoiceStatusConfirmed {
			return domain.ErrConflict
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.With(ctx, u.log).Info().Str("invoice_id", out.ID).Str("subscription_id", out.SubscriptionID).Msg("invoice confirmed manually")
	return out, nil
}

func (u *reconciliationUC) SyncSubscription(ctx context.Context, subscriptionID string) (*SyncResult, error) {
	defer logging.TraceDuration(u.log, "ReconciliationUC.SyncSubscription")()
	log := logging.With(ctx, u.log).With().Str("subscription_id", subscriptionID).Logger()

	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	res := &SyncResult{Subscription: sub}
	if !sub.HasGatewaySubscription() {
		// free plans never reach the gateway
		return res, nil
	}
	gid := *sub.GatewaySubscriptionID

	var gs *adapter.GatewaySubscription
	if err := u.retry.do(ctx, func(ctx context.Context) error {
		var err error
		gs, err = u.gateway.GetSubscription(ctx, gid)
		return err
	}); err != nil {
		log.Error().Err(err).Str("op", "get_subscription").Msg("sync aborted")
		return nil, err
	}
	var payments []adapter.GatewayPayment
	if err := u.retry.do(ctx, func(ctx context.Context) error {
		var err error
		payments, err = u.gateway.ListSubscriptionPayments(ctx, gid)
		return err
	}); err != nil {
		log.Error().Err(err).Str("op", "list_subscription_payments").Msg("sync aborted")
		return nil, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.subs.FindByID(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		for i := range payments {
			p := &payments[i]
			if p.Deleted || p.ID == "" {
				continue
			}
			before, err := u.invoices.FindByGatewayID(ctx, tx, p.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			stored, inserted, err := u.recordGatewayPayment(ctx, tx, cur, p, sourceSync)
			if err != nil {
				return err
			}
			switch {
			case inserted:
				res.InvoicesCreated++
			case before != nil && before.Status != stored.Status:
				res.InvoicesUpdated++
			}
			if cur, err = u.subs.FindByID(ctx, tx, sub.ID); err != nil {
				return err
			}
		}

		if gs.Deleted {
			now := time.Now()
			if _, err := u.setSubscriptionStatus(ctx, tx, sub.ID, model.SubscriptionStatusCancelled, &now); err != nil {
				return err
			}
		}

		if cur, err = u.subs.FindByID(ctx, tx, sub.ID); err != nil {
			return err
		}
		res.Subscription = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int("created", res.InvoicesCreated).Int("updated", res.InvoicesUpdated).
		Str("status", string(res.Subscription.Status)).Msg("subscription synced")
	return res, nil
}

func (u *reconciliationUC) SyncStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	subs, err := u.subs.ListStalePending(ctx, repository.NoTX, olderThan, limit)
	if err != nil {
		return 0, err
	}
	synced := 0
	for _, s := range subs {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		_, err := u.SyncSubscription(ctx, s.ID)
		// every attempt moves the row back in the queue so a large backlog
		// is worked through instead of retrying the same oldest rows
		if merr := u.subs.MarkSynced(ctx, repository.NoTX, s.ID); merr != nil {
			u.log.Warn().Err(merr).Str("subscription_id", s.ID).Msg("mark synced failed")
		}
		if err != nil {
			u.log.Warn().Err(err).Str("subscription_id", s.ID).Msg("stale subscription sync failed")
			continue
		}
		synced++
	}
	return synced, nil
}
