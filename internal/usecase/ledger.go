package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/domain/ports/repository"
	"agroconecta-billing/internal/infra/metrics"
)

// Sources of an invoice confirmation, used as a metric label.
const (
	sourceWebhook = "webhook"
	sourceAdmin   = "admin"
	sourceSync    = "sync"
	sourceCreate  = "create"
)

// ledger holds the state transitions shared by every path that mutates
// subscriptions and invoices: lifecycle operations, webhooks and manual or
// scheduled reconciliation. All methods expect to run inside a transaction
// so that rows read through tx stay locked until commit.
type ledger struct {
	subscribers repository.SubscriberRepository
	subs        repository.SubscriptionRepository
	invoices    repository.InvoiceRepository
}

// applyInvoiceStatus moves inv to `to` when the transition is allowed and
// propagates CONFIRMADO/VENCIDO to the parent subscription and the subscriber
// cache. A CONFIRMADO invoice re-propagates even when unchanged so a repeated
// confirmation heals a subscription left behind. It reports whether the
// invoice row changed.
func (l *ledger) applyInvoiceStatus(ctx context.Context, tx repository.Tx, inv *model.Invoice, to model.InvoiceStatus, paidDate *time.Time, source string) (bool, error) {
	if inv.Status == to {
		if to == model.InvoiceStatusConfirmed {
			if _, err := l.setSubscriptionStatus(ctx, tx, inv.SubscriptionID, model.SubscriptionStatusActive, nil); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	if !inv.Status.CanTransitionTo(to) {
		return false, nil
	}

	if to == model.InvoiceStatusConfirmed && paidDate == nil {
		now := time.Now()
		paidDate = &now
	}
	if to != model.InvoiceStatusConfirmed {
		// only a settlement carries a paid date into the row
		paidDate = nil
	}

	ok, err := l.invoices.TransitionStatus(ctx, tx, inv.ID, inv.Status, to, paidDate)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	inv.Status = to
	if paidDate != nil {
		inv.PaidDate = paidDate
	}
	if to == model.InvoiceStatusConfirmed {
		metrics.IncInvoiceConfirmed(source)
	}

	if effect, has := to.SubscriptionEffect(); has {
		if _, err := l.setSubscriptionStatus(ctx, tx, inv.SubscriptionID, effect, nil); err != nil {
			return true, err
		}
	}
	return true, nil
}

// setSubscriptionStatus performs a conditional transition of the subscription
// and re-syncs its subscriber's cache. Disallowed transitions (for instance
// leaving CANCELADO) are skipped silently.
func (l *ledger) setSubscriptionStatus(ctx context.Context, tx repository.Tx, subscriptionID string, to model.SubscriptionStatus, endDate *time.Time) (bool, error) {
	sub, err := l.subs.FindByID(ctx, tx, subscriptionID)
	if err != nil {
		return false, err
	}

	changed := false
	if sub.Status != to && sub.Status.CanTransitionTo(to) {
		changed, err = l.subs.TransitionStatus(ctx, tx, sub.ID, model.SubscriptionSourcesFor(to), to, endDate)
		if err != nil {
			return false, err
		}
		if changed {
			metrics.IncSubscriptionTransition(to)
		}
	}

	if err := l.syncSubscriberCache(ctx, tx, sub.Subscriber); err != nil {
		return changed, err
	}
	return changed, nil
}

// syncSubscriberCache recomputes the subscriber's denormalized fields from
// their most recent subscription.
func (l *ledger) syncSubscriberCache(ctx context.Context, tx repository.Tx, ref model.SubscriberRef) error {
	latest, err := l.subs.FindLatestBySubscriber(ctx, tx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return l.subscribers.UpdateSubscriptionCache(ctx, tx, ref, nil, nil)
	}
	if err != nil {
		return err
	}
	status := latest.Status
	var url *string
	if status == model.SubscriptionStatusPending || status == model.SubscriptionStatusOverdue {
		url = latest.PendingPaymentURL
	}
	return l.subscribers.UpdateSubscriptionCache(ctx, tx, ref, &status, url)
}

// recordGatewayPayment makes sure a local invoice exists for p and brings it
// to the mapped gateway status. It reports whether a row was inserted.
func (l *ledger) recordGatewayPayment(ctx context.Context, tx repository.Tx, sub *model.Subscription, p *adapter.GatewayPayment, source string) (*model.Invoice, bool, error) {
	inv := invoiceFromGateway(sub, p)
	inserted, err := l.invoices.InsertIfAbsent(ctx, tx, inv)
	if err != nil {
		return nil, false, err
	}

	stored, err := l.invoices.FindByGatewayID(ctx, tx, p.ID)
	if err != nil {
		return nil, inserted, err
	}
	if inserted && stored.InvoiceURL != "" && sub.Status == model.SubscriptionStatusPending && sub.PendingPaymentURL == nil {
		url := stored.InvoiceURL
		if err := l.subs.SetPendingPaymentURL(ctx, tx, sub.ID, &url); err != nil {
			return nil, inserted, err
		}
		sub.PendingPaymentURL = &url
		if err := l.syncSubscriberCache(ctx, tx, sub.Subscriber); err != nil {
			return nil, inserted, err
		}
	}

	if target := MapPaymentStatus(p.Status); target != model.InvoiceStatusPending {
		if _, err := l.applyInvoiceStatus(ctx, tx, stored, target, p.PaidAt(), source); err != nil {
			return nil, inserted, err
		}
	}
	return stored, inserted, nil
}

// invoiceFromGateway builds a fresh PENDENTE invoice; the gateway status is
// applied afterwards through applyInvoiceStatus so propagation rules hold.
func invoiceFromGateway(sub *model.Subscription, p *adapter.GatewayPayment) *model.Invoice {
	now := time.Now()
	due := p.DueDate
	if due.IsZero() {
		due = now
	}
	return &model.Invoice{
		ID:               uuid.NewString(),
		SubscriptionID:   sub.ID,
		Subscriber:       sub.Subscriber,
		GatewayPaymentID: p.ID,
		InvoiceURL:       p.InvoiceURL,
		Value:            p.Value,
		Status:           model.InvoiceStatusPending,
		BillingType:      MapBillingType(p.BillingType),
		DueDate:          due,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
