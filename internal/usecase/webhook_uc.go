// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/domain/ports/repository"
	"agroconecta-billing/internal/infra/logging"
	"agroconecta-billing/internal/infra/metrics"
)

// Gateway webhook event names.
const (
	EventPaymentCreated      = "PAYMENT_CREATED"
	EventPaymentUpdated      = "PAYMENT_UPDATED"
	EventPaymentConfirmed    = "PAYMENT_CONFIRMED"
	EventPaymentReceived     = "PAYMENT_RECEIVED"
	EventPaymentOverdue      = "PAYMENT_OVERDUE"
	EventPaymentRefunded     = "PAYMENT_REFUNDED"
	EventSubscriptionCreated = "SUBSCRIPTION_CREATED"
	EventSubscriptionUpdated = "SUBSCRIPTION_UPDATED"
	EventSubscriptionDeleted = "SUBSCRIPTION_DELETED"
)

var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase applies gateway callbacks to local state. Handle only fails
// for malformed payloads (domain.ErrInvalidArgument) or storage errors; an
// unknown event or an id with no local counterpart is a successful no-op.
type WebhookUseCase interface {
	Handle(ctx context.Context, payload []byte) (model.WebhookOutcome, error)
}

type webhookUC struct {
	ledger
	events  repository.WebhookEventRepository
	gateway adapter.PaymentGateway
	tm      repository.TransactionManager
	log     *zerolog.Logger
}

func NewWebhookUseCase(
	subscribers repository.SubscriberRepository,
	subs repository.SubscriptionRepository,
	invoices repository.InvoiceRepository,
	events repository.WebhookEventRepository,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *webhookUC {
	l := logger.With().Str("component", "webhook").Logger()
	return &webhookUC{
		ledger:  ledger{subscribers: subscribers, subs: subs, invoices: invoices},
		events:  events,
		gateway: gateway,
		tm:      tm,
		log:     &l,
	}
}

func (u *webhookUC) Handle(ctx context.Context, payload []byte) (model.WebhookOutcome, error) {
	defer logging.TraceDuration(u.log, "WebhookUC.Handle")()
	log := logging.With(ctx, u.log)

	ev, err := u.gateway.DecodeEvent(payload)
	if err != nil {
		u.audit(ctx, &model.WebhookEvent{Payload: payload, Outcome: model.WebhookOutcomeFailed, Error: err.Error()})
		metrics.IncWebhookEvent("invalid", string(model.WebhookOutcomeFailed))
		return model.WebhookOutcomeFailed, fmt.Errorf("decode webhook: %w", domain.ErrInvalidArgument)
	}

	outcome, objectID, err := u.dispatch(ctx, ev)
	rec := &model.WebhookEvent{Event: ev.Event, GatewayObjectID: objectID, Payload: payload, Outcome: outcome}
	if err != nil {
		rec.Outcome = model.WebhookOutcomeFailed
		rec.Error = err.Error()
	}
	u.audit(ctx, rec)
	metrics.IncWebhookEvent(ev.Event, string(rec.Outcome))

	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err)
	}
	evt.Str("event", ev.Event).Str("object_id", objectID).Str("outcome", string(rec.Outcome)).Msg("webhook processed")

	if err != nil {
		return model.WebhookOutcomeFailed, err
	}
	return outcome, nil
}

func (u *webhookUC) dispatch(ctx context.Context, ev *adapter.GatewayEvent) (model.WebhookOutcome, string, error) {
	switch ev.Event {
	case EventPaymentCreated:
		if ev.Payment == nil || ev.Payment.ID == "" {
			return model.WebhookOutcomeFailed, "", fmt.Errorf("%s without payment: %w", ev.Event, domain.ErrInvalidArgument)
		}
		o, err := u.paymentCreated(ctx, ev.Payment)
		return o, ev.Payment.ID, err

	case EventPaymentUpdated, EventPaymentConfirmed, EventPaymentReceived, EventPaymentOverdue, EventPaymentRefunded:
		if ev.Payment == nil || ev.Payment.ID == "" {
			return model.WebhookOutcomeFailed, "", fmt.Errorf("%s without payment: %w", ev.Event, domain.ErrInvalidArgument)
		}
		to, paid := paymentEventTarget(ev.Event, ev.Payment)
		o, err := u.paymentStatus(ctx, ev.Payment.ID, to, paid)
		return o, ev.Payment.ID, err

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		if ev.Subscription == nil || ev.Subscription.ID == "" {
			return model.WebhookOutcomeFailed, "", fmt.Errorf("%s without subscription: %w", ev.Event, domain.ErrInvalidArgument)
		}
		to := MapSubscriptionStatus(ev.Subscription.Status)
		if ev.Event == EventSubscriptionDeleted || ev.Subscription.Deleted {
			to = model.SubscriptionStatusCancelled
		}
		o, err := u.subscriptionStatus(ctx, ev.Subscription.ID, to)
		return o, ev.Subscription.ID, err

	case EventSubscriptionCreated:
		// local rows are created by the lifecycle operations themselves
		id := ""
		if ev.Subscription != nil {
			id = ev.Subscription.ID
		}
		return model.WebhookOutcomeIgnored, id, nil

	default:
		return model.WebhookOutcomeIgnored, "", nil
	}
}

// paymentEventTarget resolves the invoice status and paid date an event carries.
func paymentEventTarget(event string, p *adapter.GatewayPayment) (model.InvoiceStatus, *time.Time) {
	switch event {
	case EventPaymentConfirmed, EventPaymentReceived:
		paid := p.PaidAt()
		if paid == nil {
			now := time.Now()
			paid = &now
		}
		return model.InvoiceStatusConfirmed, paid
	case EventPaymentOverdue:
		return model.InvoiceStatusOverdue, nil
	case EventPaymentRefunded:
		return model.InvoiceStatusRefunded, nil
	default:
		return MapPaymentStatus(p.Status), p.PaidAt()
	}
}

func (u *webhookUC) paymentCreated(ctx context.Context, p *adapter.GatewayPayment) (model.WebhookOutcome, error) {
	outcome := model.WebhookOutcomeApplied
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.invoices.FindByGatewayID(ctx, tx, p.ID); err == nil {
			outcome = model.WebhookOutcomeDuplicate
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if p.SubscriptionID == "" {
			outcome = model.WebhookOutcomeUnmatched
			return nil
		}
		sub, err := u.subs.FindByGatewayID(ctx, tx, p.SubscriptionID)
		if errors.Is(err, domain.ErrNotFound) {
			outcome = model.WebhookOutcomeUnmatched
			return nil
		}
		if err != nil {
			return err
		}

		_, inserted, err := u.recordGatewayPayment(ctx, tx, sub, p, sourceWebhook)
		if err != nil {
			return err
		}
		if !inserted {
			outcome = model.WebhookOutcomeDuplicate
		}
		return nil
	})
	return outcome, err
}

func (u *webhookUC) paymentStatus(ctx context.Context, gatewayPaymentID string, to model.InvoiceStatus, paid *time.Time) (model.WebhookOutcome, error) {
	outcome := model.WebhookOutcomeApplied
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		inv, err := u.invoices.FindByGatewayID(ctx, tx, gatewayPaymentID)
		if errors.Is(err, domain.ErrNotFound) {
			outcome = model.WebhookOutcomeUnmatched
			return nil
		}
		if err != nil {
			return err
		}
		changed, err := u.applyInvoiceStatus(ctx, tx, inv, to, paid, sourceWebhook)
		if err != nil {
			return err
		}
		if !changed {
			outcome = model.WebhookOutcomeDuplicate
		}
		return nil
	})
	return outcome, err
}

func (u *webhookUC) subscriptionStatus(ctx context.Context, gatewaySubscriptionID string, to model.SubscriptionStatus) (model.WebhookOutcome, error) {
	outcome := model.WebhookOutcomeApplied
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByGatewayID(ctx, tx, gatewaySubscriptionID)
		if errors.Is(err, domain.ErrNotFound) {
			outcome = model.WebhookOutcomeUnmatched
			return nil
		}
		if err != nil {
			return err
		}
		var end *time.Time
		if to == model.SubscriptionStatusCancelled {
			now := time.Now()
			end = &now
		}
		changed, err := u.setSubscriptionStatus(ctx, tx, sub.ID, to, end)
		if err != nil {
			return err
		}
		if !changed {
			outcome = model.WebhookOutcomeDuplicate
		}
		return nil
	})
	return outcome, err
}

// audit appends the delivery to the webhook log. Failures never fail the webhook.
func (u *webhookUC) audit(ctx context.Context, ev *model.WebhookEvent) {
	ev.ID = ulid.Make().String()
	ev.ReceivedAt = time.Now()
	if err := u.events.Save(context.WithoutCancel(ctx), repository.NoTX, ev); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Str("event", ev.Event).Msg("webhook audit write failed")
	}
}
