// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/domain/ports/repository"
	"agroconecta-billing/internal/infra/logging"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase exposes the subscriber-facing lifecycle operations.
type SubscriptionUseCase interface {
	// Create subscribes to a plan; the payer chooses the billing type at checkout
	// unless one is given.
	Create(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResult, error)
	// PayDirect subscribes and charges the first invoice with an explicit
	// billing type, optionally forwarding credit card data.
	PayDirect(ctx context.Context, req PayDirectRequest) (*SubscriptionResult, error)
	Cancel(ctx context.Context, requester model.SubscriberRef, subscriptionID string) (*model.Subscription, error)
	// Reactivate starts a new subscription (new row, new gateway subscription)
	// for the plan of a subscription that is no longer active.
	Reactivate(ctx context.Context, requester model.SubscriberRef, subscriptionID string) (*SubscriptionResult, error)
	Current(ctx context.Context, requester model.SubscriberRef) (*CurrentSubscription, error)
}

type CreateSubscriptionRequest struct {
	Subscriber  model.SubscriberRef
	PlanID      string
	BillingType model.PaymentMethod
	RemoteIP    string
}

type PayDirectRequest struct {
	CreateSubscriptionRequest
	CreditCard       *adapter.CreditCard
	CreditCardHolder *adapter.CreditCardHolder
}

// SubscriptionResult is returned by the operations that may bill. When
// PaymentPending is true the subscription exists but the gateway has not
// produced its first invoice yet.
type SubscriptionResult struct {
	Subscription   *model.Subscription
	Invoice        *model.Invoice
	PaymentURL     string
	PaymentPending bool
}

type CurrentSubscription struct {
	Subscription *model.Subscription
	Plan         *model.Plan
	Invoices     []*model.Invoice
}

// SubscriptionOptions carries the billing policy knobs from configuration.
type SubscriptionOptions struct {
	FirstDueInDays int
	DefaultCycle   string
	LockTTL        time.Duration
}

type subscriptionUC struct {
	ledger
	plans   repository.PlanRepository
	gateway adapter.PaymentGateway
	locker  adapter.Locker
	tm      repository.TransactionManager
	opts    SubscriptionOptions
	log     *zerolog.Logger
}

func NewSubscriptionUseCase(
	subscribers repository.SubscriberRepository,
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	invoices repository.InvoiceRepository,
	gateway adapter.PaymentGateway,
	locker adapter.Locker,
	tm repository.TransactionManager,
	opts SubscriptionOptions,
	logger *zerolog.Logger,
) *subscriptionUC {
	if opts.FirstDueInDays <= 0 {
		opts.FirstDueInDays = 3
	}
	if opts.DefaultCycle == "" {
		opts.DefaultCycle = adapter.GatewayCycleMonthly
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &subscriptionUC{
		ledger:  ledger{subscribers: subscribers, subs: subs, invoices: invoices},
		plans:   plans,
		gateway: gateway,
		locker:  locker,
		tm:      tm,
		opts:    opts,
		log:     logger,
	}
}

func subscriberLockKey(ref model.SubscriberRef) string { return "lock:subscriber:" + ref.String() }

func subscriptionLockKey(id string) string { return "lock:subscription:" + id }

// withLock serializes gateway-touching operations on the same key.
func (u *subscriptionUC) withLock(ctx context.Context, key string, fn func() error) error {
	token, err := u.locker.TryLock(ctx, key, u.opts.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			return err
		}
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer func() {
		// the lock must be released even when the request context is gone
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			u.log.Warn().Err(err).Str("key", key).Msg("unlock failed")
		}
	}()
	return fn()
}

func (u *subscriptionUC) Create(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResult, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Create")()
	if req.BillingType == "" {
		req.BillingType = model.PaymentMethodUndefined
	}
	return u.start(ctx, req, nil, "")
}

func (u *subscriptionUC) PayDirect(ctx context.Context, req PayDirectRequest) (*SubscriptionResult, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.PayDirect")()
	switch req.BillingType {
	case model.PaymentMethodPix, model.PaymentMethodBoleto:
	case model.PaymentMethodCreditCard:
		if req.CreditCard == nil || req.CreditCardHolder == nil {
			return nil, fmt.Errorf("credit card and holder data are required: %w", domain.ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("billing type %q: %w", req.BillingType, domain.ErrInvalidArgument)
	}
	return u.start(ctx, req.CreateSubscriptionRequest, &req, "")
}

func (u *subscriptionUC) Reactivate(ctx context.Context, requester model.SubscriberRef, subscriptionID string) (*SubscriptionResult, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Reactivate")()

	prev, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !prev.OwnedBy(requester) {
		return nil, domain.ErrForbidden
	}
	if prev.Status == model.SubscriptionStatusActive {
		return nil, domain.ErrAlreadyActive
	}

	req := CreateSubscriptionRequest{
		Subscriber:  requester,
		PlanID:      prev.PlanID,
		BillingType: prev.BillingType,
	}
	return u.start(ctx, req, nil, prev.ID)
}

// start runs the shared subscribe flow under the subscriber lock. reactivating
// names the subscription being replaced, if any.
func (u *subscriptionUC) start(ctx context.Context, req CreateSubscriptionRequest, direct *PayDirectRequest, reactivating string) (*SubscriptionResult, error) {
	if req.Subscriber.IsZero() || !req.Subscriber.Kind.Valid() {
		return nil, domain.ErrUnauthenticated
	}
	if req.PlanID == "" {
		return nil, fmt.Errorf("plan_id is required: %w", domain.ErrInvalidArgument)
	}
	ctx = logging.WithSubscriber(ctx, string(req.Subscriber.Kind), req.Subscriber.ID)
	log := logging.With(ctx, u.log)

	var res *SubscriptionResult
	err := u.withLock(ctx, subscriberLockKey(req.Subscriber), func() error {
		subscriber, err := u.subscribers.FindByRef(ctx, repository.NoTX, req.Subscriber)
		if err != nil {
			return err
		}
		plan, err := u.plans.FindByID(ctx, repository.NoTX, req.PlanID)
		if err != nil {
			return err
		}
		if !plan.Active {
			return fmt.Errorf("plan %s is not available: %w", plan.ID, domain.ErrInvalidArgument)
		}
		if plan.Category != req.Subscriber.Kind {
			return fmt.Errorf("plan %s is not offered to %s: %w", plan.ID, req.Subscriber.Kind, domain.ErrInvalidArgument)
		}

		prev, err := u.subs.FindLatestBySubscriber(ctx, repository.NoTX, req.Subscriber)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if prev != nil && prev.Status == model.SubscriptionStatusActive {
			return domain.ErrAlreadyActive
		}
		// predecessors are retired only once the replacement is certain, so a
		// failed create leaves the current subscription untouched
		replaced := []*model.Subscription{}
		if prev != nil && prev.Status != model.SubscriptionStatusCancelled {
			replaced = append(replaced, prev)
		}
		if reactivating != "" && (prev == nil || prev.ID != reactivating) {
			old, err := u.subs.FindByID(ctx, repository.NoTX, reactivating)
			if err != nil {
				return err
			}
			if old.Status == model.SubscriptionStatusActive {
				return domain.ErrAlreadyActive
			}
			if old.Status != model.SubscriptionStatusCancelled {
				replaced = append(replaced, old)
			}
		}

		sub, err := model.NewSubscription(req.Subscriber, plan, req.BillingType)
		if err != nil {
			return err
		}

		if plan.IsFree() {
			for _, old := range replaced {
				if old.HasGatewaySubscription() {
					return fmt.Errorf("subscription %s is still billed by the gateway, cancel it first: %w", old.ID, domain.ErrConflict)
				}
			}
			if err := u.persistNew(ctx, sub, replaced); err != nil {
				return err
			}
			log.Info().Str("subscription_id", sub.ID).Str("plan_id", plan.ID).Msg("free subscription activated")
			res = &SubscriptionResult{Subscription: sub}
			return nil
		}

		customerID, err := u.ensureCustomer(ctx, subscriber)
		if err != nil {
			return err
		}

		in := adapter.CreateSubscriptionInput{
			CustomerID:        customerID,
			BillingType:       gatewayBillingType(req.BillingType),
			Value:             plan.Price,
			NextDueDate:       time.Now().AddDate(0, 0, u.opts.FirstDueInDays),
			Cycle:             u.cycleFor(plan),
			Description:       plan.Name,
			ExternalReference: sub.ID,
			RemoteIP:          req.RemoteIP,
		}
		if direct != nil {
			in.CreditCard = direct.CreditCard
			in.CreditCardHolder = direct.CreditCardHolder
		}
		gs, err := u.gateway.CreateSubscription(ctx, in)
		if err != nil {
			log.Error().Err(err).Str("op", "create_subscription").Msg("gateway subscription not created")
			return err
		}
		sub.GatewaySubscriptionID = &gs.ID

		for _, old := range replaced {
			if err := u.cancelAtGateway(ctx, old); err != nil {
				u.dropGatewaySubscription(ctx, gs.ID)
				return err
			}
		}

		if err := u.persistNew(ctx, sub, replaced); err != nil {
			log.Error().Err(err).Str("gateway_subscription_id", gs.ID).Msg("local subscription insert failed; cancelling gateway subscription")
			u.dropGatewaySubscription(ctx, gs.ID)
			return err
		}

		res = u.attachFirstInvoice(ctx, sub)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (u *subscriptionUC) cycleFor(plan *model.Plan) string {
	switch plan.BillingPeriod {
	case model.BillingPeriodMonthly:
		return adapter.GatewayCycleMonthly
	case model.BillingPeriodQuarterly:
		return adapter.GatewayCycleQuarterly
	case model.BillingPeriodYearly:
		return adapter.GatewayCycleYearly
	default:
		return u.opts.DefaultCycle
	}
}

// ensureCustomer creates the gateway customer on first use and persists its
// id right away so a retry never creates a second customer.
func (u *subscriptionUC) ensureCustomer(ctx context.Context, s *model.Subscriber) (string, error) {
	if s.HasGatewayCustomer() {
		return *s.GatewayCustomerID, nil
	}
	id, err := u.gateway.CreateCustomer(ctx, adapter.GatewayCustomer{
		Name:              s.Name,
		Email:             s.Email,
		CpfCnpj:           s.CpfCnpj,
		Phone:             s.Phone,
		ExternalReference: s.Ref().String(),
	})
	if err != nil {
		return "", err
	}
	if err := u.subscribers.SetGatewayCustomerID(ctx, repository.NoTX, s.Ref(), id); err != nil {
		logging.With(ctx, u.log).Error().Err(err).Str("gateway_customer_id", id).Msg("gateway customer created but not persisted")
		return "", err
	}
	s.GatewayCustomerID = &id
	return id, nil
}

// persistNew cancels the replaced subscriptions and inserts sub in one
// transaction.
func (u *subscriptionUC) persistNew(ctx context.Context, sub *model.Subscription, replaced []*model.Subscription) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, old := range replaced {
			if _, err := u.cancelInTx(ctx, tx, old.ID); err != nil {
				return err
			}
		}
		if err := u.subs.Create(ctx, tx, sub); err != nil {
			return err
		}
		return u.syncSubscriberCache(ctx, tx, sub.Subscriber)
	})
}

// attachFirstInvoice fetches the gateway's first invoice once. Any failure
// here leaves the subscription PENDENTE without an invoice, which the
// reconciler fills in later.
func (u *subscriptionUC) attachFirstInvoice(ctx context.Context, sub *model.Subscription) *SubscriptionResult {
	log := logging.With(ctx, u.log).With().Str("subscription_id", sub.ID).Logger()
	res := &SubscriptionResult{Subscription: sub, PaymentPending: true}

	payments, err := u.gateway.ListSubscriptionPayments(ctx, *sub.GatewaySubscriptionID)
	if err != nil {
		log.Warn().Err(err).Str("op", "list_subscription_payments").Msg("first invoice not fetched")
		return res
	}
	if len(payments) == 0 {
		log.Info().Msg("gateway has no invoice yet; checkout pending")
		return res
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].DueDate.Before(payments[j].DueDate) })
	first := payments[0]

	var inv *model.Invoice
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		stored, _, err := u.recordGatewayPayment(ctx, tx, sub, &first, sourceCreate)
		if err != nil {
			return err
		}
		inv = stored
		fresh, err := u.subs.FindByID(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		*sub = *fresh
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("first invoice not persisted")
		return res
	}

	res.Invoice = inv
	res.PaymentURL = inv.InvoiceURL
	res.PaymentPending = false
	return res
}

// dropGatewaySubscription undoes a gateway subscription that has no local row.
func (u *subscriptionUC) dropGatewaySubscription(ctx context.Context, gatewayID string) {
	if err := u.gateway.CancelSubscription(context.WithoutCancel(ctx), gatewayID); err != nil {
		logging.With(ctx, u.log).Error().Err(err).Str("gateway_subscription_id", gatewayID).Msg("orphan gateway subscription left behind")
	}
}

func (u *subscriptionUC) cancelAtGateway(ctx context.Context, sub *model.Subscription) error {
	if !sub.HasGatewaySubscription() {
		return nil
	}
	err := u.gateway.CancelSubscription(ctx, *sub.GatewaySubscriptionID)
	var gerr *domain.GatewayError
	if errors.As(err, &gerr) && gerr.StatusCode == http.StatusNotFound {
		// already gone at the gateway
		return nil
	}
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Str("op", "cancel_subscription").
			Str("subscription_id", sub.ID).Msg("gateway cancel failed; local state unchanged")
	}
	return err
}

// markCancelled moves the subscription to CANCELADO with end_date=now.
func (u *subscriptionUC) markCancelled(ctx context.Context, id string) (*model.Subscription, error) {
	var out *model.Subscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.cancelInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := u.syncSubscriberCache(ctx, tx, cur.Subscriber); err != nil {
			return err
		}
		out = cur
		return nil
	})
	return out, err
}

func (u *subscriptionUC) cancelInTx(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	cur, err := u.subs.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == model.SubscriptionStatusCancelled {
		return cur, nil
	}
	now := time.Now()
	ok, err := u.subs.TransitionStatus(ctx, tx, id, []model.SubscriptionStatus{cur.Status}, model.SubscriptionStatusCancelled, &now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrConflict
	}
	cur.Status = model.SubscriptionStatusCancelled
	cur.EndDate = &now
	return cur, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, requester model.SubscriberRef, subscriptionID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Cancel")()
	ctx = logging.WithSubscriber(ctx, string(requester.Kind), requester.ID)

	var out *model.Subscription
	err := u.withLock(ctx, subscriptionLockKey(subscriptionID), func() error {
		sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
		if err != nil {
			return err
		}
		if !sub.OwnedBy(requester) {
			return domain.ErrForbidden
		}
		if sub.Status == model.SubscriptionStatusCancelled {
			out = sub
			return nil
		}
		if err := u.cancelAtGateway(ctx, sub); err != nil {
			return err
		}
		out, err = u.markCancelled(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.With(ctx, u.log).Info().Str("subscription_id", out.ID).Msg("subscription cancelled")
	return out, nil
}

func (u *subscriptionUC) Current(ctx context.Context, requester model.SubscriberRef) (*CurrentSubscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Current")()

	sub, err := u.subs.FindLatestBySubscriber(ctx, repository.NoTX, requester)
	if err != nil {
		return nil, err
	}
	plan, err := u.plans.FindByID(ctx, repository.NoTX, sub.PlanID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	invoices, err := u.invoices.ListBySubscription(ctx, repository.NoTX, sub.ID)
	if err != nil {
		return nil, err
	}
	return &CurrentSubscription{Subscription: sub, Plan: plan, Invoices: invoices}, nil
}
