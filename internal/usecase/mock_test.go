//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/domain/ports/repository"
)

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway (adapter) ----

type MockPaymentGateway struct {
	mu    sync.Mutex
	Calls map[string]int

	CreateCustomerFunc           func(ctx context.Context, c adapter.GatewayCustomer) (string, error)
	UpdateCustomerFunc           func(ctx context.Context, id string, c adapter.GatewayCustomer) error
	CreateSubscriptionFunc       func(ctx context.Context, in adapter.CreateSubscriptionInput) (*adapter.GatewaySubscription, error)
	GetSubscriptionFunc          func(ctx context.Context, id string) (*adapter.GatewaySubscription, error)
	CancelSubscriptionFunc       func(ctx context.Context, id string) error
	ListSubscriptionPaymentsFunc func(ctx context.Context, id string) ([]adapter.GatewayPayment, error)
	CreatePaymentFunc            func(ctx context.Context, in adapter.CreatePaymentInput) (*adapter.GatewayPayment, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{Calls: map[string]int{}}
}

func (m *MockPaymentGateway) hit(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[op]++
}

// Total returns the number of outbound calls of any kind.
func (m *MockPaymentGateway) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		n += c
	}
	return n
}

func (m *MockPaymentGateway) Count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) CreateCustomer(ctx context.Context, c adapter.GatewayCustomer) (string, error) {
	m.hit("create_customer")
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, c)
	}
	return "cus_" + uuid.NewString()[:8], nil
}

func (m *MockPaymentGateway) UpdateCustomer(ctx context.Context, id string, c adapter.GatewayCustomer) error {
	m.hit("update_customer")
	if m.UpdateCustomerFunc != nil {
		return m.UpdateCustomerFunc(ctx, id, c)
	}
	return nil
}

func (m *MockPaymentGateway) CreateSubscription(ctx context.Context, in adapter.CreateSubscriptionInput) (*adapter.GatewaySubscription, error) {
	m.hit("create_subscription")
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, in)
	}
	return &adapter.GatewaySubscription{ID: "sub_" + uuid.NewString()[:8], CustomerID: in.CustomerID, Status: "ACTIVE", Value: in.Value}, nil
}

func (m *MockPaymentGateway) GetSubscription(ctx context.Context, id string) (*adapter.GatewaySubscription, error) {
	m.hit("get_subscription")
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, id)
	}
	return &adapter.GatewaySubscription{ID: id, Status: "ACTIVE"}, nil
}

func (m *MockPaymentGateway) CancelSubscription(ctx context.Context, id string) error {
	m.hit("cancel_subscription")
	if m.CancelSubscriptionFunc != nil {
		return m.CancelSubscriptionFunc(ctx, id)
	}
	return nil
}

func (m *MockPaymentGateway) ListSubscriptionPayments(ctx context.Context, id string) ([]adapter.GatewayPayment, error) {
	m.hit("list_subscription_payments")
	if m.ListSubscriptionPaymentsFunc != nil {
		return m.ListSubscriptionPaymentsFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, in adapter.CreatePaymentInput) (*adapter.GatewayPayment, error) {
	m.hit("create_payment")
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, in)
	}
	return &adapter.GatewayPayment{ID: "pay_" + uuid.NewString()[:8], Status: "PENDING", Value: in.Value}, nil
}

// DecodeEvent understands a minimal version of the gateway wire format.
func (m *MockPaymentGateway) DecodeEvent(payload []byte) (*adapter.GatewayEvent, error) {
	var raw struct {
		Event   string `json:"event"`
		Payment *struct {
			ID           string `json:"id"`
			Subscription string `json:"subscription"`
			Status       string `json:"status"`
			BillingType  string `json:"billingType"`
			InvoiceURL   string `json:"invoiceUrl"`
			Value        string `json:"value"`
			DueDate      string `json:"dueDate"`
			PaymentDate  string `json:"paymentDate"`
		} `json:"payment"`
		Subscription *struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Deleted bool   `json:"deleted"`
		} `json:"subscription"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if raw.Event == "" {
		return nil, errors.New("missing event")
	}
	ev := &adapter.GatewayEvent{Event: raw.Event}
	if p := raw.Payment; p != nil {
		gp := &adapter.GatewayPayment{ID: p.ID, SubscriptionID: p.Subscription, Status: p.Status, BillingType: p.BillingType, InvoiceURL: p.InvoiceURL}
		if p.Value != "" {
			gp.Value = decimal.RequireFromString(p.Value)
		}
		if t, err := time.Parse("2006-01-02", p.DueDate); err == nil {
			gp.DueDate = t
		}
		if t, err := time.Parse("2006-01-02", p.PaymentDate); err == nil {
			gp.PaymentDate = &t
		}
		ev.Payment = gp
	}
	if s := raw.Subscription; s != nil {
		ev.Subscription = &adapter.GatewaySubscription{ID: s.ID, Status: s.Status, Deleted: s.Deleted}
	}
	return ev, nil
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	Taken []string
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

// Hold marks key as taken by someone else.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "other"
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockBusy
	}
	tok := uuid.NewString()
	l.held[key] = tok
	l.Taken = append(l.Taken, key)
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// =============================
// Repositories
// =============================

// ---- Mock SubscriberRepository ----

type MockSubscriberRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscriber // by ref string

	SetGatewayCustomerIDFunc func(ctx context.Context, tx repository.Tx, ref model.SubscriberRef, id string) error
}

var _ repository.SubscriberRepository = (*MockSubscriberRepo)(nil)

func NewMockSubscriberRepo() *MockSubscriberRepo {
	return &MockSubscriberRepo{data: map[string]*model.Subscriber{}}
}

func (r *MockSubscriberRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.data[s.Ref().String()] = &cp
	return nil
}

func (r *MockSubscriberRepo) FindByRef(ctx context.Context, tx repository.Tx, ref model.SubscriberRef) (*model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[ref.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriberRepo) SetGatewayCustomerID(ctx context.Context, tx repository.Tx, ref model.SubscriberRef, id string) error {
	if r.SetGatewayCustomerIDFunc != nil {
		return r.SetGatewayCustomerIDFunc(ctx, tx, ref, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[ref.String()]
	if !ok {
		return domain.ErrNotFound
	}
	s.GatewayCustomerID = &id
	return nil
}

func (r *MockSubscriberRepo) UpdateSubscriptionCache(ctx context.Context, tx repository.Tx, ref model.SubscriberRef, status *model.SubscriptionStatus, url *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[ref.String()]
	if !ok {
		return domain.ErrNotFound
	}
	s.SubscriptionStatus = status
	s.PendingPaymentURL = url
	return nil
}

func (r *MockSubscriberRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data), nil
}

// ---- Mock PlanRepository ----

type MockPlanRepo struct {
	mu   sync.Mutex
	data map[string]*model.Plan
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{data: map[string]*model.Plan{}}
}

func (r *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Plan, 0, len(r.data))
	for _, p := range r.data {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu    sync.Mutex
	data  map[string]*model.Subscription
	order []string // insertion order, newest last

	CreateFunc func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: map[string]*model.Subscription{}}
}

func (r *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	r.data[s.ID] = &cp
	r.order = append(r.order, s.ID)
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) FindByGatewayID(ctx context.Context, tx repository.Tx, gid string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data {
		if s.GatewaySubscriptionID != nil && *s.GatewaySubscriptionID == gid {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) FindLatestBySubscriber(ctx context.Context, tx repository.Tx, ref model.SubscriberRef) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		s := r.data[r.order[i]]
		if s.OwnedBy(ref) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from []model.SubscriptionStatus, to model.SubscriptionStatus, endDate *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			if endDate != nil {
				s.EndDate = endDate
			}
			s.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *MockSubscriptionRepo) SetGatewaySubscriptionID(ctx context.Context, tx repository.Tx, id, gid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.GatewaySubscriptionID = &gid
	return nil
}

func (r *MockSubscriptionRepo) SetPendingPaymentURL(ctx context.Context, tx repository.Tx, id string, url *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.PendingPaymentURL = url
	return nil
}

func (r *MockSubscriptionRepo) ListStalePending(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, id := range r.order {
		s := r.data[id]
		if s.Status == model.SubscriptionStatusPending && s.HasGatewaySubscription() && s.UpdatedAt.Before(olderThan) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockSubscriptionRepo) MarkSynced(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (r *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range r.data {
		out[s.Status]++
	}
	return out, nil
}

// Len returns how many subscription rows exist.
func (r *MockSubscriptionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// ---- Mock InvoiceRepository ----

type MockInvoiceRepo struct {
	mu        sync.Mutex
	data      map[string]*model.Invoice
	byGateway map[string]string

	InsertIfAbsentFunc func(ctx context.Context, tx repository.Tx, inv *model.Invoice) (bool, error)
}

var _ repository.InvoiceRepository = (*MockInvoiceRepo)(nil)

func NewMockInvoiceRepo() *MockInvoiceRepo {
	return &MockInvoiceRepo{data: map[string]*model.Invoice{}, byGateway: map[string]string{}}
}

func (r *MockInvoiceRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, inv *model.Invoice) (bool, error) {
	if r.InsertIfAbsentFunc != nil {
		return r.InsertIfAbsentFunc(ctx, tx, inv)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byGateway[inv.GatewayPaymentID]; ok {
		inv.ID = id
		return false, nil
	}
	cp := *inv
	r.data[inv.ID] = &cp
	r.byGateway[inv.GatewayPaymentID] = inv.ID
	return true, nil
}

func (r *MockInvoiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *MockInvoiceRepo) FindByGatewayID(ctx context.Context, tx repository.Tx, gid string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byGateway[gid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.data[id]
	return &cp, nil
}

func (r *MockInvoiceRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subID string) ([]*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Invoice
	for _, inv := range r.data {
		if inv.SubscriptionID == subID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockInvoiceRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.InvoiceStatus, paid *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.data[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	if paid != nil {
		inv.PaidDate = paid
	}
	return true, nil
}

// Len returns how many invoice rows exist.
func (r *MockInvoiceRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// ---- Mock WebhookEventRepository ----

type MockWebhookEventRepo struct {
	mu     sync.Mutex
	Events []*model.WebhookEvent

	SaveErr error
}

var _ repository.WebhookEventRepository = (*MockWebhookEventRepo)(nil)

func (r *MockWebhookEventRepo) Save(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.Events = append(r.Events, &cp)
	return nil
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	mu    sync.Mutex
	Calls int

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func ptr[T any](v T) *T { return &v }
