package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agroconecta-billing/internal/config"
	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/ports/adapter"
	"agroconecta-billing/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*AsaasGateway)(nil)

const (
	asaasProductionURL = "https://api.asaas.com/v3"
	asaasSandboxURL    = "https://api-sandbox.asaas.com/v3"
	asaasDateLayout    = "2006-01-02"

	// bodies larger than this are not gateway JSON
	maxResponseBody = 1 << 20
)

// AsaasGateway implements adapter.PaymentGateway against the Asaas REST API v3.
// It never retries; callers decide what is safe to repeat.
type AsaasGateway struct {
	apiKey       string
	baseURL      string
	walletID     string
	splitPercent decimal.Decimal
	client       *http.Client
	logger       *zerolog.Logger
}

func NewAsaasGateway(cfg config.AsaasConfig, logger *zerolog.Logger) (*AsaasGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("asaas api key empty")
	}
	base := cfg.BaseURL
	if base == "" {
		base = asaasProductionURL
		if cfg.Sandbox {
			base = asaasSandboxURL
		}
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid asaas base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "gateway").Str("gateway", "asaas").Logger()
	return &AsaasGateway{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(base, "/"),
		walletID:     cfg.WalletID,
		splitPercent: decimal.NewFromFloat(cfg.SplitPercent),
		client:       &http.Client{Timeout: timeout},
		logger:       &l,
	}, nil
}

func (g *AsaasGateway) Name() string { return "asaas" }

// --- wire types ---

type asaasCustomer struct {
	ID                string `json:"id,omitempty"`
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	CpfCnpj           string `json:"cpfCnpj,omitempty"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
}

type asaasSplit struct {
	WalletID        string  `json:"walletId"`
	PercentualValue float64 `json:"percentualValue"`
}

type asaasCreditCard struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

type asaasCreditCardHolder struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CpfCnpj       string `json:"cpfCnpj"`
	PostalCode    string `json:"postalCode"`
	AddressNumber string `json:"addressNumber"`
	Phone         string `json:"phone"`
}

type asaasSubscriptionRequest struct {
	Customer             string                 `json:"customer"`
	BillingType          string                 `json:"billingType"`
	Value                float64                `json:"value"`
	NextDueDate          string                 `json:"nextDueDate"`
	Cycle                string                 `json:"cycle"`
	Description          string                 `json:"description,omitempty"`
	ExternalReference    string                 `json:"externalReference,omitempty"`
	CreditCard           *asaasCreditCard       `json:"creditCard,omitempty"`
	CreditCardHolderInfo *asaasCreditCardHolder `json:"creditCardHolderInfo,omitempty"`
	RemoteIP             string                 `json:"remoteIp,omitempty"`
	Split                []asaasSplit           `json:"split,omitempty"`
}

type asaasPaymentRequest struct {
	Customer          string       `json:"customer"`
	BillingType       string       `json:"billingType"`
	Value             float64      `json:"value"`
	DueDate           string       `json:"dueDate"`
	Description       string       `json:"description,omitempty"`
	ExternalReference string       `json:"externalReference,omitempty"`
	Split             []asaasSplit `json:"split,omitempty"`
}

type asaasSubscription struct {
	ID          string          `json:"id"`
	Customer    string          `json:"customer"`
	Status      string          `json:"status"`
	BillingType string          `json:"billingType"`
	Value       decimal.Decimal `json:"value"`
	NextDueDate asaasDate       `json:"nextDueDate"`
	Deleted     bool            `json:"deleted"`
}

type asaasPayment struct {
	ID            string          `json:"id"`
	Subscription  string          `json:"subscription"`
	Customer      string          `json:"customer"`
	Status        string          `json:"status"`
	BillingType   string          `json:"billingType"`
	InvoiceURL    string          `json:"invoiceUrl"`
	Value         decimal.Decimal `json:"value"`
	DueDate       asaasDate       `json:"dueDate"`
	PaymentDate   asaasDate       `json:"paymentDate"`
	ConfirmedDate asaasDate       `json:"confirmedDate"`
	Deleted       bool            `json:"deleted"`
}

type asaasList[T any] struct {
	HasMore    bool `json:"hasMore"`
	TotalCount int  `json:"totalCount"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Data       []T  `json:"data"`
}

type asaasErrorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

type asaasEvent struct {
	ID           string             `json:"id"`
	Event        string             `json:"event"`
	Payment      *asaasPayment      `json:"payment"`
	Subscription *asaasSubscription `json:"subscription"`
}

// asaasDate reads "YYYY-MM-DD"; null and "" stay zero.
type asaasDate struct{ time.Time }

func (d *asaasDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if len(s) > len(asaasDateLayout) {
		s = s[:len(asaasDateLayout)]
	}
	t, err := time.ParseInLocation(asaasDateLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("asaas date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d asaasDate) ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func (s *asaasSubscription) toPort() *adapter.GatewaySubscription {
	return &adapter.GatewaySubscription{
		ID:          s.ID,
		CustomerID:  s.Customer,
		Status:      s.Status,
		BillingType: s.BillingType,
		Value:       s.Value,
		NextDueDate: s.NextDueDate.Time,
		Deleted:     s.Deleted,
	}
}

func (p *asaasPayment) toPort() adapter.GatewayPayment {
	return adapter.GatewayPayment{
		ID:             p.ID,
		SubscriptionID: p.Subscription,
		CustomerID:     p.Customer,
		Status:         p.Status,
		BillingType:    p.BillingType,
		InvoiceURL:     p.InvoiceURL,
		Value:          p.Value,
		DueDate:        p.DueDate.Time,
		PaymentDate:    p.PaymentDate.ptr(),
		ConfirmedDate:  p.ConfirmedDate.ptr(),
		Deleted:        p.Deleted,
	}
}

func (g *AsaasGateway) split() []asaasSplit {
	if g.walletID == "" || !g.splitPercent.IsPositive() {
		return nil
	}
	return []asaasSplit{{WalletID: g.walletID, PercentualValue: g.splitPercent.InexactFloat64()}}
}

// --- operations ---

func (g *AsaasGateway) CreateCustomer(ctx context.Context, c adapter.GatewayCustomer) (string, error) {
	var out asaasCustomer
	if err := g.do(ctx, "create_customer", http.MethodPost, "/customers", toAsaasCustomer(c), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &domain.GatewayError{Op: "create_customer", Detail: "empty customer id", Err: domain.ErrGatewayUnavailable}
	}
	return out.ID, nil
}

func (g *AsaasGateway) UpdateCustomer(ctx context.Context, customerID string, c adapter.GatewayCustomer) error {
	return g.do(ctx, "update_customer", http.MethodPut, "/customers/"+url.PathEscape(customerID), toAsaasCustomer(c), nil)
}

func toAsaasCustomer(c adapter.GatewayCustomer) asaasCustomer {
	return asaasCustomer{
		Name:              c.Name,
		Email:             c.Email,
		CpfCnpj:           c.CpfCnpj,
		MobilePhone:       c.Phone,
		ExternalReference: c.ExternalReference,
	}
}

func (g *AsaasGateway) CreateSubscription(ctx context.Context, in adapter.CreateSubscriptionInput) (*adapter.GatewaySubscription, error) {
	req := asaasSubscriptionRequest{
		Customer:          in.CustomerID,
		BillingType:       in.BillingType,
		Value:             in.Value.InexactFloat64(),
		NextDueDate:       in.NextDueDate.Format(asaasDateLayout),
		Cycle:             in.Cycle,
		Description:       in.Description,
		ExternalReference: in.ExternalReference,
		RemoteIP:          in.RemoteIP,
		Split:             g.split(),
	}
	if in.CreditCard != nil {
		cc := asaasCreditCard(*in.CreditCard)
		req.CreditCard = &cc
	}
	if in.CreditCardHolder != nil {
		h := asaasCreditCardHolder(*in.CreditCardHolder)
		req.CreditCardHolderInfo = &h
	}

	var out asaasSubscription
	if err := g.do(ctx, "create_subscription", http.MethodPost, "/subscriptions", req, &out); err != nil {
		return nil, err
	}
	return out.toPort(), nil
}

func (g *AsaasGateway) GetSubscription(ctx context.Context, subscriptionID string) (*adapter.GatewaySubscription, error) {
	var out asaasSubscription
	if err := g.do(ctx, "get_subscription", http.MethodGet, "/subscriptions/"+url.PathEscape(subscriptionID), nil, &out); err != nil {
		return nil, err
	}
	return out.toPort(), nil
}

func (g *AsaasGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return g.do(ctx, "cancel_subscription", http.MethodDelete, "/subscriptions/"+url.PathEscape(subscriptionID), nil, nil)
}

// ListSubscriptionPayments follows the offset pagination until hasMore is false.
func (g *AsaasGateway) ListSubscriptionPayments(ctx context.Context, subscriptionID string) ([]adapter.GatewayPayment, error) {
	const pageSize = 100
	out := make([]adapter.GatewayPayment, 0)
	for offset := 0; ; offset += pageSize {
		path := fmt.Sprintf("/subscriptions/%s/payments?offset=%d&limit=%d", url.PathEscape(subscriptionID), offset, pageSize)
		var page asaasList[asaasPayment]
		if err := g.do(ctx, "list_subscription_payments", http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for i := range page.Data {
			out = append(out, page.Data[i].toPort())
		}
		if !page.HasMore || len(page.Data) == 0 {
			return out, nil
		}
	}
}

func (g *AsaasGateway) CreatePayment(ctx context.Context, in adapter.CreatePaymentInput) (*adapter.GatewayPayment, error) {
	req := asaasPaymentRequest{
		Customer:          in.CustomerID,
		BillingType:       in.BillingType,
		Value:             in.Value.InexactFloat64(),
		DueDate:           in.DueDate.Format(asaasDateLayout),
		Description:       in.Description,
		ExternalReference: in.ExternalReference,
		Split:             g.split(),
	}
	var out asaasPayment
	if err := g.do(ctx, "create_payment", http.MethodPost, "/payments", req, &out); err != nil {
		return nil, err
	}
	p := out.toPort()
	return &p, nil
}

func (g *AsaasGateway) DecodeEvent(payload []byte) (*adapter.GatewayEvent, error) {
	return decodeAsaasEvent(payload)
}

func decodeAsaasEvent(payload []byte) (*adapter.GatewayEvent, error) {
	var ev asaasEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode asaas event: %w", err)
	}
	if ev.Event == "" {
		return nil, errors.New("decode asaas event: missing event")
	}
	out := &adapter.GatewayEvent{ID: ev.ID, Event: ev.Event}
	if ev.Payment != nil {
		p := ev.Payment.toPort()
		out.Payment = &p
	}
	if ev.Subscription != nil {
		out.Subscription = ev.Subscription.toPort()
	}
	return out, nil
}

// --- transport ---

// do sends one request and decodes a 2xx body into out (when non-nil).
// Failures are returned as *domain.GatewayError.
func (g *AsaasGateway) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveGatewayCall(op, gatewayOutcome(err), time.Since(start))
		if err != nil {
			g.logger.Warn().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("gateway call failed")
		}
	}()

	var body io.Reader
	if in != nil {
		b, merr := json.Marshal(in)
		if merr != nil {
			return &domain.GatewayError{Op: op, Detail: merr.Error(), Err: domain.ErrGatewayRejected}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return &domain.GatewayError{Op: op, Detail: err.Error(), Err: domain.ErrGatewayUnavailable}
	}
	req.Header.Set("access_token", g.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "agroconecta-billing")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return transportError(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Detail: "malformed response: " + err.Error(), Err: domain.ErrGatewayUnavailable}
	}
	return nil
}

func transportError(ctx context.Context, op string, err error) error {
	var nerr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout()) {
		return &domain.GatewayError{Op: op, Detail: err.Error(), Err: domain.ErrGatewayTimeout}
	}
	return &domain.GatewayError{Op: op, Detail: err.Error(), Err: domain.ErrGatewayUnavailable}
}

// statusError maps a non-2xx response. An invalid API key (401) is an
// operator problem, not a bad request, so it reports as unavailable.
func statusError(op string, status int, raw []byte) error {
	detail := errorDetail(raw)
	switch {
	case status == http.StatusUnauthorized, status == http.StatusTooManyRequests, status >= 500:
		return &domain.GatewayError{Op: op, StatusCode: status, Detail: detail, Err: domain.ErrGatewayUnavailable}
	case status >= 400:
		return &domain.GatewayError{Op: op, StatusCode: status, Detail: detail, Err: domain.ErrGatewayRejected}
	default:
		return &domain.GatewayError{Op: op, StatusCode: status, Detail: detail, Err: domain.ErrGatewayUnavailable}
	}
}

// maxErrorDetail caps, in runes, how much of a non-JSON error body is kept.
const maxErrorDetail = 200

func errorDetail(raw []byte) string {
	var body asaasErrorBody
	if json.Unmarshal(raw, &body) == nil && len(body.Errors) > 0 {
		parts := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			if e.Description != "" {
				parts = append(parts, e.Description)
			} else if e.Code != "" {
				parts = append(parts, e.Code)
			}
		}
		return strings.Join(parts, "; ")
	}
	s := strings.TrimSpace(string(raw))
	if utf8.RuneCountInString(s) > maxErrorDetail {
		s = string([]rune(s)[:maxErrorDetail])
	}
	return s
}

func gatewayOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrGatewayRejected):
		return "rejected"
	default:
		return "unavailable"
	}
}
