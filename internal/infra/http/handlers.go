package http

import (
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/infra/adapters/payment"
	"agroconecta-billing/internal/infra/logging"
	"agroconecta-billing/internal/usecase"
)

const maxWebhookBytes = 1 << 20

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	ref, _ := subscriberFrom(r.Context())
	var req createSubscriptionRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res, err := s.subs.Create(r.Context(), usecase.CreateSubscriptionRequest{
		Subscriber:  ref,
		PlanID:      req.PlanID,
		BillingType: model.PaymentMethod(req.BillingType),
		RemoteIP:    clientIP(r),
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResultResponse(res))
}

func (s *Server) handlePayDirect(w http.ResponseWriter, r *http.Request) {
	ref, _ := subscriberFrom(r.Context())
	var req payDirectRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	card, holder := req.card()
	res, err := s.subs.PayDirect(r.Context(), usecase.PayDirectRequest{
		CreateSubscriptionRequest: usecase.CreateSubscriptionRequest{
			Subscriber:  ref,
			PlanID:      req.PlanID,
			BillingType: model.PaymentMethod(req.BillingType),
			RemoteIP:    clientIP(r),
		},
		CreditCard:       card,
		CreditCardHolder: holder,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResultResponse(res))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ref, _ := subscriberFrom(r.Context())
	sub, err := s.subs.Cancel(r.Context(), ref, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	ref, _ := subscriberFrom(r.Context())
	res, err := s.subs.Reactivate(r.Context(), ref, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResultResponse(res))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ref, _ := subscriberFrom(r.Context())
	cur, err := s.subs.Current(r.Context(), ref)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := currentSubscriptionResponse{
		Subscription: toSubscriptionResponse(cur.Subscription),
		Invoices:     make([]invoiceResponse, 0, len(cur.Invoices)),
	}
	if cur.Plan != nil {
		p := toPlanResponse(cur.Plan)
		out.Plan = &p
	}
	for _, inv := range cur.Invoices {
		out.Invoices = append(out.Invoices, toInvoiceResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWebhook answers 200 for every delivery it could read, including
// unknown events and ids with no local match, so the gateway stops retrying.
// Storage failures answer 500 and the gateway redelivers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !payment.VerifyWebhookToken(s.opts.WebhookToken, r.Header.Get(payment.WebhookTokenHeader)) {
		l := logging.With(r.Context(), s.log)
		l.Warn().Str("remote", r.RemoteAddr).Msg("webhook token mismatch")
		writeStatus(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error(), "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "unreadable body", "")
		return
	}

	outcome, err := s.webhooks.Handle(r.Context(), body)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeStatus(w, http.StatusBadRequest, "malformed webhook", "")
			return
		}
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	inv, err := s.recon.ConfirmPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) handleSyncSubscription(w http.ResponseWriter, r *http.Request) {
	res, err := s.recon.SyncSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Subscription:    toSubscriptionResponse(res.Subscription),
		InvoicesCreated: res.InvoicesCreated,
		InvoicesUpdated: res.InvoicesUpdated,
	})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.List(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	kind := r.URL.Query().Get("category")
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		if !p.Active || (kind != "" && string(p.Category) != kind) {
			continue
		}
		out = append(out, toPlanResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := s.plans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanResponse(p))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	status := http.StatusOK
	for _, hc := range s.health {
		if err := hc.Check(r.Context()); err != nil {
			checks[hc.Name] = "down"
			status = http.StatusServiceUnavailable
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Str("check", hc.Name).Msg("health check failed")
			continue
		}
		checks[hc.Name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// clientIP strips the port that RemoteAddr carries when no proxy header set it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
