package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/infra/metrics"
	"agroconecta-billing/internal/usecase"
)

// PlanCatalog is the read side of usecase.PlanUseCase.
type PlanCatalog interface {
	Get(ctx context.Context, id string) (*model.Plan, error)
	List(ctx context.Context) ([]*model.Plan, error)
}

// HealthCheck is one dependency probed by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Options struct {
	Port           int
	RequestTimeout time.Duration
	WebhookToken   string
	// RateLimit is the number of lifecycle writes allowed per subscriber and
	// action per minute; zero or less disables limiting.
	RateLimit int
}

type Server struct {
	subs     usecase.SubscriptionUseCase
	webhooks usecase.WebhookUseCase
	recon    usecase.ReconciliationUseCase
	plans    PlanCatalog
	auth     *Authenticator
	limiter  RateLimiter
	keyFn    func(subscriber, action string) string
	health   []HealthCheck
	opts     Options
	log      *zerolog.Logger
	server   *http.Server
}

func NewServer(
	subs usecase.SubscriptionUseCase,
	webhooks usecase.WebhookUseCase,
	recon usecase.ReconciliationUseCase,
	plans PlanCatalog,
	auth *Authenticator,
	limiter RateLimiter,
	keyFn func(subscriber, action string) string,
	opts Options,
	logger *zerolog.Logger,
	health ...HealthCheck,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if keyFn == nil {
		keyFn = func(subscriber, action string) string { return subscriber + ":" + action }
	}
	l := logger.With().Str("component", "http").Logger()
	s := &Server{
		subs:     subs,
		webhooks: webhooks,
		recon:    recon,
		plans:    plans,
		auth:     auth,
		limiter:  limiter,
		keyFn:    keyFn,
		health:   health,
		opts:     opts,
		log:      &l,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, TraceID, Recover(s.log), RequestLog(s.log), metrics.HTTPMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	limit := func(action string) func(http.Handler) http.Handler {
		return RateLimit(s.limiter, s.keyFn, action, s.opts.RateLimit, time.Minute, s.log)
	}

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))

		r.Post("/webhooks/gateway", s.handleWebhook)

		r.Get("/plans", s.handleListPlans)
		r.Get("/plans/{id}", s.handleGetPlan)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(s.auth.RequireSubscriber)
			r.With(limit("create")).Post("/", s.handleCreateSubscription)
			r.With(limit("pay_direct")).Post("/pagamento-direto", s.handlePayDirect)
			r.Get("/minha", s.handleCurrent)
			r.With(limit("cancel")).Post("/{id}/cancel", s.handleCancel)
			r.With(limit("reactivate")).Post("/{id}/reactivate", s.handleReactivate)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			r.Post("/payments/{id}/confirm", s.handleConfirmPayment)
			r.Post("/subscriptions/{id}/sync", s.handleSyncSubscription)
		})
	})
	return r
}

// Start blocks until the server stops. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.opts.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
