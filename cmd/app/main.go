package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"agroconecta-billing/internal/config"
	"agroconecta-billing/internal/domain/ports/adapter"
	payAdapters "agroconecta-billing/internal/infra/adapters/payment"
	"agroconecta-billing/internal/infra/db/migrations"
	pg "agroconecta-billing/internal/infra/db/postgres"
	httpapi "agroconecta-billing/internal/infra/http"
	"agroconecta-billing/internal/infra/logging"
	"agroconecta-billing/internal/infra/metrics"
	red "agroconecta-billing/internal/infra/redis"
	"agroconecta-billing/internal/infra/sched"
	"agroconecta-billing/internal/usecase"
)

// set via -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, in-memory gateway without an API key)")
	migrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		bootLogger := logging.New(config.LogConfig{}, *devMode)
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrate {
		if err := migrations.Up(cfg.Database.URL); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Msg("migrations applied")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go metrics.WatchPool(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	subscriberRepo := pg.NewSubscriberRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient, cfg.Redis.TTL)
	subRepo := pg.NewSubscriptionRepo(pool)
	invoiceRepo := pg.NewInvoiceRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.Asaas.APIKey == "" && cfg.Runtime.Dev {
		logger.Warn().Msg("payment.asaas.api_key not set; using in-memory gateway")
		gateway = payAdapters.NewNoopPaymentGateway()
	} else {
		asaas, err := payAdapters.NewAsaasGateway(cfg.Payment.Asaas, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("asaas gateway")
		}
		logger.Info().Bool("sandbox", cfg.Payment.Asaas.Sandbox).
			Str("api_key", logging.Redact(cfg.Payment.Asaas.APIKey, cfg.Runtime.Dev)).
			Msg("asaas gateway configured")
		gateway = asaas
	}

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(planRepo)
	subUC := usecase.NewSubscriptionUseCase(subscriberRepo, planRepo, subRepo, invoiceRepo, gateway, locker, tm,
		usecase.SubscriptionOptions{
			FirstDueInDays: cfg.Payment.FirstDueInDay,
			DefaultCycle:   cfg.Payment.Cycle,
			LockTTL:        cfg.Redis.LockTTL,
		}, logger)
	webhookUC := usecase.NewWebhookUseCase(subscriberRepo, subRepo, invoiceRepo, eventRepo, gateway, tm, logger)
	reconUC := usecase.NewReconciliationUseCase(subscriberRepo, subRepo, invoiceRepo, gateway, tm, usecase.DefaultRetryPolicy, logger)

	// ---- HTTP ----
	srv := httpapi.NewServer(subUC, webhookUC, reconUC, planUC,
		httpapi.NewAuthenticator(cfg.Auth.JWTSecret),
		rateLimiter, red.SubscriberActionKey,
		httpapi.Options{
			Port:           cfg.HTTP.Port,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			WebhookToken:   cfg.Payment.Asaas.WebhookToken,
			RateLimit:      cfg.HTTP.RateLimit,
		},
		logger,
		httpapi.HealthCheck{Name: "postgres", Check: pool.Ping},
		httpapi.HealthCheck{Name: "redis", Check: redisClient.Ping},
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	// ---- Background workers ----
	go func() {
		defer wg.Done()
		_ = sched.NewPaymentReconciler(reconUC, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.Batch, logger).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = sched.NewSubscriptionGauge(time.Minute, subRepo, logger).Run(ctx)
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	logger.Info().Msg("bye")
}
