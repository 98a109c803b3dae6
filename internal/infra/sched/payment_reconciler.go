package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agroconecta-billing/internal/usecase"
)

// PaymentReconciler periodically syncs subscriptions that are still PENDENTE
// after staleAfter with the gateway. This covers lost webhooks and the
// "subscription created, no invoice yet" state left by Create.
type PaymentReconciler struct {
	recon      usecase.ReconciliationUseCase
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	now        func() time.Time
	log        *zerolog.Logger
}

func NewPaymentReconciler(recon usecase.ReconciliationUseCase, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		recon:      recon,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
		log:        &l,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := w.now().Add(-w.staleAfter)
	n, err := w.recon.SyncStalePending(ctx, cutoff, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("payment reconciler: list stale pending failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("stale pending subscriptions synced")
	}
}
