package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
	"agroconecta-billing/internal/infra/metrics"
)

// StatusCounter is the part of repository.SubscriptionRepository the gauge needs.
type StatusCounter interface {
	CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error)
}

// SubscriptionGauge refreshes the subscriptions_total gauge.
type SubscriptionGauge struct {
	interval time.Duration
	subs     StatusCounter
	log      *zerolog.Logger
}

func NewSubscriptionGauge(interval time.Duration, subs StatusCounter, logger *zerolog.Logger) *SubscriptionGauge {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "SubscriptionGauge").Logger()
	return &SubscriptionGauge{interval: interval, subs: subs, log: &l}
}

func (w *SubscriptionGauge) Run(ctx context.Context) error {
	// publish once on startup, then on every tick
	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *SubscriptionGauge) refresh(ctx context.Context) {
	counts, err := w.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		w.log.Warn().Err(err).Msg("count subscriptions by status failed")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}
