package postgres

import (
	"context"
	"encoding/json"
	"time"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
	"agroconecta-billing/internal/infra/metrics"
	red "agroconecta-billing/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

const planListKey = "plans:all"

type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

// NewPlanRepoCacheDecorator caches the read-mostly plan catalogue. Redis
// failures fall through to the database.
func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func planKey(id string) string { return "plan:" + id }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	key := planKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plan model.Plan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	}
	if err != nil && !red.IsMiss(err) {
		metrics.IncCacheRequest("plan", "error")
	} else {
		metrics.IncCacheRequest("plan", "miss")
	}

	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(plan); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return plan, nil
}

// Save invalidates the plan and the list after the write succeeds.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, planKey(plan.ID), planListKey)
	return nil
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	val, err := d.cache.Get(ctx, planListKey)
	if err == nil {
		var plans []*model.Plan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}
	metrics.IncCacheRequest("plan_list", "miss")

	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if bytes, err := json.Marshal(plans); err == nil {
			_ = d.cache.Set(ctx, planListKey, bytes, d.ttl)
		}
	}
	return plans, nil
}
