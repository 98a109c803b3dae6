package usecase

import (
	"context"

	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
)

// PlanUseCase exposes the read-mostly plan catalogue.
type PlanUseCase struct {
	repo repository.PlanRepository
}

func NewPlanUseCase(repo repository.PlanRepository) *PlanUseCase {
	return &PlanUseCase{repo: repo}
}

// Create validates and stores a plan.
func (uc *PlanUseCase) Create(ctx context.Context, plan *model.Plan) (*model.Plan, error) {
	p, err := model.NewPlan(plan.ID, plan.Name, plan.Category, plan.Price, plan.BillingPeriod)
	if err != nil {
		return nil, err
	}
	p.Description = plan.Description
	p.Features = plan.Features
	if plan.UsageLimits != nil {
		p.UsageLimits = plan.UsageLimits
	}
	if err := uc.repo.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (uc *PlanUseCase) Get(ctx context.Context, id string) (*model.Plan, error) {
	return uc.repo.FindByID(ctx, repository.NoTX, id)
}

func (uc *PlanUseCase) List(ctx context.Context) ([]*model.Plan, error) {
	return uc.repo.ListAll(ctx, repository.NoTX)
}
