package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"agroconecta-billing/internal/config"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/domain/ports/repository"
	pg "agroconecta-billing/internal/infra/db/postgres"
	httpapi "agroconecta-billing/internal/infra/http"
	"agroconecta-billing/internal/infra/logging"
	"agroconecta-billing/internal/usecase"
)

var seedPlans = []struct {
	ID       string
	Name     string
	Category model.SubscriberKind
	Price    string
	Features []string
	Limits   map[string]int
}{
	{"prof-gratuito", "Profissional Gratuito", model.SubscriberKindProfessional, "0", []string{"perfil público"}, map[string]int{"servicos": 3}},
	{"prof-basico", "Profissional Básico", model.SubscriberKindProfessional, "29.90", []string{"perfil público", "agenda"}, map[string]int{"servicos": 20}},
	{"prof-premium", "Profissional Premium", model.SubscriberKindProfessional, "79.90", []string{"perfil público", "agenda", "destaque nas buscas"}, map[string]int{"servicos": -1}},
	{"cliente-gratuito", "Cliente Gratuito", model.SubscriberKindClient, "0", []string{"buscar profissionais"}, map[string]int{"contatos": 5}},
	{"cliente-plus", "Cliente Plus", model.SubscriberKindClient, "19.90", []string{"buscar profissionais", "contatos ilimitados"}, map[string]int{"contatos": -1}},
}

var seedSubscribers = []model.Subscriber{
	{ID: "1", Kind: model.SubscriberKindProfessional, Name: "Maria Agrônoma", Email: "maria@example.com", CpfCnpj: "24971563792", Phone: "11987654321"},
	{ID: "1", Kind: model.SubscriberKindClient, Name: "Fazenda Boa Vista", Email: "contato@boavista.example.com", CpfCnpj: "11222333000181", Phone: "34999887766"},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode")
	tokens := flag.Bool("tokens", false, "print bearer tokens for the demo subscribers and an admin")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		l := logging.New(config.LogConfig{}, *devMode)
		l.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	planUC := usecase.NewPlanUseCase(pg.NewPostgresPlanRepo(pool))
	for _, s := range seedPlans {
		p, err := planUC.Create(ctx, &model.Plan{
			ID:            s.ID,
			Name:          s.Name,
			Category:      s.Category,
			Price:         decimal.RequireFromString(s.Price),
			BillingPeriod: model.BillingPeriodMonthly,
			Features:      s.Features,
			UsageLimits:   s.Limits,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("plan", s.ID).Msg("seed plan")
		}
		logger.Info().Str("plan", p.ID).Str("price", p.Price.StringFixed(2)).Msg("plan seeded")
	}

	subscribers := pg.NewSubscriberRepo(pool)
	for i := range seedSubscribers {
		s := seedSubscribers[i]
		if err := subscribers.Save(ctx, repository.NoTX, &s); err != nil {
			logger.Fatal().Err(err).Str("subscriber", s.Ref().String()).Msg("seed subscriber")
		}
		logger.Info().Str("subscriber", s.Ref().String()).Msg("subscriber seeded")
	}

	if !*tokens {
		return
	}
	auth := httpapi.NewAuthenticator(cfg.Auth.JWTSecret)
	for _, s := range seedSubscribers {
		tok, err := auth.Mint(s.Ref(), httpapi.RoleSubscriber, 24*time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Printf("%s\t%s\n", s.Ref(), tok)
	}
	tok, err := auth.Mint(model.SubscriberRef{ID: "admin"}, httpapi.RoleAdmin, 24*time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}
	fmt.Printf("ADMIN\t%s\n", tok)
}
