// ClaimGuard - Multi-tenant healthcare claim validation.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/opensource-finance/claimguard/internal/bus"
	"github.com/opensource-finance/claimguard/internal/cache"
	"github.com/opensource-finance/claimguard/internal/decision"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/enrich"
	"github.com/opensource-finance/claimguard/internal/repository"
	"github.com/opensource-finance/claimguard/internal/rules"
	"github.com/opensource-finance/claimguard/internal/worker"
)

// app holds the backends and validation components built from config.
type app struct {
	cfg    *domain.Config
	logger *slog.Logger

	repo  *repository.SQLRepository
	cache domain.Cache
	bus   domain.EventBus

	engine   *rules.Engine
	loader   *rules.Loader
	pipeline *worker.Pipeline
}

func newApp(cfg *domain.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Tracing.Enabled {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("initialize repository: %w", err)
	}
	a.repo = repo
	logger.Info("repository initialized", "driver", cfg.Repository.Driver)

	a.cache, err = cache.New(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	a.bus, err = bus.New(cfg.EventBus)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize event bus: %w", err)
	}
	logger.Info("event bus initialized", "type", cfg.EventBus.Type)

	a.engine, err = rules.NewEngine(cfg.Worker.EvalWorkers)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize rule engine: %w", err)
	}

	a.loader = rules.NewLoader(rules.Defaults(), a.engine, logger,
		rules.RepositorySource{Store: repo},
		rules.FileSource{Dir: cfg.Rules.Dir},
	)

	enricher := enrich.New(cfg.Enrichment, a.cache, logger)
	if _, ok := enricher.(enrich.Fallback); ok {
		logger.Info("explanation enrichment disabled, using deterministic explanations")
	}
	decider := decision.NewProcessor(enricher, cfg.Enrichment, logger)

	a.pipeline = worker.NewPipeline(worker.PipelineDeps{
		Repo:    repo,
		Loader:  a.loader,
		Engine:  a.engine,
		Decider: decider,
		Locks:   a.cache,
		Bus:     a.bus,
		Logger:  logger,
	})
	a.pipeline.LockTTL = cfg.Worker.LockTTL
	a.pipeline.LockWait = cfg.Worker.LockWait

	return a, nil
}

// Close releases backends in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	return errors.Join(errs...)
}
