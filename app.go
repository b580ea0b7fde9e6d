package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"automagick_post_producer/config"
	"automagick_post_producer/generator"
	"automagick_post_producer/logger"
	"automagick_post_producer/pipeline"
	"automagick_post_producer/producer"
	"automagick_post_producer/publisher"
	"automagick_post_producer/schedule"
	"automagick_post_producer/secret"
	"automagick_post_producer/store"
)

// repository is what a publishing backend provides to the pipeline.
type repository interface {
	pipeline.Repository
	pipeline.Media
}

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	store    *store.Store
	trigger  *schedule.Trigger
	registry *prometheus.Registry
	service  *producer.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cipher, err := secret.New(cfg.SiteSecret)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	repo, err := buildRepository(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	p, err := pipeline.New(clientFactory(cfg.LLM), repo, repo, log.With(logger.String("component", "pipeline")))
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	trigger := schedule.NewTrigger(loc, log.With(logger.String("component", "trigger")))
	svc, err := producer.New(producer.Options{
		Store:     db,
		Cipher:    cipher,
		Runner:    p,
		Scheduler: trigger,
		Validate:  keyValidator(cfg.LLM),
		Intervals: schedule.DefaultIntervals().WithSeconds(cfg.Schedules),
		Location:  loc,
		Metrics:   producer.NewMetrics(registry),
		Logger:    log.With(logger.String("component", "producer")),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: db, trigger: trigger, registry: registry, service: svc}, nil
}

func (a *app) Close() {
	a.trigger.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing database", logger.Err(err))
	}
	_ = a.log.Sync()
}

func buildRepository(cfg *config.Config, log logger.Logger) (repository, error) {
	switch cfg.Repository.Backend {
	case config.BackendWordPress:
		return publisher.NewWordPress(cfg.Repository.WordPress, nil, cfg.ScratchDir, log.With(logger.String("component", "wordpress")))
	case config.BackendFiles:
		return publisher.NewFiles(cfg.Repository.Dir, log.With(logger.String("component", "files")))
	default:
		return nil, fmt.Errorf("repository backend %q not supported", cfg.Repository.Backend)
	}
}

// clientFactory builds per-run clients for the stored credential.
func clientFactory(llm config.LLMConfig) pipeline.ClientFactory {
	return func(credential string) (generator.TextGenerator, generator.ImageGenerator, error) {
		return generator.NewClients(&generator.LLMSettings{
			Provider: llm.Provider,
			APIKey:   credential,
			BaseURL:  llm.BaseURL,
		})
	}
}

func keyValidator(llm config.LLMConfig) producer.KeyValidator {
	if llm.Provider == "mock" {
		return func(_ context.Context, key string) (bool, error) { return key != "", nil }
	}
	return func(ctx context.Context, key string) (bool, error) {
		return generator.ValidateKey(ctx, key, llm.BaseURL)
	}
}
