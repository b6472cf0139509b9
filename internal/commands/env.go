package commands

import (
	"context"
	"fmt"

	"github.com/rpattn/ledgerflow/internal/app"
	"github.com/rpattn/ledgerflow/internal/audit"
	"github.com/rpattn/ledgerflow/internal/config"
	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/repository/memory"

	"github.com/rs/zerolog"
)

// env is the configuration and services one command runs with.
type env struct {
	cfg      config.Config
	log      zerolog.Logger
	services *app.Services
	closers  []func()
}

func loadConfig(opts *globalOptions) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}), nil
}

// openEnv connects to the control database and resolves tenants to their own databases.
func openEnv(ctx context.Context, opts *globalOptions) (*env, context.Context, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, ctx, err
	}
	ctx = logger.WithContext(ctx, log)

	control, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to connect to control database: %w", err)
	}
	provider := repository.NewPostgresProvider(cfg.Database, false)

	return &env{
		cfg:      cfg,
		log:      log,
		services: app.NewServices(provider, repository.NewTemplateRepository(control.Pool), cfg.Import, audit.NewLogSink(log)),
		closers:  []func(){provider.Close, control.Close},
	}, ctx, nil
}

// openDryRunEnv runs against memory stores seeded with the built-in templates. Nothing is persisted.
func openDryRunEnv(ctx context.Context, opts *globalOptions) (*env, context.Context, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, ctx, err
	}
	ctx = logger.WithContext(ctx, log)

	services := app.NewServices(memory.NewProvider(), memory.NewTemplateRepository(), cfg.Import, nil)
	if _, err := services.SeedTemplates(ctx, cfg.Templates.SeedFile); err != nil {
		return nil, ctx, err
	}
	return &env{cfg: cfg, log: log, services: services}, ctx, nil
}

func (e *env) Close() {
	for _, closeFn := range e.closers {
		closeFn()
	}
}
