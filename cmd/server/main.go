package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/ledgerflow/internal/app"
	"github.com/rpattn/ledgerflow/internal/audit"
	"github.com/rpattn/ledgerflow/internal/config"
	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/importlog"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/repository"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Create context
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	// Control database holds the shared templates
	version, err := db.Migrate(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Uint("version", version).Msg("Control database migrated")

	control, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer control.Close()

	provider := repository.NewPostgresProvider(cfg.Database, true)
	defer provider.Close()

	services := app.NewServices(provider, repository.NewTemplateRepository(control.Pool), cfg.Import, audit.NewLogSink(log))
	seeded, err := services.SeedTemplates(ctx, cfg.Templates.SeedFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed templates")
	}
	log.Info().Int("created", seeded).Msg("Templates seeded")

	reaper := importlog.NewReaper(services.Logs, provider, cfg.Import.StuckAfter, cfg.Import.ReapInterval)
	go reaper.Run(ctx)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      services.Handler(log, cfg.Server, cfg.Import.MaxUploadBytes),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting ledgerflow server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Server exited")
}
