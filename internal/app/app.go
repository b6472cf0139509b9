// Package app wires the services and HTTP surface shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rpattn/ledgerflow/internal/approval"
	"github.com/rpattn/ledgerflow/internal/audit"
	"github.com/rpattn/ledgerflow/internal/config"
	"github.com/rpattn/ledgerflow/internal/importlog"
	"github.com/rpattn/ledgerflow/internal/ingestion"
	"github.com/rpattn/ledgerflow/internal/middleware"
	"github.com/rpattn/ledgerflow/internal/posting"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/rules"
	"github.com/rpattn/ledgerflow/internal/templates"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services is the full set of pipeline services bound to one store provider.
type Services struct {
	Templates *templates.Registry
	Logs      *importlog.Manager
	Ingestion *ingestion.Service
	Approval  *approval.Service
	Posting   *posting.Service
	Rules     *rules.Service
}

// NewServices builds every service. recorder may be nil.
func NewServices(stores repository.StoreProvider, templateRepo repository.TemplateRepository, cfg config.ImportConfig, recorder audit.Sink) *Services {
	registry := templates.NewRegistry(templateRepo)
	logs := importlog.NewManager(stores,
		importlog.WithRecorder(recorder),
		importlog.WithSummaryLimit(cfg.ErrorSummaryLimit),
	)
	poster := posting.NewService(stores,
		posting.WithRecorder(recorder),
		posting.WithWorkers(cfg.Workers),
	)
	approvals := approval.NewService(stores, logs,
		approval.WithPoster(poster),
		approval.WithRecorder(recorder),
		approval.WithWorkers(cfg.Workers),
	)

	return &Services{
		Templates: registry,
		Logs:      logs,
		Ingestion: ingestion.NewService(stores, registry, logs, ingestion.Options{
			Workers:   cfg.Workers,
			ChunkSize: cfg.ChunkSize,
		}),
		Approval: approvals,
		Posting:  poster,
		Rules:    rules.NewService(stores, approvals),
	}
}

// SeedTemplates stores the built-in templates, or the ones in seedFile when it is set.
func (s *Services) SeedTemplates(ctx context.Context, seedFile string) (int, error) {
	seeds, err := templates.DefaultSeed()
	if seedFile != "" {
		seeds, err = templates.LoadSeedFile(seedFile)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load template seed: %w", err)
	}
	created, err := s.Templates.Seed(ctx, seeds)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

// Handler mounts every route behind the recovery, logging, tenant and CORS middleware.
func (s *Services) Handler(base zerolog.Logger, server config.ServerConfig, maxUploadBytes int64) http.Handler {
	mux := http.NewServeMux()
	templates.NewHTTPHandler(s.Templates).Register(mux)
	ingestion.NewHTTPHandler(s.Ingestion, s.Logs, maxUploadBytes).Register(mux)
	approval.NewHTTPHandler(s.Approval).Register(mux)
	posting.NewHTTPHandler(s.Posting).Register(mux)
	rules.NewHTTPHandler(s.Rules).Register(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	var handler http.Handler = mux
	handler = middleware.TenantMiddleware(handler)
	handler = middleware.Recoverer(handler)
	handler = middleware.LoggingMiddleware(base)(handler)
	return corsHandler.Handler(handler)
}
