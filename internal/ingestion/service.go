// Package ingestion runs an uploaded file through parse, map, validate and staging under
// one import log.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/ledgerflow/internal/accountloader"
	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/importlog"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/mapping"
	"github.com/rpattn/ledgerflow/internal/parser"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/tenant"
	"github.com/rpattn/ledgerflow/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TemplateSource hands out the mapping engine of an active template. templates.Registry
// implements it.
type TemplateSource interface {
	Engine(ctx context.Context, id uuid.UUID) (*mapping.Engine, error)
}

// Options tunes the pipeline.
type Options struct {
	// Workers bounds the rows mapped and validated at once.
	Workers int
	// ChunkSize is the number of rows read from the file per pass.
	ChunkSize int
	// LookupWait is the batching window for chart-of-accounts lookups.
	LookupWait time.Duration
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{Workers: 8, ChunkSize: 500, LookupWait: 2 * time.Millisecond}
}

// Service imports files into the staging store.
type Service struct {
	stores    repository.StoreProvider
	templates TemplateSource
	logs      *importlog.Manager
	opts      Options
}

// NewService creates a new ingestion service.
func NewService(stores repository.StoreProvider, templates TemplateSource, logs *importlog.Manager, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.LookupWait <= 0 {
		opts.LookupWait = defaults.LookupWait
	}
	return &Service{stores: stores, templates: templates, logs: logs, opts: opts}
}

// Request describes one upload. Either Data (raw file bytes) or Rows (already parsed
// header -> value maps) must be set.
type Request struct {
	Tenant     tenant.Tenant
	TemplateID uuid.UUID
	FileName   string
	Data       io.Reader
	Rows       []map[string]string
}

// Result is the summary returned to the uploader.
type Result struct {
	ImportLogID uuid.UUID           `json:"import_log_id"`
	Status      domain.ImportStatus `json:"status"`
	TotalRows   int                 `json:"total_rows"`
	ValidRows   int                 `json:"valid_rows"`
	InvalidRows int                 `json:"invalid_rows"`
	Errors      []string            `json:"errors"`
}

// PreviewRows caps the mapped rows a preview returns.
const PreviewRows = 10

// Preview is the dry-run outcome of an upload.
type Preview struct {
	TemplateID     uuid.UUID            `json:"template_id"`
	TemplateName   string               `json:"template_name"`
	TotalRows      int                  `json:"total_rows"`
	ValidRows      int                  `json:"valid_rows"`
	InvalidRows    int                  `json:"invalid_rows"`
	Errors         []string             `json:"errors"`
	MissingColumns []string             `json:"missing_columns"`
	Rows           []domain.Transaction `json:"rows"`
}

func resultFromLog(log domain.ImportLog) Result {
	errs := log.ErrorSummary
	if errs == nil {
		errs = []string{}
	}
	return Result{
		ImportLogID: log.ID,
		Status:      log.Status,
		TotalRows:   log.TotalRows,
		ValidRows:   log.ValidRows,
		InvalidRows: log.InvalidRows,
		Errors:      errs,
	}
}

// Import parses, maps, validates and stages every row of the upload under a new import log.
// Row failures are recorded on the rows. A file that cannot be parsed, or a caller that
// cancels before staging, leaves the log failed with nothing staged; the returned Result
// still names the log.
func (s *Service) Import(ctx context.Context, req Request) (Result, error) {
	engine, store, err := s.prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}

	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = "upload"
	}
	log, err := s.logs.Open(ctx, req.Tenant, req.TemplateID, fileName)
	if err != nil {
		return Result{}, err
	}

	l := logger.FromContext(ctx).With().
		Str("tenant_id", req.Tenant.ID).
		Str("import_id", log.ID.String()).
		Str("template", engine.Template().Name).
		Logger()
	ctx = logger.WithContext(ctx, l)

	processing, err := s.logs.Begin(ctx, req.Tenant, log.ID)
	if err != nil {
		return resultFromLog(log), err
	}
	log = processing

	started := time.Now()
	batch, err := s.process(ctx, store, engine, log.ID, req)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return s.abort(ctx, req.Tenant, log, err)
	}
	counters := batch.counters

	counts, err := store.Transactions.Stage(ctx, log.ID, batch.staged)
	if err != nil {
		return s.abort(ctx, req.Tenant, log, fmt.Errorf("failed to stage transactions: %w", err))
	}
	if counts.Total != counters.TotalRows || counts.Valid != counters.ValidRows {
		l.Warn().
			Int("staged_total", counts.Total).
			Int("staged_valid", counts.Valid).
			Int("total_rows", counters.TotalRows).
			Msg("staged counts differ from aggregated counts")
		counters = domain.ImportCounters{TotalRows: counts.Total, ValidRows: counts.Valid, InvalidRows: counts.Invalid}
	}

	// Staging committed, so the outcome is settled even if the caller has gone away.
	completed, err := s.logs.Complete(context.WithoutCancel(ctx), req.Tenant, log.ID, counters, batch.summary)
	if err != nil {
		return resultFromLog(log), err
	}

	l.Info().
		Int("total_rows", counters.TotalRows).
		Int("valid_rows", counters.ValidRows).
		Int("invalid_rows", counters.InvalidRows).
		Dur("elapsed", time.Since(started)).
		Msg("import completed")
	return resultFromLog(completed), nil
}

// Preview runs the upload through parse, map and validate exactly as Import does but opens
// no import log and stages nothing. At most PreviewRows mapped rows are returned.
func (s *Service) Preview(ctx context.Context, req Request) (Preview, error) {
	engine, store, err := s.prepare(ctx, req)
	if err != nil {
		return Preview{}, err
	}

	batch, err := s.process(ctx, store, engine, uuid.Nil, req)
	if err != nil {
		return Preview{}, err
	}

	rows := batch.staged
	if len(rows) > PreviewRows {
		rows = rows[:PreviewRows]
	}
	l := logger.FromContext(ctx)
	l.Debug().
		Str("tenant_id", req.Tenant.ID).
		Str("template", engine.Template().Name).
		Int("total_rows", batch.counters.TotalRows).
		Msg("import previewed")
	return Preview{
		TemplateID:     req.TemplateID,
		TemplateName:   engine.Template().Name,
		TotalRows:      batch.counters.TotalRows,
		ValidRows:      batch.counters.ValidRows,
		InvalidRows:    batch.counters.InvalidRows,
		Errors:         batch.summary,
		MissingColumns: batch.missing,
		Rows:           rows,
	}, nil
}

func (s *Service) prepare(ctx context.Context, req Request) (*mapping.Engine, repository.Store, error) {
	if req.Tenant.ID == "" {
		return nil, repository.Store{}, fmt.Errorf("%w: tenant is required", domain.ErrValidation)
	}
	if req.TemplateID == uuid.Nil {
		return nil, repository.Store{}, fmt.Errorf("%w: template_id is required", domain.ErrValidation)
	}
	if req.Data == nil && req.Rows == nil {
		return nil, repository.Store{}, fmt.Errorf("%w: a file or rows are required", domain.ErrValidation)
	}

	engine, err := s.templates.Engine(ctx, req.TemplateID)
	if err != nil {
		return nil, repository.Store{}, err
	}
	store, err := s.stores.Store(ctx, req.Tenant)
	if err != nil {
		return nil, repository.Store{}, err
	}
	return engine, store, nil
}

// processed is everything process learned about an upload.
type processed struct {
	staged   []domain.Transaction
	counters domain.ImportCounters
	summary  []string
	missing  []string
}

// process reads the upload in chunks, maps and validates each chunk concurrently, and
// folds the outcomes in row order at this single point.
func (s *Service) process(ctx context.Context, store repository.Store, engine *mapping.Engine, logID uuid.UUID, req Request) (processed, error) {
	var counters domain.ImportCounters
	summary := []string{}

	reader, err := s.open(engine, req)
	if err != nil {
		return processed{}, err
	}
	defer reader.Close()

	l := logger.FromContext(ctx)
	missing := engine.MissingColumns(reader.Headers())
	if len(missing) > 0 {
		l.Warn().Strs("missing_columns", missing).Msg("upload lacks template columns")
	}

	validator := validation.New(accountloader.NewAccountLoader(store.Accounts, s.opts.LookupWait))
	duplicates := validation.NewDuplicateTracker()
	staged := []domain.Transaction{}
	limit := s.logs.SummaryLimit()

	for {
		if err := ctx.Err(); err != nil {
			return processed{}, err
		}

		rows, err := parser.ReadChunk(reader, s.opts.ChunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return processed{}, err
		}

		outcomes, err := s.validateChunk(ctx, engine, validator, rows)
		if err != nil {
			return processed{}, err
		}

		for _, outcome := range outcomes {
			outcome = duplicates.Observe(outcome)
			tx := outcome.Transaction
			tx.ID = uuid.New()
			tx.ImportLogID = logID

			counters.TotalRows++
			if outcome.Valid {
				counters.ValidRows++
			} else {
				counters.InvalidRows++
				if len(summary) < limit {
					summary = append(summary, importlog.RowSummary(tx.RowNumber, outcome.Errors))
				}
			}
			staged = append(staged, tx)
		}
		l.Debug().Int("rows", len(rows)).Int("total_rows", counters.TotalRows).Msg("chunk validated")
	}

	if counters.TotalRows == 0 {
		return processed{}, domain.NewParseError("file has a header row but no data rows", nil)
	}
	if missing == nil {
		missing = []string{}
	}
	return processed{staged: staged, counters: counters, summary: summary, missing: missing}, nil
}

func (s *Service) validateChunk(ctx context.Context, engine *mapping.Engine, validator *validation.Validator, rows []parser.Row) ([]validation.Outcome, error) {
	outcomes := make([]validation.Outcome, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = validator.Check(gctx, engine.Map(row.Number, row.Values))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// a cancelled lookup degrades to a warning, so re-check before trusting the chunk
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Service) open(engine *mapping.Engine, req Request) (parser.RowReader, error) {
	if req.Rows != nil {
		return parser.FromRows(req.Rows)
	}
	return parser.Open(req.Data, parser.ResolveFormat(engine.Template().FileFormat, req.FileName))
}

func (s *Service) abort(ctx context.Context, t tenant.Tenant, log domain.ImportLog, cause error) (Result, error) {
	reason := cause.Error()
	switch {
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		reason = "import cancelled: " + reason
	}

	l := logger.FromContext(ctx)
	failed, err := s.logs.Fail(context.WithoutCancel(ctx), t, log.ID, reason)
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		// settled by recovery while this run was still working
		if current, getErr := s.logs.Get(context.WithoutCancel(ctx), t, log.ID); getErr == nil {
			l.Warn().Err(cause).Str("status", string(current.Status)).Msg("import settled elsewhere")
			return resultFromLog(current), cause
		}
	}
	if err != nil {
		l.Error().Err(err).Msg("failed to mark import as failed")
		return resultFromLog(log), errors.Join(cause, err)
	}

	l.Warn().Err(cause).Msg("import failed")
	return resultFromLog(failed), cause
}
