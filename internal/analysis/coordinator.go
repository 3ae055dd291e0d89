package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/failure"
	"github.com/spigell/hh-screener/internal/filtering"
	"github.com/spigell/hh-screener/internal/jobs"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/models"
	"github.com/spigell/hh-screener/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxBatch    = 20
	DefaultConcurrency = 3
)

var (
	ErrEmptyBatch    = errors.New("batch has no applications")
	ErrBatchTooLarge = errors.New("batch exceeds the maximum size")
)

// CoordinatorConfig tunes batch execution.
type CoordinatorConfig struct {
	MaxBatch        int      `mapstructure:"max-batch"`
	Concurrency     int      `mapstructure:"concurrency"`
	KeepDuplicates  bool     `mapstructure:"keep-duplicates"`
	SkipCollections []string `mapstructure:"skip-collections"`
}

// BatchRequest names the applications to analyze.
type BatchRequest struct {
	ApplicationIDs []uuid.UUID
	Force          bool
}

// Report summarizes a batch. Processed always equals Succeeded + Failed + Skipped.
type Report struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Cached    int      `json:"cached"`
	Errors    []string `json:"errors"`
}

func (r *Report) fail(id uuid.UUID, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("application %s: %s: %v", id, failure.Classify(err), err))
}

// Merge adds the counters of other to r.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.Cached += other.Cached
	r.Errors = append(r.Errors, other.Errors...)
}

type analyzer interface {
	Analyze(ctx context.Context, req Request) (*Outcome, error)
}

// Coordinator runs the engine over batches of applications.
type Coordinator struct {
	store      store.Store
	engine     analyzer
	duplicates filtering.DuplicateChecker
	runner     *jobs.Runner
	logger     *zap.Logger
	cfg        CoordinatorConfig
}

func NewCoordinator(st store.Store, engine analyzer, duplicates filtering.DuplicateChecker, runner *jobs.Runner, log *zap.Logger, cfg CoordinatorConfig) *Coordinator {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Coordinator{
		store:      st,
		engine:     engine,
		duplicates: duplicates,
		runner:     runner,
		logger:     logger.WithFields(log, zap.String("component", "analysis")),
		cfg:        cfg,
	}
}

func (c *Coordinator) validate(req BatchRequest) error {
	switch {
	case len(req.ApplicationIDs) == 0:
		return ErrEmptyBatch
	case len(req.ApplicationIDs) > c.cfg.MaxBatch:
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(req.ApplicationIDs), c.cfg.MaxBatch)
	}
	return nil
}

// Run analyzes the batch and persists every success. A failing candidate
// never aborts the batch; the returned error is reserved for batch-level problems.
func (c *Coordinator) Run(ctx context.Context, req BatchRequest) (*Report, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	report := &Report{}
	candidates := c.load(ctx, uniqueIDs(req.ApplicationIDs), report)

	before := candidates.Len()
	candidates, err := filtering.Run(ctx, &filtering.Config{
		Force:           req.Force,
		KeepDuplicates:  c.cfg.KeepDuplicates,
		SkipCollections: c.cfg.SkipCollections,
	}, filtering.Deps{Logger: c.logger, Duplicates: c.duplicates}, filtering.Default(), candidates)
	if err != nil {
		return nil, fmt.Errorf("filter candidates: %w", err)
	}
	report.Skipped = before - candidates.Len()
	report.Processed += before

	var (
		mu      sync.Mutex
		touched = map[uuid.UUID]struct{}{}
		g       errgroup.Group
	)
	g.SetLimit(c.cfg.Concurrency)

	for _, candidate := range candidates.Items {
		g.Go(func() error {
			app := candidate.Application

			result, cached, err := c.analyzeOne(ctx, candidate, req.Force)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn("candidate analysis failed",
					logger.ID(logger.FieldApplicationID, app.ID),
					zap.String("kind", failure.Classify(err).String()),
					zap.Error(err),
				)
				report.fail(app.ID, err)
				return nil
			}
			report.Succeeded++
			if cached {
				report.Cached++
			}
			touched[app.VacancyID] = struct{}{}
			c.logger.Debug("candidate analyzed",
				logger.ID(logger.FieldApplicationID, app.ID),
				zap.Int("score", result.Score),
			)
			return nil
		})
	}
	_ = g.Wait()

	for vacancyID := range touched {
		if err := c.store.RefreshVacancyCounters(ctx, vacancyID); err != nil {
			c.logger.Warn("refresh vacancy counters failed",
				logger.ID(logger.FieldVacancyID, vacancyID), zap.Error(err))
		}
	}

	c.logger.Info("analysis batch finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("cached", report.Cached),
	)

	return report, nil
}

func (c *Coordinator) analyzeOne(ctx context.Context, candidate *filtering.Candidate, force bool) (*models.AnalysisResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	outcome, err := c.engine.Analyze(ctx, Request{
		Vacancy:     candidate.Vacancy,
		Application: candidate.Application,
		Force:       force,
	})
	if err != nil {
		return nil, false, err
	}

	if err := c.store.ReplaceAnalysisResult(ctx, outcome.Result); err != nil {
		return nil, false, fmt.Errorf("persist result: %w", err)
	}
	return outcome.Result, outcome.Cached, nil
}

// load fetches the applications and their vacancies. Unknown ids are counted as failures.
func (c *Coordinator) load(ctx context.Context, ids []uuid.UUID, report *Report) *filtering.Candidates {
	vacancies := map[uuid.UUID]*models.Vacancy{}
	candidates := filtering.NewCandidates()

	for _, id := range ids {
		app, err := c.store.GetApplication(ctx, id)
		if err != nil {
			report.Processed++
			report.fail(id, err)
			continue
		}

		vacancy, ok := vacancies[app.VacancyID]
		if !ok {
			vacancy, err = c.store.GetVacancy(ctx, app.VacancyID)
			if err != nil {
				report.Processed++
				report.fail(id, fmt.Errorf("vacancy %s: %w", app.VacancyID, err))
				continue
			}
			vacancies[app.VacancyID] = vacancy
		}

		candidates.Items = append(candidates.Items, &filtering.Candidate{Application: app, Vacancy: vacancy})
	}

	return candidates
}

// Start validates the batch and runs it in the background.
func (c *Coordinator) Start(_ context.Context, req BatchRequest) (uuid.UUID, error) {
	if err := c.validate(req); err != nil {
		return uuid.Nil, err
	}
	if c.runner == nil {
		return uuid.Nil, errors.New("background runner is not configured")
	}

	batchID := uuid.New()
	err := c.runner.Go("analysis-batch-"+batchID.String(), func(ctx context.Context) error {
		_, err := c.Run(ctx, req)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return batchID, nil
}

// Pending returns up to MaxBatch unanalyzed, non-duplicate applications of the vacancy.
func (c *Coordinator) Pending(ctx context.Context, vacancyID uuid.UUID) ([]uuid.UUID, error) {
	apps, err := c.store.ListApplicationsByVacancy(ctx, vacancyID)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for _, app := range apps {
		if app.AnalyzedAt != nil || app.IsDuplicate {
			continue
		}
		ids = append(ids, app.ID)
		if len(ids) == c.cfg.MaxBatch {
			break
		}
	}
	return ids, nil
}

// AnalyzeVacancy drains the pending applications of a vacancy batch by batch.
// Applications that failed once are not retried within the same call.
func (c *Coordinator) AnalyzeVacancy(ctx context.Context, vacancyID uuid.UUID) (*Report, error) {
	total := &Report{}
	attempted := map[uuid.UUID]struct{}{}

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		apps, err := c.store.ListApplicationsByVacancy(ctx, vacancyID)
		if err != nil {
			return total, fmt.Errorf("list applications of vacancy %s: %w", vacancyID, err)
		}

		var batch []uuid.UUID
		for _, app := range apps {
			if app.AnalyzedAt != nil || app.IsDuplicate {
				continue
			}
			if _, ok := attempted[app.ID]; ok {
				continue
			}
			attempted[app.ID] = struct{}{}
			batch = append(batch, app.ID)
			if len(batch) == c.cfg.MaxBatch {
				break
			}
		}
		if len(batch) == 0 {
			return total, nil
		}

		report, err := c.Run(ctx, BatchRequest{ApplicationIDs: batch})
		if err != nil {
			return total, err
		}
		total.Merge(report)
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	result := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
