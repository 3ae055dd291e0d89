// Package syncer pulls vacancies and applications of a user from the platform
// into the store and tracks the run as a SyncJob.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/dedup"
	"github.com/spigell/hh-screener/internal/headhunter"
	"github.com/spigell/hh-screener/internal/jobs"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/models"
	"github.com/spigell/hh-screener/internal/store"
	"go.uber.org/zap"
)

var ErrNothingToSync = errors.New("neither vacancies nor applications requested")

// Platform is the part of the platform client the orchestrator drives.
type Platform interface {
	ListVacancies(ctx context.Context) (*headhunter.Vacancies, error)
	GetVacancy(ctx context.Context, id string) (*headhunter.Vacancy, error)
	ListApplications(ctx context.Context, vacancyID string) (*headhunter.Applications, error)
}

// PlatformFactory returns a client acting with the credentials of userID.
type PlatformFactory func(ctx context.Context, userID uuid.UUID) (Platform, error)

// Marker recomputes duplicate flags of a vacancy.
type Marker interface {
	Mark(ctx context.Context, vacancyID uuid.UUID) (int, error)
}

// Request selects what a sync covers.
type Request struct {
	UserID           uuid.UUID
	SyncVacancies    bool
	SyncApplications bool
}

// Orchestrator runs sync jobs.
type Orchestrator struct {
	store     store.Store
	platforms PlatformFactory
	marker    Marker
	runner    *jobs.Runner
	logger    *zap.Logger
	now       func() time.Time
}

func New(st store.Store, platforms PlatformFactory, marker Marker, runner *jobs.Runner, log *zap.Logger) *Orchestrator {
	if marker == nil {
		marker = dedup.NewDetector(st, log)
	}
	return &Orchestrator{
		store:     st,
		platforms: platforms,
		marker:    marker,
		runner:    runner,
		logger:    logger.WithFields(log, zap.String("component", "syncer")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a pending job for the request.
func (o *Orchestrator) Create(ctx context.Context, req Request) (*models.SyncJob, error) {
	if !req.SyncVacancies && !req.SyncApplications {
		return nil, ErrNothingToSync
	}
	if req.UserID == uuid.Nil {
		return nil, errors.New("user id is required")
	}

	now := o.now()
	job := &models.SyncJob{
		ID:               uuid.New(),
		UserID:           req.UserID,
		Status:           models.JobStatusPending,
		SyncVacancies:    req.SyncVacancies,
		SyncApplications: req.SyncApplications,
		Errors:           []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.store.CreateSyncJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Start creates a pending job and runs it in the background. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*models.SyncJob, error) {
	if o.runner == nil {
		return nil, errors.New("background runner is not configured")
	}

	job, err := o.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	err = o.runner.Go("sync-"+job.ID.String(), func(ctx context.Context) error {
		return o.Run(ctx, job, req)
	})
	if err != nil {
		_ = o.store.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusFailed,
			store.WithJobErrors([]string{err.Error()}))
		return nil, err
	}
	return job, nil
}

// Cancel fails a job that has not started yet.
func (o *Orchestrator) Cancel(ctx context.Context, jobID uuid.UUID) error {
	return o.store.UpdateSyncJobStatus(ctx, jobID, models.JobStatusFailed,
		store.WithJobErrors([]string{"cancelled before start"}))
}

// Run executes the job synchronously. The returned error is the reason the job
// failed; per-vacancy problems only end up in the job error list.
func (o *Orchestrator) Run(ctx context.Context, job *models.SyncJob, req Request) error {
	log := logger.WithJob(o.logger, job.ID, job.UserID)

	current, err := o.store.GetSyncJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load sync job: %w", err)
	}
	if current.Status != models.JobStatusPending {
		log.Info("sync job is no longer pending, skipping", zap.String("status", current.Status))
		return nil
	}
	if err := o.store.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			log.Info("sync job was taken over, skipping", zap.Error(err))
			return nil
		}
		return fmt.Errorf("start sync job: %w", err)
	}

	run := &run{
		Orchestrator: o,
		job:          job,
		req:          req,
		log:          log,
		progress:     store.JobProgress{Errors: []string{}},
	}

	log.Info("sync started",
		zap.Bool("vacancies", req.SyncVacancies),
		zap.Bool("applications", req.SyncApplications),
	)

	if err := run.execute(ctx); err != nil {
		run.finish(ctx, models.JobStatusFailed, err)
		return err
	}

	run.finish(ctx, models.JobStatusCompleted, nil)
	return nil
}
