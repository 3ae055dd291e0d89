package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store is the data access interface. All database operations go through here.
// Implementations must be safe for concurrent use.
type Store interface {
	Ping(ctx context.Context) error

	CreateSyncJob(ctx context.Context, job *models.SyncJob) error
	GetSyncJob(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)
	UpdateSyncJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	UpdateSyncJobProgress(ctx context.Context, id uuid.UUID, progress JobProgress) error

	UpsertVacancy(ctx context.Context, vacancy *models.Vacancy) (*models.Vacancy, error)
	GetVacancy(ctx context.Context, id uuid.UUID) (*models.Vacancy, error)
	ListVacancies(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]models.Vacancy, error)
	DeactivateVacancies(ctx context.Context, userID uuid.UUID, keepExternalIDs []string) (int, error)
	RefreshVacancyCounters(ctx context.Context, vacancyID uuid.UUID) error

	UpsertApplication(ctx context.Context, app *models.Application) (*models.Application, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	ListApplicationsByVacancy(ctx context.Context, vacancyID uuid.UUID) ([]models.Application, error)
	SetDuplicateFlags(ctx context.Context, vacancyID uuid.UUID, duplicates []uuid.UUID) error

	GetAnalysisResult(ctx context.Context, applicationID uuid.UUID) (*models.AnalysisResult, error)
	ReplaceAnalysisResult(ctx context.Context, result *models.AnalysisResult) error
}

// JobProgress is the counters and error list persisted while a job runs.
type JobProgress struct {
	VacanciesSynced    int
	ApplicationsSynced int
	Errors             []string
}

type JobUpdateParams struct {
	Errors []string
}

type JobUpdateOption func(*JobUpdateParams)

// WithJobErrors replaces the error list of the job together with its status.
func WithJobErrors(errs []string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.Errors = errs
	}
}

// ApplyJobUpdateOptions folds the options into parameters.
func ApplyJobUpdateOptions(opts ...JobUpdateOption) *JobUpdateParams {
	params := &JobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}
