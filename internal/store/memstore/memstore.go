// Package memstore is an in-memory store.Store used by tests and by
// runs without a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/models"
	"github.com/spigell/hh-screener/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	jobs         map[uuid.UUID]models.SyncJob
	vacancies    map[uuid.UUID]models.Vacancy
	applications map[uuid.UUID]models.Application
	results      map[uuid.UUID]models.AnalysisResult // by application id
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		jobs:         make(map[uuid.UUID]models.SyncJob),
		vacancies:    make(map[uuid.UUID]models.Vacancy),
		applications: make(map[uuid.UUID]models.Application),
		results:      make(map[uuid.UUID]models.AnalysisResult),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// --- Sync jobs ---

func (s *Store) CreateSyncJob(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("create sync job: %s already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (s *Store) GetSyncJob(_ context.Context, id uuid.UUID) (*models.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	job = cloneJob(job)
	return &job, nil
}

func (s *Store) UpdateSyncJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	params := store.ApplyJobUpdateOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !models.CanTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, job.Status, status)
	}

	now := s.now()
	job.Status = status
	job.UpdatedAt = now
	switch status {
	case models.JobStatusRunning:
		job.StartedAt = &now
	case models.JobStatusCompleted, models.JobStatusFailed:
		job.CompletedAt = &now
	}
	if params.Errors != nil {
		job.Errors = append([]string(nil), params.Errors...)
	}

	s.jobs[id] = job
	return nil
}

func (s *Store) UpdateSyncJobProgress(_ context.Context, id uuid.UUID, progress store.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.VacanciesSynced = progress.VacanciesSynced
	job.ApplicationsSynced = progress.ApplicationsSynced
	job.Errors = append([]string(nil), progress.Errors...)
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

// --- Vacancies ---

func (s *Store) UpsertVacancy(_ context.Context, v *models.Vacancy) (*models.Vacancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.vacancies {
		if existing.UserID != v.UserID || existing.ExternalID != v.ExternalID {
			continue
		}
		existing.Title = v.Title
		existing.Description = v.Description
		existing.KeySkills = append([]string(nil), v.KeySkills...)
		existing.SalaryFrom = v.SalaryFrom
		existing.SalaryTo = v.SalaryTo
		existing.SalaryCurrency = v.SalaryCurrency
		existing.IsActive = v.IsActive
		existing.LastSyncedAt = v.LastSyncedAt
		existing.UpdatedAt = v.UpdatedAt
		s.vacancies[id] = existing
		return &existing, nil
	}

	created := *v
	created.KeySkills = append([]string(nil), v.KeySkills...)
	created.ApplicationsCount = 0
	created.UnanalyzedCount = 0
	s.vacancies[created.ID] = created
	return &created, nil
}

func (s *Store) GetVacancy(_ context.Context, id uuid.UUID) (*models.Vacancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vacancies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (s *Store) ListVacancies(_ context.Context, userID uuid.UUID, activeOnly bool) ([]models.Vacancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Vacancy
	for _, v := range s.vacancies {
		if v.UserID != userID || (activeOnly && !v.IsActive) {
			continue
		}
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Before(&result[j])
	})
	return result, nil
}

func (s *Store) DeactivateVacancies(_ context.Context, userID uuid.UUID, keepExternalIDs []string) (int, error) {
	keep := make(map[string]struct{}, len(keepExternalIDs))
	for _, id := range keepExternalIDs {
		keep[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, v := range s.vacancies {
		if v.UserID != userID || !v.IsActive {
			continue
		}
		if _, ok := keep[v.ExternalID]; ok {
			continue
		}
		v.IsActive = false
		v.UpdatedAt = s.now()
		s.vacancies[id] = v
		count++
	}
	return count, nil
}

func (s *Store) RefreshVacancyCounters(_ context.Context, vacancyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vacancies[vacancyID]
	if !ok {
		return store.ErrNotFound
	}

	total, unanalyzed := 0, 0
	for _, app := range s.applications {
		if app.VacancyID != vacancyID {
			continue
		}
		total++
		if app.AnalyzedAt == nil && !app.IsDuplicate {
			unanalyzed++
		}
	}

	v.ApplicationsCount = total
	v.UnanalyzedCount = unanalyzed
	v.UpdatedAt = s.now()
	s.vacancies[vacancyID] = v
	return nil
}

// --- Applications ---

func (s *Store) UpsertApplication(_ context.Context, a *models.Application) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vacancies[a.VacancyID]; !ok {
		return nil, fmt.Errorf("upsert application: vacancy %s: %w", a.VacancyID, store.ErrNotFound)
	}

	for id, existing := range s.applications {
		if existing.ExternalID != a.ExternalID {
			continue
		}
		updated := *a
		updated.ID = existing.ID
		updated.RawPayload = append([]byte(nil), a.RawPayload...)
		updated.IsDuplicate = existing.IsDuplicate
		updated.AnalyzedAt = existing.AnalyzedAt
		updated.CreatedAt = existing.CreatedAt
		s.applications[id] = updated
		return &updated, nil
	}

	created := *a
	created.RawPayload = append([]byte(nil), a.RawPayload...)
	created.IsDuplicate = false
	created.AnalyzedAt = nil
	s.applications[created.ID] = created
	return &created, nil
}

func (s *Store) GetApplication(_ context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListApplicationsByVacancy(_ context.Context, vacancyID uuid.UUID) ([]models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Application
	for _, a := range s.applications {
		if a.VacancyID == vacancyID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Before(&result[j])
	})
	return result, nil
}

func (s *Store) SetDuplicateFlags(_ context.Context, vacancyID uuid.UUID, duplicates []uuid.UUID) error {
	marked := make(map[uuid.UUID]bool, len(duplicates))
	for _, id := range duplicates {
		marked[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range s.applications {
		if a.VacancyID != vacancyID || a.IsDuplicate == marked[id] {
			continue
		}
		a.IsDuplicate = marked[id]
		a.UpdatedAt = s.now()
		s.applications[id] = a
	}
	return nil
}

// --- Analysis results ---

func (s *Store) GetAnalysisResult(_ context.Context, applicationID uuid.UUID) (*models.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[applicationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ReplaceAnalysisResult(_ context.Context, r *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[r.ApplicationID]
	if !ok {
		return store.ErrNotFound
	}

	s.results[r.ApplicationID] = *r
	stamp := r.CreatedAt
	app.AnalyzedAt = &stamp
	app.UpdatedAt = s.now()
	s.applications[r.ApplicationID] = app
	return nil
}

// ResultCount returns the number of live analysis results.
func (s *Store) ResultCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

func cloneJob(job models.SyncJob) models.SyncJob {
	job.Errors = append([]string(nil), job.Errors...)
	return job
}
