package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/hh-screener/internal/dedup"
	"github.com/spigell/hh-screener/internal/failure"
	"github.com/spigell/hh-screener/internal/headhunter"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/models"
	"github.com/spigell/hh-screener/internal/store"
	"go.uber.org/zap"
)

// run holds the state of one job execution.
type run struct {
	*Orchestrator
	job      *models.SyncJob
	req      Request
	log      *zap.Logger
	platform Platform
	progress store.JobProgress
	// synced lists the vacancies whose applications were walked.
	synced []*models.Vacancy
}

func (r *run) recordf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.progress.Errors = append(r.progress.Errors, msg)
}

func (r *run) saveProgress(ctx context.Context) {
	if err := r.store.UpdateSyncJobProgress(ctx, r.job.ID, r.progress); err != nil {
		r.log.Warn("persisting sync progress failed", zap.Error(err))
	}
}

func (r *run) finish(ctx context.Context, status string, cause error) {
	errs := r.progress.Errors
	if cause != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", failure.Classify(cause), cause))
	}

	// The final write must land even when the run context is gone.
	ctx = context.WithoutCancel(ctx)
	r.saveProgress(ctx)
	if err := r.store.UpdateSyncJobStatus(ctx, r.job.ID, status, store.WithJobErrors(errs)); err != nil {
		r.log.Error("finishing sync job failed", zap.String("status", status), zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("status", status),
		zap.Int("vacancies_synced", r.progress.VacanciesSynced),
		zap.Int("applications_synced", r.progress.ApplicationsSynced),
		zap.Int("errors", len(errs)),
	}
	if cause != nil {
		r.log.Error("sync failed", append(fields, zap.Error(cause))...)
		return
	}
	r.log.Info("sync finished", fields...)
}

func (r *run) execute(ctx context.Context) error {
	platform, err := r.platforms(ctx, r.job.UserID)
	if err != nil {
		return fmt.Errorf("create platform client: %w", err)
	}
	r.platform = platform

	vacancies, err := r.vacancies(ctx)
	if err != nil {
		return err
	}

	for _, vacancy := range vacancies {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync interrupted: %w", err)
		}

		if err := r.syncVacancy(ctx, vacancy); err != nil {
			if failure.IsFatal(err) {
				return err
			}
			r.log.Warn("vacancy sync failed",
				zap.String("external_id", vacancy.externalID),
				zap.String("kind", failure.Classify(err).String()),
				zap.Error(err),
			)
			r.recordf("vacancy %s: %v", vacancy.externalID, err)
		}

		r.saveProgress(ctx)
	}

	r.settleCounters(ctx)
	return nil
}

// settleCounters re-marks duplicates and recomputes the counters of every
// walked vacancy once all of them are done. An application moved to a later
// vacancy was still part of the earlier one when that one was marked.
func (r *run) settleCounters(ctx context.Context) {
	if len(r.synced) < 2 {
		return
	}
	for _, vacancy := range r.synced {
		if _, err := r.marker.Mark(ctx, vacancy.ID); err != nil {
			r.recordf("vacancy %s: dedup: %v", vacancy.ExternalID, err)
		}
		if err := r.store.RefreshVacancyCounters(ctx, vacancy.ID); err != nil {
			r.recordf("vacancy %s: counters: %v", vacancy.ExternalID, err)
		}
	}
}

// target is a vacancy to process: the platform item when vacancies are synced,
// the persisted record otherwise.
type target struct {
	externalID string
	item       *headhunter.Vacancy
	record     *models.Vacancy
}

func (r *run) vacancies(ctx context.Context) ([]target, error) {
	if !r.req.SyncVacancies {
		records, err := r.store.ListVacancies(ctx, r.job.UserID, true)
		if err != nil {
			return nil, fmt.Errorf("list stored vacancies: %w", err)
		}
		targets := make([]target, 0, len(records))
		for i := range records {
			targets = append(targets, target{externalID: records[i].ExternalID, record: &records[i]})
		}
		return targets, nil
	}

	list, err := r.platform.ListVacancies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vacancies: %w", err)
	}

	targets := make([]target, 0, list.Len())
	keep := make([]string, 0, list.Len())
	for _, item := range list.Items {
		if item == nil || item.ID == "" {
			r.recordf("vacancy without id skipped")
			continue
		}
		targets = append(targets, target{externalID: item.ID, item: item})
		keep = append(keep, item.ID)
	}

	deactivated, err := r.store.DeactivateVacancies(ctx, r.job.UserID, keep)
	if err != nil {
		r.recordf("deactivate vacancies: %v", err)
	} else if deactivated > 0 {
		r.log.Info("vacancies no longer active", zap.Int("count", deactivated))
	}

	return targets, nil
}

func (r *run) syncVacancy(ctx context.Context, t target) error {
	vacancy := t.record
	if r.req.SyncVacancies {
		saved, err := r.upsertVacancy(ctx, t.item)
		if err != nil {
			return err
		}
		vacancy = saved
		r.progress.VacanciesSynced++
	}

	if !r.req.SyncApplications {
		return nil
	}
	return r.syncApplications(ctx, vacancy)
}

func (r *run) upsertVacancy(ctx context.Context, item *headhunter.Vacancy) (*models.Vacancy, error) {
	detail, err := r.platform.GetVacancy(ctx, item.ID)
	if err != nil {
		if failure.IsFatal(err) {
			return nil, err
		}
		r.log.Warn("vacancy details unavailable, using list data",
			zap.String("external_id", item.ID), zap.Error(err))
		r.recordf("vacancy %s details: %v", item.ID, err)
		detail = item
	}

	now := r.now()
	vacancy := VacancyRecord(detail)
	vacancy.UserID = r.job.UserID
	vacancy.LastSyncedAt = &now
	vacancy.CreatedAt = now
	vacancy.UpdatedAt = now

	saved, err := r.store.UpsertVacancy(ctx, vacancy)
	if err != nil {
		return nil, fmt.Errorf("upsert vacancy: %w", err)
	}
	return saved, nil
}

func (r *run) syncApplications(ctx context.Context, vacancy *models.Vacancy) error {
	log := logger.WithVacancy(r.log, vacancy.ID, vacancy.ExternalID)

	apps, err := r.platform.ListApplications(ctx, vacancy.ExternalID)
	if err != nil {
		return fmt.Errorf("list applications: %w", err)
	}

	for _, q := range apps.Rejected {
		log.Warn("application quarantined",
			zap.String("application_external_id", q.ExternalID),
			zap.String("collection", q.Collection),
			zap.String("reason", q.Reason),
		)
		r.recordf("vacancy %s: application %s quarantined: %s", vacancy.ExternalID, q.ExternalID, q.Reason)
	}

	synced := 0
	for _, item := range apps.Items {
		if err := r.upsertApplication(ctx, vacancy, item); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Warn("application skipped",
				zap.String("application_external_id", item.ID),
				zap.String("kind", failure.Classify(err).String()),
				zap.Error(err),
			)
			r.recordf("vacancy %s: application %s: %v", vacancy.ExternalID, item.ID, err)
			continue
		}
		synced++
	}
	r.progress.ApplicationsSynced += synced
	r.synced = append(r.synced, vacancy)

	duplicates, err := r.marker.Mark(ctx, vacancy.ID)
	if err != nil {
		r.recordf("vacancy %s: dedup: %v", vacancy.ExternalID, err)
	}
	if err := r.store.RefreshVacancyCounters(ctx, vacancy.ID); err != nil {
		r.recordf("vacancy %s: counters: %v", vacancy.ExternalID, err)
	}

	log.Info("applications synced",
		zap.Int("synced", synced),
		zap.Int("quarantined", len(apps.Rejected)),
		zap.Int("duplicates", duplicates),
	)
	return nil
}

func (r *run) upsertApplication(ctx context.Context, vacancy *models.Vacancy, item *headhunter.Negotiation) error {
	fingerprint, err := dedup.Fingerprint(item.Resume)
	if err != nil {
		return err
	}

	now := r.now()
	app := ApplicationRecord(item)
	app.VacancyID = vacancy.ID
	app.Fingerprint = fingerprint
	app.UpdatedAt = now
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}

	if _, err := r.store.UpsertApplication(ctx, app); err != nil {
		return fmt.Errorf("upsert application: %w", err)
	}
	return nil
}
