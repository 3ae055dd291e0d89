package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spigell/hh-screener/internal/models"
	"github.com/spigell/hh-screener/internal/syncer"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull active vacancies and their responses from hh.ru",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, syncRun)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("vacancies", true, "sync the list of active vacancies")
	syncCmd.Flags().Bool("applications", true, "sync responses of the active vacancies")
}

func syncRun(ctx context.Context, cmd *cobra.Command, s *session) error {
	vacancies, _ := cmd.Flags().GetBool("vacancies")
	applications, _ := cmd.Flags().GetBool("applications")

	userID, err := s.deps.userID(ctx)
	if err != nil {
		return err
	}

	job, err := startSync(ctx, s, syncer.Request{
		UserID:           userID,
		SyncVacancies:    vacancies,
		SyncApplications: applications,
	})
	if err != nil {
		return err
	}

	logJob(s.logger, job)
	return nil
}

// startSync runs the job on the background runner and waits for it. An
// interrupt shuts the runner down, which cancels the job at the next boundary.
func startSync(ctx context.Context, s *session, req syncer.Request) (*models.SyncJob, error) {
	orchestrator, err := s.deps.syncer()
	if err != nil {
		return nil, err
	}

	job, err := orchestrator.Start(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start sync: %w", err)
	}
	s.logger.Info("sync started", zap.String("job_id", job.ID.String()))

	done := make(chan struct{})
	go func() {
		s.deps.runner.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("interrupted, stopping the sync job", zap.String("job_id", job.ID.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.deps.runner.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("sync job did not stop in time", zap.Error(err))
		}
	}

	finished, err := s.deps.store.GetSyncJob(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return nil, fmt.Errorf("load sync job %s: %w", job.ID, err)
	}

	if finished.Status == models.JobStatusFailed {
		logJob(s.logger, finished)
		return finished, fmt.Errorf("sync job %s failed: %s", finished.ID, strings.Join(finished.Errors, "; "))
	}
	if ctx.Err() != nil {
		return finished, errors.Join(errors.New("sync interrupted"), ctx.Err())
	}
	return finished, nil
}

func logJob(log *zap.Logger, job *models.SyncJob) {
	log.Info("sync job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", job.Status),
		zap.Int("vacancies", job.VacanciesSynced),
		zap.Int("applications", job.ApplicationsSynced),
		zap.Int("errors", len(job.Errors)),
	)
	for _, msg := range job.Errors {
		log.Warn("sync problem", zap.String("job_id", job.ID.String()), zap.String("error", msg))
	}
}
