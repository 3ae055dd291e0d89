package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spigell/hh-screener/internal/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Sync jobs ---

const syncJobColumns = `id, user_id, status, sync_vacancies, sync_applications, vacancies_synced,
	applications_synced, errors, started_at, completed_at, created_at, updated_at`

func scanSyncJob(row pgx.Row) (*models.SyncJob, error) {
	var j models.SyncJob
	err := row.Scan(&j.ID, &j.UserID, &j.Status, &j.SyncVacancies, &j.SyncApplications,
		&j.VacanciesSynced, &j.ApplicationsSynced, &j.Errors, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_jobs (id, user_id, status, sync_vacancies, sync_applications, errors, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.UserID, job.Status, job.SyncVacancies, job.SyncApplications, job.Errors,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create sync job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSyncJob(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	job, err := scanSyncJob(s.pool.QueryRow(ctx,
		`SELECT `+syncJobColumns+` FROM sync_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync job: %w", err)
	}
	return job, nil
}

// UpdateSyncJobStatus moves the job to status. The update only applies while
// the stored status is still the one the transition was validated against.
func (s *PostgresStore) UpdateSyncJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := ApplyJobUpdateOptions(opts...)

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM sync_jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get sync job status: %w", err)
	}

	if !models.CanTransition(currentStatus, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE sync_jobs SET status = $3, updated_at = $4`
	args := []any{id, currentStatus, status, now}
	argIdx := 5

	if status == models.JobStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.Errors != nil {
		query += fmt.Sprintf(", errors = $%d", argIdx)
		args = append(args, params.Errors)
	}

	query += ` WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update sync job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, currentStatus)
	}
	return nil
}

func (s *PostgresStore) UpdateSyncJobProgress(ctx context.Context, id uuid.UUID, progress JobProgress) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_jobs SET vacancies_synced = $2, applications_synced = $3, errors = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, progress.VacanciesSynced, progress.ApplicationsSynced, progress.Errors)
	if err != nil {
		return fmt.Errorf("update sync job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Vacancies ---

const vacancyColumns = `id, user_id, external_id, title, description, key_skills, salary_from, salary_to,
	salary_currency, is_active, applications_count, unanalyzed_count, last_synced_at, created_at, updated_at`

func scanVacancy(row pgx.Row) (*models.Vacancy, error) {
	var v models.Vacancy
	err := row.Scan(&v.ID, &v.UserID, &v.ExternalID, &v.Title, &v.Description, &v.KeySkills,
		&v.SalaryFrom, &v.SalaryTo, &v.SalaryCurrency, &v.IsActive, &v.ApplicationsCount,
		&v.UnanalyzedCount, &v.LastSyncedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertVacancy inserts the vacancy or overwrites the mutable fields of the
// one with the same owner and external id. Counters are left untouched.
func (s *PostgresStore) UpsertVacancy(ctx context.Context, v *models.Vacancy) (*models.Vacancy, error) {
	result, err := scanVacancy(s.pool.QueryRow(ctx,
		`INSERT INTO vacancies (id, user_id, external_id, title, description, key_skills, salary_from, salary_to,
		   salary_currency, is_active, last_synced_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (user_id, external_id) DO UPDATE SET
		   title = EXCLUDED.title,
		   description = EXCLUDED.description,
		   key_skills = EXCLUDED.key_skills,
		   salary_from = EXCLUDED.salary_from,
		   salary_to = EXCLUDED.salary_to,
		   salary_currency = EXCLUDED.salary_currency,
		   is_active = EXCLUDED.is_active,
		   last_synced_at = EXCLUDED.last_synced_at,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+vacancyColumns,
		v.ID, v.UserID, v.ExternalID, v.Title, v.Description, v.KeySkills, v.SalaryFrom, v.SalaryTo,
		v.SalaryCurrency, v.IsActive, v.LastSyncedAt, v.CreatedAt, v.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert vacancy: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) GetVacancy(ctx context.Context, id uuid.UUID) (*models.Vacancy, error) {
	v, err := scanVacancy(s.pool.QueryRow(ctx,
		`SELECT `+vacancyColumns+` FROM vacancies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vacancy: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVacancies(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]models.Vacancy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vacancyColumns+` FROM vacancies
		 WHERE user_id = $1 AND (NOT $2 OR is_active)
		 ORDER BY created_at, id`, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list vacancies: %w", err)
	}
	defer rows.Close()

	var vacancies []models.Vacancy
	for rows.Next() {
		v, err := scanVacancy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vacancy: %w", err)
		}
		vacancies = append(vacancies, *v)
	}
	return vacancies, rows.Err()
}

// DeactivateVacancies clears the active flag of the user's vacancies missing from keepExternalIDs.
func (s *PostgresStore) DeactivateVacancies(ctx context.Context, userID uuid.UUID, keepExternalIDs []string) (int, error) {
	if keepExternalIDs == nil {
		keepExternalIDs = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE vacancies SET is_active = FALSE, updated_at = NOW()
		 WHERE user_id = $1 AND is_active AND NOT (external_id = ANY($2))`,
		userID, keepExternalIDs)
	if err != nil {
		return 0, fmt.Errorf("deactivate vacancies: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RefreshVacancyCounters recomputes the counters from the persisted applications.
func (s *PostgresStore) RefreshVacancyCounters(ctx context.Context, vacancyID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vacancies v SET
		   applications_count = c.total,
		   unanalyzed_count = c.unanalyzed,
		   updated_at = NOW()
		 FROM (
		   SELECT COUNT(*) AS total,
		          COUNT(*) FILTER (WHERE analyzed_at IS NULL AND NOT is_duplicate) AS unanalyzed
		   FROM applications WHERE vacancy_id = $1
		 ) c
		 WHERE v.id = $1`, vacancyID)
	if err != nil {
		return fmt.Errorf("refresh vacancy counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Applications ---

const applicationColumns = `id, vacancy_id, external_id, resume_id, resume_title, first_name, last_name,
	middle_name, age, email, phone, collection, raw_payload, fingerprint, is_duplicate, analyzed_at,
	created_at, updated_at`

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	err := row.Scan(&a.ID, &a.VacancyID, &a.ExternalID, &a.ResumeID, &a.ResumeTitle, &a.FirstName,
		&a.LastName, &a.MiddleName, &a.Age, &a.Email, &a.Phone, &a.Collection, &a.RawPayload,
		&a.Fingerprint, &a.IsDuplicate, &a.AnalyzedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertApplication matches on the global external id and overwrites every
// platform field, vacancy_id included. Duplicate flag and analysis stamp are kept.
func (s *PostgresStore) UpsertApplication(ctx context.Context, a *models.Application) (*models.Application, error) {
	result, err := scanApplication(s.pool.QueryRow(ctx,
		`INSERT INTO applications (id, vacancy_id, external_id, resume_id, resume_title, first_name, last_name,
		   middle_name, age, email, phone, collection, raw_payload, fingerprint, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (external_id) DO UPDATE SET
		   vacancy_id = EXCLUDED.vacancy_id,
		   resume_id = EXCLUDED.resume_id,
		   resume_title = EXCLUDED.resume_title,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   middle_name = EXCLUDED.middle_name,
		   age = EXCLUDED.age,
		   email = EXCLUDED.email,
		   phone = EXCLUDED.phone,
		   collection = EXCLUDED.collection,
		   raw_payload = EXCLUDED.raw_payload,
		   fingerprint = EXCLUDED.fingerprint,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+applicationColumns,
		a.ID, a.VacancyID, a.ExternalID, a.ResumeID, a.ResumeTitle, a.FirstName, a.LastName,
		a.MiddleName, a.Age, a.Email, a.Phone, a.Collection, a.RawPayload, a.Fingerprint,
		a.CreatedAt, a.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert application: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// ListApplicationsByVacancy returns the applications in the order of models.Application.Before.
func (s *PostgresStore) ListApplicationsByVacancy(ctx context.Context, vacancyID uuid.UUID) ([]models.Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE vacancy_id = $1
		 ORDER BY created_at, length(external_id), external_id COLLATE "C", id`,
		vacancyID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

// SetDuplicateFlags flags exactly the given applications of the vacancy.
func (s *PostgresStore) SetDuplicateFlags(ctx context.Context, vacancyID uuid.UUID, duplicates []uuid.UUID) error {
	ids := make([]string, 0, len(duplicates))
	for _, id := range duplicates {
		ids = append(ids, id.String())
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE applications SET is_duplicate = (id = ANY($2::uuid[])), updated_at = NOW()
		 WHERE vacancy_id = $1 AND is_duplicate <> (id = ANY($2::uuid[]))`,
		vacancyID, ids)
	if err != nil {
		return fmt.Errorf("set duplicate flags: %w", err)
	}
	return nil
}

// --- Analysis results ---

func (s *PostgresStore) GetAnalysisResult(ctx context.Context, applicationID uuid.UUID) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	err := s.pool.QueryRow(ctx,
		`SELECT id, application_id, score, sub_scores, verdict, priority, recommendation, strengths, weaknesses,
		   red_flags, interview_questions, reasoning, model, prompt_tokens, output_tokens, raw, created_at
		 FROM analysis_results WHERE application_id = $1`, applicationID,
	).Scan(&r.ID, &r.ApplicationID, &r.Score, &r.SubScores, &r.Verdict, &r.Priority, &r.Recommendation,
		&r.Strengths, &r.Weaknesses, &r.RedFlags, &r.InterviewQuestions, &r.Reasoning, &r.Model,
		&r.PromptTokens, &r.OutputTokens, &r.Raw, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	return &r, nil
}

// ReplaceAnalysisResult deletes any prior result of the application and
// inserts the new one in a single transaction, stamping analyzed_at.
func (s *PostgresStore) ReplaceAnalysisResult(ctx context.Context, r *models.AnalysisResult) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM analysis_results WHERE application_id = $1`, r.ApplicationID); err != nil {
			return fmt.Errorf("delete previous result: %w", err)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO analysis_results (id, application_id, score, sub_scores, verdict, priority, recommendation,
			   strengths, weaknesses, red_flags, interview_questions, reasoning, model, prompt_tokens,
			   output_tokens, raw, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			r.ID, r.ApplicationID, r.Score, r.SubScores, r.Verdict, r.Priority, r.Recommendation,
			r.Strengths, r.Weaknesses, r.RedFlags, r.InterviewQuestions, r.Reasoning, r.Model,
			r.PromptTokens, r.OutputTokens, r.Raw, r.CreatedAt)
		if err != nil {
			if isForeignKeyError(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert result: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE applications SET analyzed_at = $2, updated_at = NOW() WHERE id = $1`,
			r.ApplicationID, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("stamp application: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("replace analysis result: %w", err)
	}
	return nil
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
