// Package storetest holds behavior tests shared by every store.Store implementation.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/models"
	"github.com/spigell/hh-screener/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the suite against stores produced by newStore. Every subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("SyncJobLifecycle", func(t *testing.T) { testSyncJobLifecycle(t, newStore(t)) })
	t.Run("VacancyUpsertIsIdempotent", func(t *testing.T) { testVacancyUpsert(t, newStore(t)) })
	t.Run("ApplicationUpsertReowns", func(t *testing.T) { testApplicationUpsert(t, newStore(t)) })
	t.Run("DuplicateFlagsAndCounters", func(t *testing.T) { testDuplicateFlags(t, newStore(t)) })
	t.Run("ApplicationOrderBreaksTies", func(t *testing.T) { testApplicationOrder(t, newStore(t)) })
	t.Run("ReplaceAnalysisResult", func(t *testing.T) { testReplaceAnalysisResult(t, newStore(t)) })
	t.Run("DeactivateVacancies", func(t *testing.T) { testDeactivateVacancies(t, newStore(t)) })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewVacancy returns an unsaved vacancy.
func NewVacancy(userID uuid.UUID, externalID string) *models.Vacancy {
	ts := now()
	return &models.Vacancy{
		ID:         uuid.New(),
		UserID:     userID,
		ExternalID: externalID,
		Title:      "Go Developer",
		KeySkills:  []string{"Go"},
		IsActive:   true,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

// NewApplication returns an unsaved application.
func NewApplication(vacancyID uuid.UUID, externalID string) *models.Application {
	ts := now()
	return &models.Application{
		ID:          uuid.New(),
		VacancyID:   vacancyID,
		ExternalID:  externalID,
		ResumeID:    "resume-" + externalID,
		ResumeTitle: "Backend",
		FirstName:   "Ivan",
		Collection:  models.CollectionNew,
		RawPayload:  json.RawMessage(`{"id":"` + externalID + `"}`),
		Fingerprint: "fp-" + externalID,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func testSyncJobLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()
	job := &models.SyncJob{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		Status:           models.JobStatusPending,
		SyncVacancies:    true,
		SyncApplications: true,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	require.NoError(t, s.CreateSyncJob(ctx, job))

	err := s.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusCompleted)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	require.NoError(t, s.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusRunning))
	require.NoError(t, s.UpdateSyncJobProgress(ctx, job.ID, store.JobProgress{
		VacanciesSynced:    2,
		ApplicationsSynced: 10,
		Errors:             []string{"vacancy 1: boom"},
	}))
	require.NoError(t, s.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusCompleted,
		store.WithJobErrors([]string{"vacancy 1: boom", "vacancy 2: bang"})))

	got, err := s.GetSyncJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 2, got.VacanciesSynced)
	assert.Equal(t, 10, got.ApplicationsSynced)
	assert.Equal(t, []string{"vacancy 1: boom", "vacancy 2: bang"}, got.Errors)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.True(t, got.IsTerminal())

	err = s.UpdateSyncJobStatus(ctx, job.ID, models.JobStatusRunning)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.GetSyncJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testVacancyUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()

	first, err := s.UpsertVacancy(ctx, NewVacancy(userID, "100"))
	require.NoError(t, err)

	again := NewVacancy(userID, "100")
	again.Title = "Senior Go Developer"
	salary := 300000
	again.SalaryFrom = &salary
	second, err := s.UpsertVacancy(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Senior Go Developer", second.Title)
	require.NotNil(t, second.SalaryFrom)
	assert.Equal(t, 300000, *second.SalaryFrom)

	otherOwner, err := s.UpsertVacancy(ctx, NewVacancy(uuid.New(), "100"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, otherOwner.ID)

	vacancies, err := s.ListVacancies(ctx, userID, false)
	require.NoError(t, err)
	assert.Len(t, vacancies, 1)
}

func testApplicationUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()

	v1, err := s.UpsertVacancy(ctx, NewVacancy(userID, "1"))
	require.NoError(t, err)
	v2, err := s.UpsertVacancy(ctx, NewVacancy(userID, "2"))
	require.NoError(t, err)

	first, err := s.UpsertApplication(ctx, NewApplication(v1.ID, "n1"))
	require.NoError(t, err)

	moved := NewApplication(v2.ID, "n1")
	moved.Collection = models.CollectionInterview
	second, err := s.UpsertApplication(ctx, moved)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, v2.ID, second.VacancyID)
	assert.Equal(t, models.CollectionInterview, second.Collection)

	inFirst, err := s.ListApplicationsByVacancy(ctx, v1.ID)
	require.NoError(t, err)
	assert.Empty(t, inFirst)

	inSecond, err := s.ListApplicationsByVacancy(ctx, v2.ID)
	require.NoError(t, err)
	require.Len(t, inSecond, 1)
	assert.JSONEq(t, `{"id":"n1"}`, string(inSecond[0].RawPayload))
}

func testDuplicateFlags(t *testing.T, s store.Store) {
	ctx := context.Background()

	v, err := s.UpsertVacancy(ctx, NewVacancy(uuid.New(), "1"))
	require.NoError(t, err)

	a1, err := s.UpsertApplication(ctx, NewApplication(v.ID, "a1"))
	require.NoError(t, err)
	a2, err := s.UpsertApplication(ctx, NewApplication(v.ID, "a2"))
	require.NoError(t, err)
	_, err = s.UpsertApplication(ctx, NewApplication(v.ID, "a3"))
	require.NoError(t, err)

	require.NoError(t, s.SetDuplicateFlags(ctx, v.ID, []uuid.UUID{a2.ID}))
	require.NoError(t, s.RefreshVacancyCounters(ctx, v.ID))

	got, err := s.GetVacancy(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ApplicationsCount)
	assert.Equal(t, 2, got.UnanalyzedCount)

	dup, err := s.GetApplication(ctx, a2.ID)
	require.NoError(t, err)
	assert.True(t, dup.IsDuplicate)

	// Flags follow the latest resolution.
	require.NoError(t, s.SetDuplicateFlags(ctx, v.ID, []uuid.UUID{a1.ID}))
	dup, err = s.GetApplication(ctx, a2.ID)
	require.NoError(t, err)
	assert.False(t, dup.IsDuplicate)

	// Resync keeps the flag.
	_, err = s.UpsertApplication(ctx, NewApplication(v.ID, "a1"))
	require.NoError(t, err)
	canonical, err := s.GetApplication(ctx, a1.ID)
	require.NoError(t, err)
	assert.True(t, canonical.IsDuplicate)
}

func testApplicationOrder(t *testing.T, s store.Store) {
	ctx := context.Background()

	v, err := s.UpsertVacancy(ctx, NewVacancy(uuid.New(), "1"))
	require.NoError(t, err)

	at := now().Truncate(time.Second)
	for _, externalID := range []string{"1000", "999", "20"} {
		app := NewApplication(v.ID, externalID)
		app.CreatedAt = at
		_, err := s.UpsertApplication(ctx, app)
		require.NoError(t, err)
	}
	earliest := NewApplication(v.ID, "5000")
	earliest.CreatedAt = at.Add(-time.Second)
	_, err = s.UpsertApplication(ctx, earliest)
	require.NoError(t, err)

	apps, err := s.ListApplicationsByVacancy(ctx, v.ID)
	require.NoError(t, err)

	got := make([]string, 0, len(apps))
	for _, app := range apps {
		got = append(got, app.ExternalID)
	}
	assert.Equal(t, []string{"5000", "20", "999", "1000"}, got)
}

func testReplaceAnalysisResult(t *testing.T, s store.Store) {
	ctx := context.Background()

	v, err := s.UpsertVacancy(ctx, NewVacancy(uuid.New(), "1"))
	require.NoError(t, err)
	app, err := s.UpsertApplication(ctx, NewApplication(v.ID, "a1"))
	require.NoError(t, err)

	_, err = s.GetAnalysisResult(ctx, app.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, score := range []int{45, 95} {
		result := &models.AnalysisResult{
			ID:             uuid.New(),
			ApplicationID:  app.ID,
			Score:          score,
			SubScores:      map[string]int{"skills": 8},
			Verdict:        "High",
			Priority:       "top",
			Recommendation: "interview",
			Strengths:      []string{"Go"},
			Raw:            json.RawMessage(`{"verdict":"High"}`),
			CreatedAt:      now(),
		}
		require.NoError(t, s.ReplaceAnalysisResult(ctx, result))
	}

	got, err := s.GetAnalysisResult(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 95, got.Score)
	assert.Equal(t, map[string]int{"skills": 8}, got.SubScores)

	analyzed, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.NotNil(t, analyzed.AnalyzedAt)

	err = s.ReplaceAnalysisResult(ctx, &models.AnalysisResult{
		ID:            uuid.New(),
		ApplicationID: uuid.New(),
		Score:         15,
		Verdict:       "Mismatch",
		CreatedAt:     now(),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeactivateVacancies(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := uuid.New()

	for _, id := range []string{"1", "2", "3"} {
		_, err := s.UpsertVacancy(ctx, NewVacancy(userID, id))
		require.NoError(t, err)
	}

	count, err := s.DeactivateVacancies(ctx, userID, []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	active, err := s.ListVacancies(ctx, userID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "2", active[0].ExternalID)
}
