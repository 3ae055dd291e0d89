// Package models contains the records shared by the ingestion and scoring pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// SyncJob tracks one synchronization of a user's vacancies and applications.
// Only the sync orchestrator mutates it; completed and failed are terminal.
type SyncJob struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	Status             string     `json:"status"`
	SyncVacancies      bool       `json:"sync_vacancies"`
	SyncApplications   bool       `json:"sync_applications"`
	VacanciesSynced    int        `json:"vacancies_synced"`
	ApplicationsSynced int        `json:"applications_synced"`
	Errors             []string   `json:"errors"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// validTransitions lists the allowed job status changes. pending -> failed
// covers a job cancelled by an operator before it started.
var validTransitions = map[string][]string{
	JobStatusPending: {JobStatusRunning, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
