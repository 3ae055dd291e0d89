package models

import (
	"time"

	"github.com/google/uuid"
)

// Vacancy is a job posting owned by a platform user. It is unique by
// (UserID, ExternalID) and never deleted by the pipeline.
type Vacancy struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	ExternalID        string     `json:"external_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	KeySkills         []string   `json:"key_skills"`
	SalaryFrom        *int       `json:"salary_from,omitempty"`
	SalaryTo          *int       `json:"salary_to,omitempty"`
	SalaryCurrency    string     `json:"salary_currency,omitempty"`
	IsActive          bool       `json:"is_active"`
	ApplicationsCount int        `json:"applications_count"`
	UnanalyzedCount   int        `json:"unanalyzed_count"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
