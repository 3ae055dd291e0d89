package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Collection labels of the platform's review buckets.
const (
	CollectionNew       = "new"
	CollectionConsider  = "consider"
	CollectionInterview = "interview"
	CollectionRejected  = "rejected"
)

// Application is one candidate response to a vacancy. ExternalID is globally
// unique: a response moved to another vacancy is re-owned, not duplicated.
type Application struct {
	ID          uuid.UUID       `json:"id"`
	VacancyID   uuid.UUID       `json:"vacancy_id"`
	ExternalID  string          `json:"external_id"`
	ResumeID    string          `json:"resume_id"`
	ResumeTitle string          `json:"resume_title"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	MiddleName  string          `json:"middle_name,omitempty"`
	Age         *int            `json:"age,omitempty"`
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Collection  string          `json:"collection"`
	RawPayload  json.RawMessage `json:"raw_payload"`
	Fingerprint string          `json:"fingerprint"`
	IsDuplicate bool            `json:"is_duplicate"`
	AnalyzedAt  *time.Time      `json:"analyzed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FullName joins the non-empty name parts.
func (a *Application) FullName() string {
	name := ""
	for _, part := range []string{a.LastName, a.FirstName, a.MiddleName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

// Before reports whether a precedes b in canonical order: creation time, then
// the platform id (numerically for the digit ids hh.ru issues), then the row id.
// Submissions sharing a second-resolution timestamp keep a stable order.
func (a *Application) Before(b *Application) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if len(a.ExternalID) != len(b.ExternalID) {
		return len(a.ExternalID) < len(b.ExternalID)
	}
	if a.ExternalID != b.ExternalID {
		return a.ExternalID < b.ExternalID
	}
	return a.ID.String() < b.ID.String()
}
