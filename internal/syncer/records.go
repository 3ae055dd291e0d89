package syncer

import (
	"strings"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/headhunter"
	"github.com/spigell/hh-screener/internal/models"
)

// VacancyRecord maps a platform vacancy to a new record. Owner and timestamps are left to the caller.
func VacancyRecord(v *headhunter.Vacancy) *models.Vacancy {
	record := &models.Vacancy{
		ID:          uuid.New(),
		ExternalID:  v.ID,
		Title:       strings.TrimSpace(v.Name),
		Description: v.Description,
		KeySkills:   v.Skills(),
		IsActive:    !v.Archived,
	}
	if v.Salary != nil {
		record.SalaryFrom = v.Salary.From
		record.SalaryTo = v.Salary.To
		record.SalaryCurrency = v.Salary.Currency
	}
	return record
}

// ApplicationRecord maps a negotiation to a new record. The vacancy and fingerprint are left to the caller.
func ApplicationRecord(n *headhunter.Negotiation) *models.Application {
	resume := n.Resume
	return &models.Application{
		ID:          uuid.New(),
		ExternalID:  n.ID,
		ResumeID:    strings.TrimSpace(resume.ID),
		ResumeTitle: strings.TrimSpace(resume.Title),
		FirstName:   strings.TrimSpace(resume.FirstName),
		LastName:    strings.TrimSpace(resume.LastName),
		MiddleName:  strings.TrimSpace(resume.MiddleName),
		Age:         resume.Age,
		Email:       resume.FirstOf(headhunter.ContactEmail),
		Phone:       resume.FirstOf(headhunter.ContactPhone),
		Collection:  n.Collection,
		RawPayload:  n.Raw,
		CreatedAt:   n.Created(),
	}
}
