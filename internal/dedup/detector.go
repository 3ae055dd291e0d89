package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/models"
	"go.uber.org/zap"
)

// Repository is the storage used by the Detector.
type Repository interface {
	ListApplicationsByVacancy(ctx context.Context, vacancyID uuid.UUID) ([]models.Application, error)
	SetDuplicateFlags(ctx context.Context, vacancyID uuid.UUID, duplicates []uuid.UUID) error
}

// Resolve returns the ids of applications repeating the fingerprint of an
// earlier application. The first one in models.Application.Before order is canonical.
// Applications without a fingerprint never take part.
func Resolve(apps []models.Application) []uuid.UUID {
	ordered := make([]models.Application, len(apps))
	copy(ordered, apps)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Before(&ordered[j])
	})

	canonical := make(map[string]uuid.UUID, len(ordered))
	var duplicates []uuid.UUID
	for _, app := range ordered {
		if app.Fingerprint == "" {
			continue
		}
		if _, ok := canonical[app.Fingerprint]; ok {
			duplicates = append(duplicates, app.ID)
			continue
		}
		canonical[app.Fingerprint] = app.ID
	}

	return duplicates
}

// Detector applies Resolve to persisted applications.
type Detector struct {
	repo   Repository
	logger *zap.Logger
}

func NewDetector(repo Repository, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{repo: repo, logger: logger}
}

// Mark recomputes the duplicate flags of a vacancy and returns the number of duplicates.
func (d *Detector) Mark(ctx context.Context, vacancyID uuid.UUID) (int, error) {
	apps, err := d.repo.ListApplicationsByVacancy(ctx, vacancyID)
	if err != nil {
		return 0, fmt.Errorf("list applications of vacancy %s: %w", vacancyID, err)
	}

	duplicates := Resolve(apps)
	if err := d.repo.SetDuplicateFlags(ctx, vacancyID, duplicates); err != nil {
		return 0, fmt.Errorf("set duplicate flags of vacancy %s: %w", vacancyID, err)
	}

	if len(duplicates) > 0 {
		d.logger.Info("duplicates marked",
			zap.String("vacancy_id", vacancyID.String()),
			zap.Int("applications", len(apps)),
			zap.Int("duplicates", len(duplicates)),
		)
	}

	return len(duplicates), nil
}

// IsDuplicate reports whether another non-duplicate application of the vacancy,
// created before selfID, carries the fingerprint. An unknown selfID is treated
// as the newest application.
func (d *Detector) IsDuplicate(ctx context.Context, vacancyID uuid.UUID, fingerprint string, selfID uuid.UUID) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}

	apps, err := d.repo.ListApplicationsByVacancy(ctx, vacancyID)
	if err != nil {
		return false, fmt.Errorf("list applications of vacancy %s: %w", vacancyID, err)
	}

	var self *models.Application
	for i := range apps {
		if apps[i].ID == selfID {
			self = &apps[i]
			break
		}
	}

	for _, app := range apps {
		if app.ID == selfID || app.IsDuplicate || app.Fingerprint != fingerprint {
			continue
		}
		if self == nil || app.Before(self) {
			return true, nil
		}
	}

	return false, nil
}
