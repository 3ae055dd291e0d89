package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type duplicatesFilter struct {
	enabled bool
	reason  string
}

// NewDuplicates creates a filter that skips resubmitted resumes. Besides the
// stored flag it asks deps.Duplicates, when set, so candidates synced after the
// last dedup pass are caught too.
func NewDuplicates() Filter {
	return &duplicatesFilter{enabled: true}
}

func (f *duplicatesFilter) Name() string { return "duplicates" }

func (f *duplicatesFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *duplicatesFilter) IsEnabled() bool { return f.enabled }

func (f *duplicatesFilter) Validate(cfg *Config) error {
	if cfg != nil && cfg.KeepDuplicates {
		f.Disable("duplicates are kept by configuration")
	}
	return nil
}

func (f *duplicatesFilter) Apply(ctx context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()

	var lookupErr error
	excluded := c.Exclude(func(item *Candidate) bool {
		app := item.Application
		if app.IsDuplicate {
			return true
		}
		if deps.Duplicates == nil || app.Fingerprint == "" || lookupErr != nil {
			return false
		}
		dup, err := deps.Duplicates.IsDuplicate(ctx, app.VacancyID, app.Fingerprint, app.ID)
		if err != nil {
			lookupErr = fmt.Errorf("check application %s: %w", app.ID, err)
			return false
		}
		return dup
	})
	if lookupErr != nil {
		return c, Step{}, lookupErr
	}

	if len(excluded) > 0 {
		deps.Logger.Info("skipping duplicate candidates",
			zap.Strings("excluded_applications", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *duplicatesFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.enabled, Reason: f.reason}
}
