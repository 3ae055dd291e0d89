package filtering

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

const forceFlagSetMsg = "force flag is set"

type alreadyAnalyzedFilter struct {
	force bool
}

// NewAlreadyAnalyzed creates a filter that skips candidates with a live result unless forced.
func NewAlreadyAnalyzed() Filter {
	return &alreadyAnalyzedFilter{}
}

func (f *alreadyAnalyzedFilter) Name() string { return "already_analyzed" }

func (f *alreadyAnalyzedFilter) Disable(string) {}

func (f *alreadyAnalyzedFilter) IsEnabled() bool { return true }

func (f *alreadyAnalyzedFilter) Validate(cfg *Config) error {
	f.force = cfg != nil && cfg.Force
	return nil
}

func (f *alreadyAnalyzedFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if f.force {
		deps.Logger.Debug("keeping already analyzed candidates", zap.String("reason", forceFlagSetMsg))
		return c, Step{Initial: initial, Left: c.Len()}, nil
	}

	excluded := c.Exclude(func(item *Candidate) bool {
		return item.Application.AnalyzedAt != nil
	})
	if len(excluded) > 0 {
		deps.Logger.Info("skipping already analyzed candidates",
			zap.Strings("excluded_applications", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *alreadyAnalyzedFilter) Status() Status {
	reason := ""
	if f.force {
		reason = forceFlagSetMsg
	}
	return Status{
		Name:    f.Name(),
		Enabled: true,
		Reason:  reason,
		Details: map[string]string{"reanalyze": strconv.FormatBool(f.force)},
	}
}
