package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type collectionsFilter struct {
	skip []string
}

// NewCollections creates a filter that skips candidates in the configured collections.
func NewCollections() Filter {
	return &collectionsFilter{}
}

func (f *collectionsFilter) Name() string { return "collections" }

func (f *collectionsFilter) Disable(string) {}

func (f *collectionsFilter) IsEnabled() bool { return true }

func (f *collectionsFilter) Validate(cfg *Config) error {
	f.skip = nil
	if cfg != nil {
		f.skip = append(f.skip, cfg.SkipCollections...)
	}
	return nil
}

func (f *collectionsFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if len(f.skip) == 0 {
		return c, Step{Initial: initial, Left: c.Len()}, nil
	}

	skip := make(map[string]struct{}, len(f.skip))
	for _, label := range f.skip {
		skip[label] = struct{}{}
	}

	excluded := c.Exclude(func(item *Candidate) bool {
		_, ok := skip[item.Application.Collection]
		return ok
	})
	if len(excluded) > 0 {
		deps.Logger.Info("skipping candidates by collection",
			zap.Strings("collections", f.skip),
			zap.Strings("excluded_applications", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *collectionsFilter) Status() Status {
	details := map[string]string{}
	if len(f.skip) > 0 {
		details["collections"] = strings.Join(f.skip, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
