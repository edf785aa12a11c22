package filtering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/jobs"
)

type maxAgeFilter struct {
	toggle
	maxAge time.Duration
}

// NewMaxAge creates a filter that removes jobs posted longer than max-age ago.
func NewMaxAge() Filter {
	return &maxAgeFilter{}
}

func (f *maxAgeFilter) Name() string { return "max_age" }

func (f *maxAgeFilter) Validate(cfg *Config) error {
	f.maxAge = 0
	if cfg == nil {
		return nil
	}
	if cfg.MaxAge < 0 {
		return fmt.Errorf("max-age must not be negative, got %s", cfg.MaxAge)
	}
	f.maxAge = cfg.MaxAge
	return nil
}

func (f *maxAgeFilter) Apply(_ context.Context, deps Deps, _ string, j *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := j.Len()
	if f.maxAge == 0 {
		return j, Step{Initial: initial, Dropped: 0, Left: j.Len()}, nil
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	cutoff := now().Add(-f.maxAge)

	excluded := j.ExcludeFunc(func(job *jobs.Job) bool {
		return !job.PostedAt.IsZero() && job.PostedAt.Before(cutoff)
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding stale jobs",
			zap.Time("cutoff", cutoff),
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", j.Len()),
		)
	}

	return j, Step{Initial: initial, Dropped: len(excluded), Left: j.Len()}, nil
}

func (f *maxAgeFilter) Status() Status {
	details := map[string]string{}
	if f.maxAge > 0 {
		details["max_age"] = f.maxAge.String()
	}
	return f.status(f.Name(), details)
}
