package filtering

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/jobs"
)

type appliedHistoryFilter struct {
	toggle
	skip bool
}

// NewAppliedHistory creates a filter that removes jobs the candidate already applied to.
func NewAppliedHistory() Filter {
	return &appliedHistoryFilter{}
}

func (f *appliedHistoryFilter) Name() string { return "applied_history" }

func (f *appliedHistoryFilter) Validate(cfg *Config) error {
	f.skip = cfg != nil && cfg.SkipApplied
	return nil
}

func (f *appliedHistoryFilter) Apply(ctx context.Context, deps Deps, candidateID string, j *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := j.Len()
	if !f.skip || initial == 0 {
		return j, Step{Initial: initial, Dropped: 0, Left: j.Len()}, nil
	}

	if deps.History == nil {
		return j, Step{}, fmt.Errorf("applied history source is required")
	}

	applied, err := deps.History.AppliedJobIDs(ctx, candidateID)
	if err != nil {
		return j, Step{}, fmt.Errorf("get applied jobs: %w", err)
	}

	excluded := j.Exclude(jobs.JobIDField, applied)
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding jobs the candidate already applied to",
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", j.Len()),
		)
	}

	return j, Step{Initial: initial, Dropped: len(excluded), Left: j.Len()}, nil
}

func (f *appliedHistoryFilter) Status() Status {
	return f.status(f.Name(), map[string]string{
		"skip_applied": strconv.FormatBool(f.skip),
	})
}
