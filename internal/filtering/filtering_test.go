package filtering

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/talent-radar/internal/jobs"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type history map[string][]string

func (h history) AppliedJobIDs(_ context.Context, candidateID string) ([]string, error) {
	return h[candidateID], nil
}

type failingHistory struct{}

func (failingHistory) AppliedJobIDs(context.Context, string) ([]string, error) {
	return nil, errors.New("store down")
}

func sample() *jobs.Jobs {
	return &jobs.Jobs{Items: []*jobs.Job{
		{ID: "fresh", Company: jobs.Company{ID: "acme"}, PostedAt: now.Add(-24 * time.Hour)},
		{ID: "applied", Company: jobs.Company{ID: "globex"}, PostedAt: now.Add(-24 * time.Hour)},
		{ID: "stale", Company: jobs.Company{ID: "globex"}, PostedAt: now.Add(-60 * 24 * time.Hour)},
		{ID: "blocked", Company: jobs.Company{ID: "evilcorp"}, PostedAt: now},
		{ID: "undated", Company: jobs.Company{ID: "acme"}},
	}}
}

func TestRunDefaultPipeline(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.DebugLevel)
	steps := Default()
	cfg := &Config{ExcludeCompanies: []string{" evilcorp "}, MaxAge: 30 * 24 * time.Hour, SkipApplied: true}
	if err := Validate(cfg, steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps := Deps{
		History: history{"c1": {"applied"}},
		Logger:  zap.New(core),
		Now:     func() time.Time { return now },
	}

	left, err := Run(context.Background(), deps, steps, "c1", sample())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(left.IDs(), []string{"fresh", "undated"}) {
		t.Fatalf("unexpected jobs left: %v", left.IDs())
	}

	entries := observed.FilterMessage("filter step").All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 filter steps logged, got %d", len(entries))
	}
	for _, entry := range entries {
		ctx := entry.ContextMap()
		if ctx["candidate_id"] != "c1" || ctx["dropped"] != int64(1) {
			t.Fatalf("unexpected step entry: %v", ctx)
		}
	}
}

func TestRunSkipsDisabledFilters(t *testing.T) {
	t.Parallel()

	steps := Default()
	if err := Validate(&Config{ExcludeCompanies: []string{"acme"}, SkipApplied: true}, steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	DisableByName(steps, "excluded_companies", "requested")

	left, err := Run(context.Background(), Deps{History: history{}}, steps, "c1", sample())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if left.Len() != 5 {
		t.Fatalf("expected no job to be removed, got %v", left.IDs())
	}

	statuses := Describe(steps)
	if statuses[1].Name != "excluded_companies" || statuses[1].Enabled || statuses[1].Reason != "requested" {
		t.Fatalf("unexpected status: %+v", statuses[1])
	}
	if statuses[0].Details["skip_applied"] != "true" {
		t.Fatalf("unexpected applied history status: %+v", statuses[0])
	}
}

func TestAppliedHistoryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history AppliedHistory
	}{
		{name: "missing source"},
		{name: "source failure", history: failingHistory{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			steps := []Filter{NewAppliedHistory()}
			if err := Validate(&Config{SkipApplied: true}, steps); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := Run(context.Background(), Deps{History: tt.history}, steps, "c1", sample()); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestAppliedHistoryNotSkipped(t *testing.T) {
	t.Parallel()

	steps := []Filter{NewAppliedHistory()}
	if err := Validate(&Config{}, steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	left, err := Run(context.Background(), Deps{History: failingHistory{}}, steps, "c1", sample())
	if err != nil {
		t.Fatalf("expected history to be left alone, got %v", err)
	}
	if left.Len() != 5 {
		t.Fatalf("expected all jobs kept, got %d", left.Len())
	}
}

func TestMaxAgeRejectsNegative(t *testing.T) {
	t.Parallel()

	if err := Validate(&Config{MaxAge: -time.Hour}, []Filter{NewMaxAge()}); err == nil {
		t.Fatalf("expected negative max-age to be rejected")
	}
}
