package cmd

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/embedding"
	"github.com/spigell/talent-radar/internal/jobs"
	"github.com/spigell/talent-radar/internal/store/sqlite"
)

func TestSyncIndexPicksUpJobsFromOtherWriters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	config, err := getConfig()
	if err != nil {
		t.Fatalf("decoding default config: %v", err)
	}
	config.Database.Path = filepath.Join(t.TempDir(), "radar.db")
	config.Index.Dimension = 2

	eng, err := newEngine(ctx, config, zap.NewNop(), true)
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	// A separate ingest process writes to the same database.
	writer, err := sqlite.Open(ctx, config.Database.Path)
	if err != nil {
		t.Fatalf("opening writer: %v", err)
	}
	t.Cleanup(func() { writer.Close() })

	list := &jobs.Jobs{Items: []*jobs.Job{
		{ID: "fresh", Title: "Go developer", Company: jobs.Company{ID: "acme"}, PostedAt: now.Add(-time.Hour)},
		{ID: "short-lived", Title: "Go lead", Company: jobs.Company{ID: "acme"}, PostedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
	}}
	if err := writer.UpsertJobs(ctx, list); err != nil {
		t.Fatalf("storing jobs: %v", err)
	}
	for _, id := range []string{"fresh", "short-lived"} {
		e := embedding.Embedding{OwnerID: id, Kind: embedding.OwnerJob, Vector: []float32{1, 0}, CreatedAt: now}
		if err := writer.SaveEmbedding(ctx, e); err != nil {
			t.Fatalf("storing embedding: %v", err)
		}
	}

	res, err := eng.syncIndex(ctx, now)
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	slices.Sort(res.Upserted)
	if !slices.Equal(res.Upserted, []string{"fresh", "short-lived"}) || eng.index.Len() != 2 {
		t.Fatalf("expected both jobs indexed, got %+v (len %d)", res, eng.index.Len())
	}

	res, err = eng.syncIndex(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	if len(res.Upserted) != 0 || !slices.Equal(res.Removed, []string{"short-lived"}) || eng.index.Len() != 1 {
		t.Fatalf("expected the expired job removed, got %+v (len %d)", res, eng.index.Len())
	}
}
