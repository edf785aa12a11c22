package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/spigell/talent-radar/internal/embedding"
	"github.com/spigell/talent-radar/internal/filtering"
	"github.com/spigell/talent-radar/internal/jobs"
	"github.com/spigell/talent-radar/internal/ranker"
	"github.com/spigell/talent-radar/internal/signals"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

var posted = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type catalog map[string]*jobs.Job

func (c catalog) JobsByID(_ context.Context, ids []string) (*jobs.Jobs, error) {
	out := &jobs.Jobs{}
	for _, id := range ids {
		if job, ok := c[id]; ok {
			out.Items = append(out.Items, job)
		}
	}
	return out, nil
}

type history map[string][]string

func (h history) AppliedJobIDs(_ context.Context, candidateID string) ([]string, error) {
	return h[candidateID], nil
}

type brokenProvider struct{}

func (brokenProvider) CandidateEmbedding(context.Context, string) (embedding.Embedding, error) {
	return embedding.Embedding{}, errors.New("store down")
}

// unitAt returns a 2D unit vector whose cosine with (1, 0) is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

type fixture struct {
	index   vectorindex.Index
	catalog catalog
	board   *signals.Board
	ranker  *ranker.Ranker
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	idx := vectorindex.NewBruteForce(2)
	cat := catalog{}
	for _, j := range []struct {
		id, company string
		sim         float64
	}{
		{"j1", "acme", 0.92},
		{"j2", "globex", 0.81},
		{"j3", "acme", 0.40},
		{"j4", "rocket", 0.78},
	} {
		if err := idx.Upsert(vectorindex.Entry{JobID: j.id, Vector: unitAt(j.sim), PostedAt: posted}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		cat[j.id] = &jobs.Job{ID: j.id, Company: jobs.Company{ID: j.company}, PostedAt: posted}
	}

	board := signals.NewBoard()
	board.Publish(map[string]signals.Snapshot{
		"rocket": {CompanyID: "rocket", Velocity: 3, Label: signals.LabelAggressiveHirer},
	})

	r, err := ranker.New(ranker.Config{
		Weights: ranker.Weights{Similarity: 0.5, Velocity: 0.5},
		Bounds:  ranker.Bounds{MinVelocity: -1, MaxVelocity: 3},
	})
	if err != nil {
		t.Fatalf("ranker: %v", err)
	}

	return fixture{index: idx, catalog: cat, board: board, ranker: r}
}

func (f fixture) service(t *testing.T, deps Deps) *Service {
	t.Helper()
	if deps.Embeddings == nil {
		deps.Embeddings = embedding.MemoryProvider{"c1": {OwnerID: "c1", Kind: embedding.OwnerCandidate, Vector: []float32{1, 0}}}
	}
	deps.Index = f.index
	deps.Jobs = f.catalog
	deps.Board = f.board
	deps.Ranker = f.ranker

	s, err := NewService(deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func ids(matches []ranker.Enriched) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.JobID)
	}
	return out
}

func TestFindMatchesRanksWithSignals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.service(t, Deps{})

	res, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// j4 is less similar than j2 but its company is hiring aggressively.
	if got := ids(res.Matches); !reflect.DeepEqual(got, []string{"j4", "j1", "j2"}) {
		t.Fatalf("unexpected ranking: %v", got)
	}
	if res.Matches[0].Label != signals.LabelAggressiveHirer || res.Matches[1].Label != signals.LabelStable {
		t.Fatalf("unexpected labels: %+v", res.Matches)
	}
	if res.Jobs.Len() != 3 {
		t.Fatalf("expected the postings behind the matches, got %d", res.Jobs.Len())
	}
}

func TestFindMatchesKeepsTopKBySimilarity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.service(t, Deps{})

	res, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(res.Matches); !reflect.DeepEqual(got, []string{"j1", "j2"}) {
		t.Fatalf("unexpected matches: %v", got)
	}
}

func TestFindMatchesAppliesFilters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.service(t, Deps{
		Filters:      filtering.Default(),
		FilterConfig: &filtering.Config{SkipApplied: true, ExcludeCompanies: []string{"rocket"}},
		History:      history{"c1": {"j1"}},
	})

	res, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.3, K: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(res.Matches); !reflect.DeepEqual(got, []string{"j2", "j3"}) {
		t.Fatalf("expected filtered jobs to be replaced, got %v", got)
	}
}

func TestFindMatchesWidensSearchWhenFiltersDropMost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := range 6 {
		id := fmt.Sprintf("r%d", i)
		if err := f.index.Upsert(vectorindex.Entry{JobID: id, Vector: unitAt(0.99 - float64(i)*0.01), PostedAt: posted}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		f.catalog[id] = &jobs.Job{ID: id, Company: jobs.Company{ID: "rocket"}, PostedAt: posted}
	}
	s := f.service(t, Deps{
		Filters:      filtering.Default(),
		FilterConfig: &filtering.Config{ExcludeCompanies: []string{"rocket"}},
	})

	res, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(res.Matches); !reflect.DeepEqual(got, []string{"j1", "j2"}) {
		t.Fatalf("expected the best unfiltered jobs, got %v", got)
	}
}

func TestFindMatchesDropsJobsMissingFromCatalog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	delete(f.catalog, "j1")
	s := f.service(t, Deps{})

	res, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(res.Matches); !reflect.DeepEqual(got, []string{"j4", "j2"}) {
		t.Fatalf("unexpected matches: %v", got)
	}
}

func TestFindMatchesErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	t.Run("missing embedding", func(t *testing.T) {
		s := f.service(t, Deps{Embeddings: embedding.MemoryProvider{}})
		_, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 3})
		if !errors.Is(err, ErrProfileIncomplete) || !errors.Is(err, embedding.ErrMissingEmbedding) {
			t.Fatalf("expected profile incomplete, got %v", err)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		s := f.service(t, Deps{Embeddings: brokenProvider{}})
		_, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 3})
		if err == nil || errors.Is(err, ErrProfileIncomplete) {
			t.Fatalf("expected a plain failure, got %v", err)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := f.service(t, Deps{Embeddings: embedding.MemoryProvider{"c1": {Vector: []float32{1, 0, 0}}}})
		_, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 3})
		if !errors.Is(err, vectorindex.ErrDimensionMismatch) {
			t.Fatalf("expected dimension mismatch, got %v", err)
		}
	})

	t.Run("invalid k", func(t *testing.T) {
		s := f.service(t, Deps{})
		_, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.5, K: 0})
		if !errors.Is(err, vectorindex.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
}

func TestFindMatchesNothingAboveThreshold(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.service(t, Deps{})

	res, err := s.FindMatches(context.Background(), "c1", Query{Threshold: 0.99, K: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Len() != 0 || res.Matches == nil {
		t.Fatalf("expected an empty non-nil result, got %+v", res)
	}
}

func TestNewServiceRequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewService(Deps{}); err == nil {
		t.Fatalf("expected missing deps to be rejected")
	}
}
