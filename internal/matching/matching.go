// Package matching answers "find my matches" for one candidate: it searches the
// vector index with the candidate's embedding, drops jobs the filters reject,
// joins the company signals and ranks the result.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/embedding"
	"github.com/spigell/talent-radar/internal/filtering"
	"github.com/spigell/talent-radar/internal/jobs"
	"github.com/spigell/talent-radar/internal/logger"
	"github.com/spigell/talent-radar/internal/ranker"
	"github.com/spigell/talent-radar/internal/signals"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

// ErrProfileIncomplete is returned when the candidate has no embedding yet.
// It wraps embedding.ErrMissingEmbedding.
var ErrProfileIncomplete = errors.New("complete your profile first")

// overfetch widens the index search on every round so that filtered jobs can be replaced.
const overfetch = 2

// JobLookup resolves job ids to postings. Unknown ids are left out of the result.
type JobLookup interface {
	JobsByID(ctx context.Context, ids []string) (*jobs.Jobs, error)
}

// Query bounds a match request.
type Query struct {
	Threshold float64 `mapstructure:"threshold" json:"threshold"`
	K         int     `mapstructure:"k" json:"k"`
}

type Deps struct {
	Embeddings embedding.Provider
	Index      vectorindex.Index
	Jobs       JobLookup
	Board      *signals.Board
	Ranker     *ranker.Ranker

	Filters      []filtering.Filter
	FilterConfig *filtering.Config
	History      filtering.AppliedHistory
	Logger       *zap.Logger
	Now          func() time.Time
}

// Result is the ranked answer for one candidate.
type Result struct {
	CandidateID string            `json:"candidate_id"`
	Query       Query             `json:"query"`
	Matches     []ranker.Enriched `json:"matches"`
	// Jobs holds the postings behind Matches.
	Jobs *jobs.Jobs `json:"-"`
}

func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Matches)
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Embeddings == nil:
		return nil, errors.New("embedding provider is required")
	case deps.Index == nil:
		return nil, errors.New("vector index is required")
	case deps.Jobs == nil:
		return nil, errors.New("job lookup is required")
	case deps.Ranker == nil:
		return nil, errors.New("ranker is required")
	}
	if deps.Board == nil {
		deps.Board = signals.NewBoard()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if err := filtering.Validate(deps.FilterConfig, deps.Filters); err != nil {
		return nil, fmt.Errorf("validating filters: %w", err)
	}

	return &Service{deps: deps}, nil
}

// FindMatches returns at most q.K ranked jobs whose similarity to the candidate
// is at least q.Threshold.
func (s *Service) FindMatches(ctx context.Context, candidateID string, q Query) (*Result, error) {
	log := s.deps.Logger.With(logger.EntityFields(candidateID, "", "")...)

	emb, err := s.deps.Embeddings.CandidateEmbedding(ctx, candidateID)
	if err != nil {
		if errors.Is(err, embedding.ErrMissingEmbedding) {
			return nil, fmt.Errorf("%w: candidate %s: %w", ErrProfileIncomplete, candidateID, err)
		}
		return nil, fmt.Errorf("loading candidate embedding: %w", err)
	}

	result := &Result{CandidateID: candidateID, Query: q, Matches: []ranker.Enriched{}, Jobs: &jobs.Jobs{}}

	hits, byID, err := s.search(ctx, log, candidateID, emb.Vector, q)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		log.Debug("no jobs above threshold", zap.Float64("threshold", q.Threshold))
		return result, nil
	}

	matches := make([]ranker.Match, 0, min(q.K, len(hits)))
	for _, h := range hits {
		job, ok := byID[h.JobID]
		if !ok {
			continue
		}
		matches = append(matches, ranker.Match{
			CandidateID: candidateID,
			JobID:       h.JobID,
			CompanyID:   job.Company.ID,
			Similarity:  h.Similarity,
			Rank:        len(matches) + 1,
			PostedAt:    h.PostedAt,
		})
		result.Jobs.Items = append(result.Jobs.Items, job)
		if len(matches) == q.K {
			break
		}
	}

	companies := make([]string, 0, len(matches))
	for _, m := range matches {
		companies = append(companies, m.CompanyID)
	}

	result.Matches = s.deps.Ranker.Rank(matches, s.deps.Board.Lookup(companies))

	log.Debug("matches ranked",
		zap.Int("hits", len(hits)),
		zap.Int("matches", len(result.Matches)),
	)

	return result, nil
}

// search pulls hits from the index until q.K of them survive the filters or
// no more jobs clear the threshold. It returns the hits in index order and the
// surviving jobs by id.
func (s *Service) search(ctx context.Context, log *zap.Logger, candidateID string, vec []float32, q Query) ([]vectorindex.Hit, map[string]*jobs.Job, error) {
	fetch := q.K
	if len(s.deps.Filters) > 0 && q.K > 0 {
		fetch = q.K * overfetch
	}

	for round := 1; ; round++ {
		hits, err := s.deps.Index.Search(ctx, vec, q.Threshold, fetch)
		if err != nil {
			return nil, nil, fmt.Errorf("searching index: %w", err)
		}
		if len(hits) == 0 {
			return nil, nil, nil
		}

		ids := make([]string, 0, len(hits))
		for _, h := range hits {
			ids = append(ids, h.JobID)
		}

		found, err := s.deps.Jobs.JobsByID(ctx, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("loading jobs: %w", err)
		}
		if found.Len() < len(ids) {
			log.Debug("indexed jobs missing from catalog", zap.Int("missing", len(ids)-found.Len()))
		}

		kept := found
		if len(s.deps.Filters) > 0 {
			kept, err = filtering.Run(ctx, filtering.Deps{
				History: s.deps.History,
				Logger:  log,
				Now:     s.deps.Now,
			}, s.deps.Filters, candidateID, found)
			if err != nil {
				return nil, nil, fmt.Errorf("filtering matches: %w", err)
			}
		}

		byID := make(map[string]*jobs.Job, kept.Len())
		for _, job := range kept.Items {
			byID[job.ID] = job
		}

		// A short page means every job above the threshold was seen.
		if len(byID) >= q.K || len(hits) < fetch {
			if round > 1 {
				log.Debug("widened index search", zap.Int("rounds", round), zap.Int("fetched", len(hits)))
			}
			return hits, byID, nil
		}
		fetch *= overfetch
	}
}
