// Package ingest stores job postings and candidate profiles and embeds their
// text through the external embedding model.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/ai"
	"github.com/spigell/talent-radar/internal/embedding"
	"github.com/spigell/talent-radar/internal/jobs"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

// Store persists catalog entries and their vectors.
type Store interface {
	UpsertJobs(ctx context.Context, list *jobs.Jobs) error
	UpsertCandidates(ctx context.Context, list *jobs.Candidates) error
	SaveEmbedding(ctx context.Context, e embedding.Embedding) error
	ExpireJobs(ctx context.Context, now time.Time) ([]string, error)
}

// Deps are the collaborators of the service. Index is optional; when set,
// embedded and expired jobs are applied to it right away. Dimension is the
// expected vector length when no index is given.
type Deps struct {
	Store     Store
	Embedder  ai.Embedder
	Index     vectorindex.Index
	Dimension int
	Logger    *zap.Logger
	Now       func() time.Time
}

// Summary describes one ingestion.
type Summary struct {
	Stored   int      `json:"stored"`
	Embedded int      `json:"embedded"`
	Skipped  []string `json:"skipped,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Expired  []string `json:"expired,omitempty"`
}

type Service struct {
	deps Deps
}

func New(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Embedder == nil:
		return nil, errors.New("embedder is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}, nil
}

// Jobs stores every posting and embeds the ones not yet expired. Expired
// postings are kept for hiring signals but never reach the index.
func (s *Service) Jobs(ctx context.Context, list *jobs.Jobs) (*Summary, error) {
	now := s.deps.Now().UTC()
	log := s.deps.Logger.With(zap.String("model", s.deps.Embedder.Model()))

	if err := s.deps.Store.UpsertJobs(ctx, list); err != nil {
		return nil, fmt.Errorf("storing jobs: %w", err)
	}
	summary := &Summary{Stored: list.Len()}

	var (
		owners []string
		posted = make(map[string]time.Time)
		texts  []string
	)
	for _, job := range list.Items {
		if job.Expired(now) {
			summary.Skipped = append(summary.Skipped, job.ID)
			continue
		}
		text := job.Text()
		if text == "" {
			log.Warn("job has no text to embed", zap.String("job_id", job.ID))
			summary.Skipped = append(summary.Skipped, job.ID)
			continue
		}
		owners = append(owners, job.ID)
		posted[job.ID] = job.PostedAt
		texts = append(texts, text)
	}

	vectors, err := s.embed(ctx, ai.TaskDocument, texts)
	if err != nil {
		return nil, err
	}

	for i, id := range owners {
		if err := s.validate(vectors[i]); err != nil {
			log.Warn("job vector rejected", zap.String("job_id", id), zap.Error(err))
			summary.Failed = append(summary.Failed, id)
			continue
		}
		e := embedding.Embedding{OwnerID: id, Kind: embedding.OwnerJob, Vector: vectors[i], CreatedAt: now}
		if err := s.deps.Store.SaveEmbedding(ctx, e); err != nil {
			return nil, fmt.Errorf("storing embedding of job %s: %w", id, err)
		}
		if s.deps.Index != nil {
			if err := s.deps.Index.Upsert(vectorindex.Entry{JobID: id, Vector: e.Vector, PostedAt: posted[id]}); err != nil {
				log.Warn("job not indexed", zap.String("job_id", id), zap.Error(err))
				summary.Failed = append(summary.Failed, id)
				continue
			}
		}
		summary.Embedded++
	}

	expired, err := s.Expire(ctx)
	if err != nil {
		return nil, err
	}
	summary.Expired = expired

	log.Info("jobs ingested",
		zap.Int("stored", summary.Stored),
		zap.Int("embedded", summary.Embedded),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("expired", len(summary.Expired)),
	)
	return summary, nil
}

// Candidates stores the profiles and embeds their text as search queries.
func (s *Service) Candidates(ctx context.Context, list *jobs.Candidates) (*Summary, error) {
	now := s.deps.Now().UTC()
	log := s.deps.Logger.With(zap.String("model", s.deps.Embedder.Model()))

	if err := s.deps.Store.UpsertCandidates(ctx, list); err != nil {
		return nil, fmt.Errorf("storing candidates: %w", err)
	}
	summary := &Summary{Stored: list.Len()}

	var owners, texts []string
	for _, c := range list.Items {
		text := c.Text()
		if text == "" {
			// Without an embedding the candidate is asked to complete the profile.
			log.Warn("candidate profile has no text to embed", zap.String("candidate_id", c.ID))
			summary.Skipped = append(summary.Skipped, c.ID)
			continue
		}
		owners = append(owners, c.ID)
		texts = append(texts, text)
	}

	vectors, err := s.embed(ctx, ai.TaskQuery, texts)
	if err != nil {
		return nil, err
	}

	for i, id := range owners {
		if err := s.validate(vectors[i]); err != nil {
			log.Warn("candidate vector rejected", zap.String("candidate_id", id), zap.Error(err))
			summary.Failed = append(summary.Failed, id)
			continue
		}
		e := embedding.Embedding{OwnerID: id, Kind: embedding.OwnerCandidate, Vector: vectors[i], CreatedAt: now}
		if err := s.deps.Store.SaveEmbedding(ctx, e); err != nil {
			return nil, fmt.Errorf("storing embedding of candidate %s: %w", id, err)
		}
		summary.Embedded++
	}

	log.Info("candidates ingested",
		zap.Int("stored", summary.Stored),
		zap.Int("embedded", summary.Embedded),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)),
	)
	return summary, nil
}

// validate rejects vectors the index would refuse, so they never reach the store.
func (s *Service) validate(vec []float32) error {
	dim := s.deps.Dimension
	if s.deps.Index != nil {
		dim = s.deps.Index.Dimension()
	}
	if dim <= 0 {
		dim = len(vec)
	}
	return vectorindex.Validate(vec, dim)
}

// Expire drops the vectors of postings past their expiry and removes them
// from the index.
func (s *Service) Expire(ctx context.Context) ([]string, error) {
	expired, err := s.deps.Store.ExpireJobs(ctx, s.deps.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("expiring jobs: %w", err)
	}

	if s.deps.Index != nil {
		for _, id := range expired {
			s.deps.Index.Remove(id)
		}
	}
	if len(expired) > 0 {
		s.deps.Logger.Info("jobs expired", zap.Int("count", len(expired)))
	}
	return expired, nil
}

func (s *Service) embed(ctx context.Context, task ai.Task, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := s.deps.Embedder.Embed(ctx, task, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
