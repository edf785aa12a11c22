package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/talent-radar/internal/embedding"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

// SaveEmbedding stores e, replacing any previous vector of the same owner.
func (s *Store) SaveEmbedding(ctx context.Context, e embedding.Embedding) error {
	if e.OwnerID == "" {
		return fmt.Errorf("embedding owner id is required")
	}
	if len(e.Vector) == 0 {
		return fmt.Errorf("embedding of %s %s is empty", e.Kind, e.OwnerID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (owner_kind, owner_id, dimension, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_kind, owner_id) DO UPDATE SET
			dimension = excluded.dimension,
			vector = excluded.vector,
			created_at = excluded.created_at`,
		string(e.Kind), e.OwnerID, len(e.Vector), encodeVector(e.Vector), toUnix(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving embedding of %s %s: %w", e.Kind, e.OwnerID, err)
	}
	return nil
}

// CandidateEmbedding implements embedding.Provider.
func (s *Store) CandidateEmbedding(ctx context.Context, candidateID string) (embedding.Embedding, error) {
	var (
		blob    []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT vector, created_at FROM embeddings WHERE owner_kind = ? AND owner_id = ?",
		string(embedding.OwnerCandidate), candidateID,
	).Scan(&blob, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return embedding.Embedding{}, fmt.Errorf("candidate %s: %w", candidateID, embedding.ErrMissingEmbedding)
	}
	if err != nil {
		return embedding.Embedding{}, fmt.Errorf("querying embedding of candidate %s: %w", candidateID, err)
	}

	vec, err := decodeVector(blob)
	if err != nil {
		return embedding.Embedding{}, fmt.Errorf("candidate %s: %w", candidateID, err)
	}
	return embedding.Embedding{
		OwnerID:   candidateID,
		Kind:      embedding.OwnerCandidate,
		Vector:    vec,
		CreatedAt: fromUnix(created),
	}, nil
}

// JobEntries returns the index entries of every embedded posting not expired at now.
func (s *Store) JobEntries(ctx context.Context, now time.Time) ([]vectorindex.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id, j.posted_at, e.vector FROM jobs j
		JOIN embeddings e ON e.owner_kind = 'job' AND e.owner_id = j.id
		WHERE j.expires_at = 0 OR j.expires_at > ?
		ORDER BY j.id`, toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("querying job embeddings: %w", err)
	}
	defer rows.Close()

	var entries []vectorindex.Entry
	for rows.Next() {
		var (
			id     string
			posted int64
			blob   []byte
		)
		if err := rows.Scan(&id, &posted, &blob); err != nil {
			return nil, fmt.Errorf("scanning job embedding: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", id, err)
		}
		entries = append(entries, vectorindex.Entry{JobID: id, Vector: vec, PostedAt: fromUnix(posted)})
	}
	return entries, rows.Err()
}

var _ embedding.Provider = (*Store)(nil)
