package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spigell/talent-radar/internal/jobs"
)

// UpsertCandidates stores the profiles and replaces their application history.
func (s *Store) UpsertCandidates(ctx context.Context, list *jobs.Candidates) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range list.Items {
			skills, err := json.Marshal(nonNil(c.Skills))
			if err != nil {
				return fmt.Errorf("marshalling skills of candidate %s: %w", c.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO candidates (id, name, email, headline, summary, skills)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					email = excluded.email,
					headline = excluded.headline,
					summary = excluded.summary,
					skills = excluded.skills`,
				c.ID, c.Name, c.Email, c.Headline, c.Summary, string(skills),
			); err != nil {
				return fmt.Errorf("upserting candidate %s: %w", c.ID, err)
			}

			if _, err := tx.ExecContext(ctx, "DELETE FROM applications WHERE candidate_id = ?", c.ID); err != nil {
				return fmt.Errorf("clearing applications of candidate %s: %w", c.ID, err)
			}
			for _, jobID := range c.AppliedJobIDs {
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO applications (candidate_id, job_id) VALUES (?, ?)", c.ID, jobID,
				); err != nil {
					return fmt.Errorf("recording application %s/%s: %w", c.ID, jobID, err)
				}
			}
		}
		return nil
	})
}

// Candidate returns the stored profile, or nil if it is unknown.
func (s *Store) Candidate(ctx context.Context, id string) (*jobs.Candidate, error) {
	var (
		c      = jobs.Candidate{ID: id}
		skills string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT name, email, headline, summary, skills FROM candidates WHERE id = ?", id,
	).Scan(&c.Name, &c.Email, &c.Headline, &c.Summary, &skills)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying candidate %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(skills), &c.Skills); err != nil {
		return nil, fmt.Errorf("decoding skills of candidate %s: %w", id, err)
	}
	if len(c.Skills) == 0 {
		c.Skills = nil
	}

	applied, err := s.AppliedJobIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(applied) > 0 {
		c.AppliedJobIDs = applied
	}
	return &c, nil
}

// AppliedJobIDs lists the postings the candidate applied to, ordered by id.
func (s *Store) AppliedJobIDs(ctx context.Context, candidateID string) ([]string, error) {
	return s.queryIDs(ctx, "SELECT job_id FROM applications WHERE candidate_id = ? ORDER BY job_id", candidateID)
}

// CandidatesWithEmbedding lists the candidates that have a stored vector, ordered by id.
func (s *Store) CandidatesWithEmbedding(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, "SELECT owner_id FROM embeddings WHERE owner_kind = 'candidate' ORDER BY owner_id")
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
