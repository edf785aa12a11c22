package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spigell/talent-radar/internal/jobs"
)

const jobColumns = "id, company_id, company_name, title, description, location, url, skills, posted_at, expires_at"

// UpsertJobs stores the postings, replacing existing ones with the same id.
func (s *Store) UpsertJobs(ctx context.Context, list *jobs.Jobs) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO jobs (`+jobColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				company_id = excluded.company_id,
				company_name = excluded.company_name,
				title = excluded.title,
				description = excluded.description,
				location = excluded.location,
				url = excluded.url,
				skills = excluded.skills,
				posted_at = excluded.posted_at,
				expires_at = excluded.expires_at`)
		if err != nil {
			return fmt.Errorf("preparing job upsert: %w", err)
		}
		defer stmt.Close()

		for _, job := range list.Items {
			skills, err := json.Marshal(nonNil(job.Skills))
			if err != nil {
				return fmt.Errorf("marshalling skills of job %s: %w", job.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				job.ID, job.Company.ID, job.Company.Name, job.Title, job.Description,
				job.Location, job.URL, string(skills), toUnix(job.PostedAt), toUnix(job.ExpiresAt),
			); err != nil {
				return fmt.Errorf("upserting job %s: %w", job.ID, err)
			}
		}
		return nil
	})
}

// JobsByID returns the postings with the given ids, in the order of ids.
// Unknown ids are skipped.
func (s *Store) JobsByID(ctx context.Context, ids []string) (*jobs.Jobs, error) {
	out := &jobs.Jobs{}
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*jobs.Job, len(ids))
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		byID[job.ID] = job
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}

	for _, id := range ids {
		if job, ok := byID[id]; ok {
			out.Items = append(out.Items, job)
			delete(byID, id)
		}
	}
	return out, nil
}

// ActiveJobs returns the postings not expired at now, ordered by id.
func (s *Store) ActiveJobs(ctx context.Context, now time.Time) (*jobs.Jobs, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE expires_at = 0 OR expires_at > ? ORDER BY id", toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("querying active jobs: %w", err)
	}
	defer rows.Close()

	out := &jobs.Jobs{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, job)
	}
	return out, rows.Err()
}

// ExpireJobs drops the embeddings of postings expired at now and returns
// their ids. Posting rows stay so past hiring velocity remains countable.
func (s *Store) ExpireJobs(ctx context.Context, now time.Time) ([]string, error) {
	var expired []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT j.id FROM jobs j
			JOIN embeddings e ON e.owner_kind = 'job' AND e.owner_id = j.id
			WHERE j.expires_at > 0 AND j.expires_at <= ?
			ORDER BY j.id`, toUnix(now))
		if err != nil {
			return fmt.Errorf("querying expired jobs: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			expired = append(expired, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range expired {
			if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE owner_kind = 'job' AND owner_id = ?", id); err != nil {
				return fmt.Errorf("deleting embedding of job %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// CompanyPostingCounts counts postings per company with posted_at in [from, to).
func (s *Store) CompanyPostingCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, COUNT(*) FROM jobs
		WHERE posted_at >= ? AND posted_at < ?
		GROUP BY company_id`, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("counting postings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			company string
			n       int
		)
		if err := rows.Scan(&company, &n); err != nil {
			return nil, fmt.Errorf("scanning posting count: %w", err)
		}
		counts[company] = n
	}
	return counts, rows.Err()
}

func scanJob(rows *sql.Rows) (*jobs.Job, error) {
	var (
		job               jobs.Job
		skills            string
		posted, expiresAt int64
	)
	if err := rows.Scan(&job.ID, &job.Company.ID, &job.Company.Name, &job.Title, &job.Description,
		&job.Location, &job.URL, &skills, &posted, &expiresAt); err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	if err := json.Unmarshal([]byte(skills), &job.Skills); err != nil {
		return nil, fmt.Errorf("decoding skills of job %s: %w", job.ID, err)
	}
	if len(job.Skills) == 0 {
		job.Skills = nil
	}
	job.PostedAt = fromUnix(posted)
	job.ExpiresAt = fromUnix(expiresAt)
	return &job, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
