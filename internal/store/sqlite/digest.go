package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/talent-radar/internal/dispatcher"
	"github.com/spigell/talent-radar/internal/ranker"
)

// InsertIfAbsent records a digest for the key unless one already exists.
func (s *Store) InsertIfAbsent(ctx context.Context, rec dispatcher.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO digest_dedupe (key, candidate_id, run_date, run_id, match_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Key, rec.CandidateID, rec.RunDate, rec.RunID, rec.MatchCount, toUnix(rec.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting dedupe record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking dedupe insert: %w", err)
	}
	return n == 1, nil
}

// Emit stores the notification; the store doubles as an outbox sink.
func (s *Store) Emit(ctx context.Context, n dispatcher.Notification) error {
	matches, err := json.Marshal(n.Matches)
	if err != nil {
		return fmt.Errorf("marshalling matches of notification %s: %w", n.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, run_id, run_date, candidate_id, body, matches, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RunID, n.RunDate, n.CandidateID, n.Body, string(matches), toUnix(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storing notification %s: %w", n.ID, err)
	}
	return nil
}

// Notifications returns the candidate's stored notifications, newest first.
func (s *Store) Notifications(ctx context.Context, candidateID string) ([]dispatcher.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, run_date, body, matches, created_at FROM notifications
		WHERE candidate_id = ? ORDER BY created_at DESC, id`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []dispatcher.Notification
	for rows.Next() {
		var (
			n       = dispatcher.Notification{CandidateID: candidateID}
			matches string
			created int64
		)
		if err := rows.Scan(&n.ID, &n.RunID, &n.RunDate, &n.Body, &matches, &created); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		var enriched []ranker.Enriched
		if err := json.Unmarshal([]byte(matches), &enriched); err != nil {
			return nil, fmt.Errorf("decoding matches of notification %s: %w", n.ID, err)
		}
		n.Matches = enriched
		n.CreatedAt = fromUnix(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

var (
	_ dispatcher.DedupeStore     = (*Store)(nil)
	_ dispatcher.Sink            = (*Store)(nil)
	_ dispatcher.CandidateSource = (*Store)(nil)
)
