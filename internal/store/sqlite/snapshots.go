package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spigell/talent-radar/internal/signals"
)

// ReplaceSnapshots swaps the whole persisted snapshot set in one transaction.
func (s *Store) ReplaceSnapshots(ctx context.Context, snapshots []signals.Snapshot) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM signal_snapshots"); err != nil {
			return fmt.Errorf("clearing snapshots: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO signal_snapshots (company_id, current_from, current_to, previous_from, previous_to,
				count_current, count_previous, velocity, label, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing snapshot insert: %w", err)
		}
		defer stmt.Close()

		for _, snap := range snapshots {
			w := snap.Window
			if _, err := stmt.ExecContext(ctx, snap.CompanyID,
				toUnix(w.CurrentFrom), toUnix(w.CurrentTo), toUnix(w.PreviousFrom), toUnix(w.PreviousTo),
				snap.CountCurrent, snap.CountPrevious, snap.Velocity, string(snap.Label), toUnix(snap.ComputedAt),
			); err != nil {
				return fmt.Errorf("inserting snapshot of %s: %w", snap.CompanyID, err)
			}
		}
		return nil
	})
}

// LoadSnapshots returns the persisted snapshot set ordered by company id.
func (s *Store) LoadSnapshots(ctx context.Context) ([]signals.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id, current_from, current_to, previous_from, previous_to,
			count_current, count_previous, velocity, label, computed_at
		FROM signal_snapshots ORDER BY company_id`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []signals.Snapshot
	for rows.Next() {
		var (
			snap                                 signals.Snapshot
			curFrom, curTo, prevFrom, prevTo, at int64
			label                                string
		)
		if err := rows.Scan(&snap.CompanyID, &curFrom, &curTo, &prevFrom, &prevTo,
			&snap.CountCurrent, &snap.CountPrevious, &snap.Velocity, &label, &at); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Window = signals.Window{
			CurrentFrom:  fromUnix(curFrom),
			CurrentTo:    fromUnix(curTo),
			PreviousFrom: fromUnix(prevFrom),
			PreviousTo:   fromUnix(prevTo),
		}
		snap.Label = signals.Label(label)
		snap.ComputedAt = fromUnix(at)
		out = append(out, snap)
	}
	return out, rows.Err()
}

var (
	_ signals.PostingCounter = (*Store)(nil)
	_ signals.SnapshotWriter = (*Store)(nil)
	_ signals.SnapshotReader = (*Store)(nil)
)
