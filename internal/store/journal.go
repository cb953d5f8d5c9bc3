package store

import (
	"context"
	"fmt"

	"github.com/roach88/rekey/internal/model"
)

// AppendJournal records one decision of a run.
func (s *Store) AppendJournal(ctx context.Context, e model.JournalEntry) error {
	dry := 0
	if e.DryRun {
		dry = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_log (run_id, phase, action, table_name, record_id, detail, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Phase, e.Action, e.Table, e.RecordID, e.Detail, dry)
	if err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// ReadJournal returns a run's entries in the order they were written.
// Returns an empty slice (not nil) for unknown runs.
func (s *Store) ReadJournal(ctx context.Context, runID string) ([]model.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, phase, action, table_name, record_id, detail, dry_run
		FROM run_log
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []model.JournalEntry{}
	for rows.Next() {
		var (
			e   model.JournalEntry
			dry int
		)
		if err := rows.Scan(&e.RunID, &e.Phase, &e.Action, &e.Table, &e.RecordID, &e.Detail, &dry); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.DryRun = dry != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}
