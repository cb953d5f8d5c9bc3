package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/rekey/internal/model"
)

// DryRunPrefix marks every audit line written in dry-run mode.
const DryRunPrefix = "[DRY RUN] "

// Journal persists audit entries.
type Journal interface {
	AppendJournal(ctx context.Context, e model.JournalEntry) error
}

// NopJournal discards entries.
type NopJournal struct{}

func (NopJournal) AppendJournal(context.Context, model.JournalEntry) error { return nil }

// Trail writes one line per audited item and tallies actions.
//
// Line format:
//
//	[DRY RUN] fix-duplicates delete Events/rec2 superseded by rec1
//	fix-duplicates update Registrations/rec9 event_id evt_a -> evt_b
//
// Journal failures are logged, never returned: the audit must not change the
// outcome of the work it describes.
type Trail struct {
	mu      sync.Mutex
	w       io.Writer
	journal Journal
	logger  *slog.Logger
	runID   string
	dryRun  bool
	tally   map[string]int
}

// NewTrail returns a trail for one run. w may be io.Discard; journal may be nil.
func NewTrail(w io.Writer, journal Journal, logger *slog.Logger, runID string, dryRun bool) *Trail {
	if w == nil {
		w = io.Discard
	}
	if journal == nil {
		journal = NopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trail{
		w:       w,
		journal: journal,
		logger:  logger,
		runID:   runID,
		dryRun:  dryRun,
		tally:   make(map[string]int),
	}
}

// RunID returns the run this trail belongs to.
func (t *Trail) RunID() string { return t.runID }

// DryRun reports whether lines are prefixed as dry-run output.
func (t *Trail) DryRun() bool { return t.dryRun }

// Record writes one audit line and journals it.
func (t *Trail) Record(ctx context.Context, phase, action, table, recordID, detail string) {
	t.mu.Lock()
	t.tally[action]++
	line := ""
	if t.dryRun {
		line = DryRunPrefix
	}
	line += phase + " " + action
	if table != "" || recordID != "" {
		line += " " + table + "/" + recordID
	}
	if detail != "" {
		line += " " + detail
	}
	fmt.Fprintln(t.w, line)
	t.mu.Unlock()

	err := t.journal.AppendJournal(ctx, model.JournalEntry{
		RunID:    t.runID,
		Phase:    phase,
		Action:   action,
		Table:    table,
		RecordID: recordID,
		Detail:   detail,
		DryRun:   t.dryRun,
	})
	if err != nil {
		t.logger.Warn("journal write failed", "run_id", t.runID, "action", action, "error", err)
	}
}

// Tally returns the number of lines written per action.
func (t *Trail) Tally() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.tally))
	for k, v := range t.tally {
		out[k] = v
	}
	return out
}
