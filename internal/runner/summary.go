package runner

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/roach88/rekey/internal/backfill"
	"github.com/roach88/rekey/internal/reconcile"
	"github.com/roach88/rekey/internal/validate"
)

// Summary is the outcome of one run. Sections are nil for phases that did
// not run.
type Summary struct {
	RunID      string               `json:"run_id"`
	Phases     []string             `json:"phases"`
	DryRun     bool                 `json:"dry_run"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Backfill   *backfill.Result     `json:"backfill,omitempty"`
	Reconcile  *reconcile.RunResult `json:"fix_duplicates,omitempty"`
	Validation *validate.Report     `json:"validation,omitempty"`
	Actions    map[string]int       `json:"actions"`
}

// Failed reports whether any group errored or validation failed.
func (s *Summary) Failed() bool {
	if s.Reconcile != nil && s.Reconcile.Failed() {
		return true
	}
	return s.Validation != nil && !s.Validation.Passed
}

// Outcome is "success" or "failure".
func (s *Summary) Outcome() string {
	if s.Failed() {
		return "failure"
	}
	return "success"
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// WriteText renders the summary for humans.
func (s *Summary) WriteText(w io.Writer) error {
	var b strings.Builder

	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(&b, "Run %s%s\n", s.RunID, mode)
	fmt.Fprintf(&b, "  %-14s %s\n", "phases", strings.Join(s.Phases, ", "))
	fmt.Fprintf(&b, "  %-14s %s\n", "duration", s.Duration().Round(time.Millisecond))

	if bf := s.Backfill; bf != nil {
		b.WriteString("\nBackfill\n")
		fmt.Fprintf(&b, "  %-14s %d (%d invalid)\n", "rows", bf.Rows, bf.RowsInvalid)
		fmt.Fprintf(&b, "  %-14s created %d, updated %d, skipped %d\n", "events", bf.EventsCreated, bf.EventsUpdated, bf.EventsSkipped)
		fmt.Fprintf(&b, "  %-14s created %d, updated %d, skipped %d\n", "classes", bf.ClassesCreated, bf.ClassesUpdated, bf.ClassesSkipped)
		fmt.Fprintf(&b, "  %-14s updated %d, skipped %d\n", "journey rows", bf.RowsUpdated, bf.RowsSkipped)
	}

	if rc := s.Reconcile; rc != nil {
		b.WriteString("\nFix duplicates\n")
		fmt.Fprintf(&b, "  %-14s found %d, resolved %d, errored %d\n", "groups", rc.GroupsFound, rc.Resolved, rc.Errored)
		fmt.Fprintf(&b, "  %-14s updated %d, deleted %d\n", "records", rc.Updated, rc.Deleted)
		if len(rc.Relinked) > 0 {
			fmt.Fprintf(&b, "  %-14s %s\n", "relinked", formatCounts(rc.Relinked))
		}
		if len(rc.Skipped) > 0 {
			fmt.Fprintf(&b, "  %-14s %s\n", "skipped", strings.Join(rc.Skipped, ", "))
		}
		for _, g := range rc.Groups {
			if g.Status == reconcile.StatusErrored {
				fmt.Fprintf(&b, "  ! %s: %s\n", g.Decision.Key, g.Error)
			}
		}
	}

	if v := s.Validation; v != nil {
		status := "PASSED"
		if !v.Passed {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "\nValidation %s\n", status)
		fmt.Fprintf(&b, "  %-14s %d (expected %d)\n", "events", v.Stats.Events, v.Stats.ExpectedEvents)
		fmt.Fprintf(&b, "  %-14s %d (expected %d)\n", "classes", v.Stats.Classes, v.Stats.ExpectedClasses)
		fmt.Fprintf(&b, "  %-14s %d\n", "orphans", v.Stats.Orphans)
		fmt.Fprintf(&b, "  %-14s %d\n", "duplicates", v.Stats.DuplicateGroups)
		fmt.Fprintf(&b, "  %-14s %d (%d mismatched)\n", "sampled", v.Stats.Sampled, v.Stats.SampleMismatches)
		for _, f := range v.Errors {
			fmt.Fprintf(&b, "  error   %s\n", f)
		}
		for _, f := range v.Warnings {
			fmt.Fprintf(&b, "  warning %s\n", f)
		}
	}

	b.WriteString("\n")
	if len(s.Actions) > 0 {
		fmt.Fprintf(&b, "%-16s %s\n", "Actions", formatCounts(s.Actions))
	}
	fmt.Fprintf(&b, "%-16s %s\n", "Outcome", s.Outcome())

	_, err := io.WriteString(w, b.String())
	return err
}

// formatCounts renders a map as "k=v" pairs in key order.
func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}
