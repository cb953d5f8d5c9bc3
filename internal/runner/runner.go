// Package runner orchestrates the phases of a migration run and collects
// their outcome in a Summary.
//
// Phases run sequentially in a fixed order: backfill, fix-duplicates,
// validate. A phase that cannot start (store unreadable, snapshot corrupt)
// stops the run with an error; failures inside a phase (an errored group,
// a failed check) are recorded in the Summary and the run continues.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/rekey/internal/backfill"
	"github.com/roach88/rekey/internal/config"
	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/reconcile"
	"github.com/roach88/rekey/internal/recordstore"
	"github.com/roach88/rekey/internal/snapshot"
	"github.com/roach88/rekey/internal/validate"
)

// Phase names.
const (
	PhaseBackfill      = backfill.Phase
	PhaseFixDuplicates = reconcile.Phase
	PhaseValidate      = "validate"
	PhaseAll           = "all"
)

// ParsePhase expands a phase name into the phases it runs.
func ParsePhase(name string) ([]string, error) {
	switch name {
	case PhaseBackfill, PhaseFixDuplicates, PhaseValidate:
		return []string{name}, nil
	case PhaseAll:
		return []string{PhaseBackfill, PhaseFixDuplicates, PhaseValidate}, nil
	default:
		return nil, fmt.Errorf("unknown phase %q", name)
	}
}

// Options configures one run.
type Options struct {
	Phases       []string
	DryRun       bool
	SnapshotPath string // written by a live backfill, read by validate; empty disables both
	ReportPath   string // validation report output; empty disables
	Out          io.Writer
	Journal      executor.Journal
	RunIDs       RunIDGenerator
	Now          func() time.Time
	Logger       *slog.Logger
}

// Runner executes phases against one record store.
type Runner struct {
	client recordstore.Client
	cfg    config.Config
	opts   Options
}

// New creates a runner. Zero-valued options get working defaults.
func New(client recordstore.Client, cfg config.Config, opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.RunIDs == nil {
		opts.RunIDs = UUIDv7Generator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{client: client, cfg: cfg, opts: opts}
}

// Run executes the configured phases. The Summary is returned even when
// err is non-nil and covers the phases that ran.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := r.opts.RunIDs.Generate()
	logger := r.opts.Logger.With("run_id", runID)
	trail := executor.NewTrail(r.opts.Out, r.opts.Journal, logger, runID, r.opts.DryRun)

	var exec executor.Executor = executor.NewLive(r.client)
	if r.opts.DryRun {
		exec = executor.NewDryRun()
	}

	sum := &Summary{
		RunID:     runID,
		Phases:    r.opts.Phases,
		DryRun:    r.opts.DryRun,
		StartedAt: r.opts.Now().UTC(),
	}
	defer func() {
		sum.FinishedAt = r.opts.Now().UTC()
		sum.Actions = trail.Tally()
	}()

	logger.Info("run starting", "phases", r.opts.Phases, "dry_run", r.opts.DryRun)

	var snap *snapshot.Snapshot
	for _, phase := range r.opts.Phases {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		logger.Info("phase starting", "phase", phase)

		switch phase {
		case PhaseBackfill:
			bf := backfill.New(r.client, r.cfg.BackfillOptions(), trail, logger, r.opts.Now)
			res, err := bf.Run(ctx, exec)
			sum.Backfill = &res
			if res.Snapshot != nil {
				snap = res.Snapshot
				if werr := r.writeSnapshot(snap); werr != nil {
					return sum, werr
				}
			}
			if err != nil {
				return sum, fmt.Errorf("backfill: %w", err)
			}

		case PhaseFixDuplicates:
			eng := reconcile.New(r.client, r.cfg.ReconcileOptions(), trail, logger)
			res, err := eng.FixDuplicates(ctx, exec)
			sum.Reconcile = &res
			if err != nil {
				return sum, fmt.Errorf("fix duplicates: %w", err)
			}

		case PhaseValidate:
			if snap == nil {
				var err error
				if snap, err = r.readSnapshot(); err != nil {
					return sum, err
				}
			}
			v := validate.New(r.client, r.cfg.ValidateOptions(), snap, logger, r.opts.Now)
			report := v.Validate(ctx, runID)
			sum.Validation = &report
			if r.opts.ReportPath != "" {
				if err := report.Write(r.opts.ReportPath); err != nil {
					return sum, fmt.Errorf("write report: %w", err)
				}
			}

		default:
			return sum, fmt.Errorf("unknown phase %q", phase)
		}
		logger.Info("phase finished", "phase", phase)
	}

	logger.Info("run finished", "failed", sum.Failed())
	return sum, nil
}

func (r *Runner) writeSnapshot(snap *snapshot.Snapshot) error {
	if r.opts.SnapshotPath == "" {
		return nil
	}
	// The persisted snapshot belongs to the last live run.
	if r.opts.DryRun {
		r.opts.Logger.Info("dry run, snapshot not written", "path", r.opts.SnapshotPath)
		return nil
	}
	if err := snap.Write(r.opts.SnapshotPath); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	r.opts.Logger.Info("snapshot written", "path", r.opts.SnapshotPath, "events", snap.Counts.Events, "classes", snap.Counts.Classes)
	return nil
}

// readSnapshot returns nil without error when no snapshot exists; the
// validator reports its absence.
func (r *Runner) readSnapshot() (*snapshot.Snapshot, error) {
	if r.opts.SnapshotPath == "" {
		return nil, nil
	}
	snap, err := snapshot.Read(r.opts.SnapshotPath)
	if errors.Is(err, snapshot.ErrMissing) {
		r.opts.Logger.Warn("snapshot missing", "path", r.opts.SnapshotPath)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}
