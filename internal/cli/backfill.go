package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/rekey/internal/runner"
)

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PhaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Derive canonical Events and Classes from legacy journey rows",
		Long: `Read every legacy journey row, derive the unique Events (one per school and
date) and Classes with their canonical identifiers, and write them to the
extraction snapshot. Then create the Event and Class records the store is
missing and fill empty booking_id and class_id values on journey rows.
Existing identifiers are never overwritten.

Example:
  rekey backfill --db ./mirror.db --dry-run
  rekey backfill --snapshot ./snapshots/2026-03-01.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePhases(cmd, opts, []string{runner.PhaseBackfill})
		},
	}

	addPhaseFlags(cmd, opts, phaseFlags{dryRun: true})
	return cmd
}
