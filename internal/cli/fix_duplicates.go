package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/rekey/internal/runner"
)

// NewFixDuplicatesCommand creates the fix-duplicates command.
func NewFixDuplicatesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PhaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fix-duplicates",
		Short: "Merge duplicate Event records onto one canonical record",
		Long: `Group Event records by natural key (normalized school name and date) and
reconcile every group with more than one record: keep one record holding
the canonical identifier, relink every dependent record to it, merge the
Classes that collapse onto it, and only then delete the superseded records.

A failing group is reported and skipped; the remaining groups still run.
A killed run is safe to repeat.

Example:
  rekey fix-duplicates --dry-run
  rekey fix-duplicates --config ./rekey.yaml --metrics-file /var/lib/node_exporter/rekey.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePhases(cmd, opts, []string{runner.PhaseFixDuplicates})
		},
	}

	addPhaseFlags(cmd, opts, phaseFlags{dryRun: true})
	return cmd
}
