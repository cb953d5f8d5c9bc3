package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/rekey/internal/runner"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PhaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the store against the extraction snapshot",
		Long: `Run every consistency check and report all findings: table counts and the
entity set against the snapshot, orphaned references, remaining duplicates,
and a sampled field-by-field comparison. Validation never modifies the store.

A missing snapshot fails the count and sample checks. Exit code 1 means at
least one check reported an error.

Example:
  rekey validate --report ./report.json
  rekey validate --dry-run
  rekey validate --db ./mirror.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePhases(cmd, opts, []string{runner.PhaseValidate})
		},
	}

	addPhaseFlags(cmd, opts, phaseFlags{report: true})
	// Accepted so every phase takes the same flags; validation never writes.
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "no effect; validate never mutates the store")
	return cmd
}
