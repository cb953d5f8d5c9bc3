package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/rekey/internal/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	PhaseOptions
	Phase string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{PhaseOptions: PhaseOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run backfill, fix-duplicates and validate in sequence",
		Long: `Run the migration phases in order: backfill, fix-duplicates, validate.
A phase that cannot complete stops the run; errored groups and failed checks
are reported in the summary and fail the run with exit code 1.

Example:
  rekey run --dry-run
  rekey run --phase validate --report ./report.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, err := runner.ParsePhase(opts.Phase)
			if err != nil {
				formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
				_ = formatter.Error(ErrCodePhase, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid phase", err)
			}
			return executePhases(cmd, &opts.PhaseOptions, phases)
		},
	}

	cmd.Flags().StringVar(&opts.Phase, "phase", runner.PhaseAll, "phase to run (backfill|fix-duplicates|validate|all)")
	addPhaseFlags(cmd, &opts.PhaseOptions, phaseFlags{dryRun: true, report: true})
	return cmd
}
