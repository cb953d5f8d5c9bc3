package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rekey/internal/airtable"
	"github.com/roach88/rekey/internal/config"
	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/recordstore"
	"github.com/roach88/rekey/internal/runner"
	"github.com/roach88/rekey/internal/store"
)

// DefaultSnapshotPath is where backfill writes and validate reads the snapshot.
const DefaultSnapshotPath = "rekey-snapshot.json"

// PhaseOptions holds the flags shared by the phase commands.
type PhaseOptions struct {
	*RootOptions
	DryRun      bool
	ConfigPath  string
	Database    string
	EnvFile     string
	JournalPath string
	Snapshot    string
	Report      string
	MetricsFile string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to runner.UUIDv7Generator.
	RunIDs runner.RunIDGenerator
	// Now allows overriding the clock (for testing).
	Now func() time.Time
}

// phaseFlags selects the optional flags a command exposes.
type phaseFlags struct {
	dryRun bool
	report bool
}

func addPhaseFlags(cmd *cobra.Command, opts *PhaseOptions, with phaseFlags) {
	if with.dryRun {
		cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log intended changes without mutating the store")
	}
	if with.report {
		cmd.Flags().StringVar(&opts.Report, "report", "", "write the validation report as JSON to this path")
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (defaults to the production layout)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "use the SQLite store at this path instead of the hosted store")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", config.DefaultEnvFile, "file to load credentials from")
	cmd.Flags().StringVar(&opts.JournalPath, "journal", "", "SQLite run log path (defaults to --db when set)")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", DefaultSnapshotPath, "extraction snapshot path")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")
}

// connection is an opened record store plus the journal the run writes to.
type connection struct {
	client  recordstore.Client
	journal executor.Journal
	closers []func() error
}

func (c *connection) Close() {
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			slog.Error("error closing store", "error", err)
		}
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// executePhases is the body shared by every phase command.
func executePhases(cmd *cobra.Command, opts *PhaseOptions, phases []string) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Audit lines and logs go to stderr in JSON mode
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return setupError(formatter, ErrCodeConfig, "invalid config", err)
	}
	formatter.VerboseLog("config loaded (events=%s classes=%s journey=%s)", cfg.Tables.Events, cfg.Tables.Classes, cfg.Tables.Journey)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after the current group", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, code, err := openConnection(ctx, cfg, opts, logger)
	if err != nil {
		return setupError(formatter, code, setupMessages[code], err)
	}
	defer conn.Close()

	audit := cmd.OutOrStdout()
	if opts.Format == "json" {
		audit = cmd.ErrOrStderr()
	}

	r := runner.New(conn.client, cfg, runner.Options{
		Phases:       phases,
		DryRun:       opts.DryRun,
		SnapshotPath: opts.Snapshot,
		ReportPath:   opts.Report,
		Out:          audit,
		Journal:      conn.journal,
		RunIDs:       opts.RunIDs,
		Now:          opts.Now,
		Logger:       logger,
	})
	sum, runErr := r.Run(ctx)

	if opts.MetricsFile != "" {
		if err := sum.WriteMetrics(opts.MetricsFile); err != nil {
			logger.Error("metrics not written", "path", opts.MetricsFile, "error", err)
		}
	}

	if opts.Format != "json" {
		fmt.Fprintln(formatter.Writer)
		if err := sum.WriteText(formatter.Writer); err != nil {
			return err
		}
	}

	if runErr != nil {
		_ = formatter.Failure(ErrCodeRunAborted, runErr.Error(), sum.RunID, sum)
		return WrapExitError(ExitFailure, "run aborted", runErr)
	}
	if sum.Failed() {
		code, message := failureOf(sum)
		_ = formatter.Failure(code, message, sum.RunID, sum)
		return NewExitError(ExitFailure, message)
	}
	if opts.Format == "json" {
		return formatter.Success(sum)
	}
	return nil
}

// openConnection opens the SQLite store when --db is set and the hosted
// store otherwise. The returned code classifies a failure.
func openConnection(ctx context.Context, cfg config.Config, opts *PhaseOptions, logger *slog.Logger) (*connection, string, error) {
	conn := &connection{journal: executor.NopJournal{}}

	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database, store.WithPageSize(cfg.Store.PageSize))
		if err != nil {
			return nil, ErrCodeStore, fmt.Errorf("open database: %w", err)
		}
		conn.client = st
		conn.closers = append(conn.closers, st.Close)
		if opts.JournalPath == "" || opts.JournalPath == opts.Database {
			conn.journal = st
		}
	} else {
		if err := config.LoadEnv(opts.EnvFile); err != nil {
			return nil, ErrCodeCredentials, err
		}
		creds, err := config.CredentialsFromEnv()
		if err != nil {
			return nil, ErrCodeCredentials, err
		}
		client, err := airtable.New(cfg.Airtable(creds), logger)
		if err != nil {
			return nil, ErrCodeStore, err
		}
		if err := client.Ping(ctx, cfg.Tables.Events); err != nil {
			return nil, ErrCodeStore, err
		}
		logger.Info("hosted store reachable", "base", creds.BaseID)
		conn.client = client
	}

	if opts.JournalPath != "" && opts.JournalPath != opts.Database {
		js, err := store.Open(opts.JournalPath)
		if err != nil {
			conn.Close()
			return nil, ErrCodeJournal, fmt.Errorf("open journal: %w", err)
		}
		conn.journal = js
		conn.closers = append(conn.closers, js.Close)
	}
	return conn, "", nil
}

var setupMessages = map[string]string{
	ErrCodeCredentials: "credentials unavailable",
	ErrCodeStore:       "record store unavailable",
	ErrCodeJournal:     "run journal unavailable",
}

func setupError(formatter *OutputFormatter, code, message string, err error) error {
	var details any
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		details = verrs
	}
	_ = formatter.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(ExitCommandError, message, err)
}

func failureOf(sum *runner.Summary) (string, string) {
	if sum.Reconcile != nil && sum.Reconcile.Failed() {
		return ErrCodeGroupsErrored, fmt.Sprintf("%d duplicate group(s) errored", sum.Reconcile.Errored)
	}
	return ErrCodeValidationFailed, fmt.Sprintf("validation failed with %d error(s)", len(sum.Validation.Errors))
}
