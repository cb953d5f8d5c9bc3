package runner

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/config"
	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/snapshot"
	"github.com/roach88/rekey/internal/store"
	"github.com/roach88/rekey/internal/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// seedMigration seeds legacy journey rows for one school and two Event
// records for its natural key, the second holding a stale id and the
// school's existing Class and Registration.
func seedMigration(t *testing.T, s *store.Store) {
	t.Helper()
	testutil.Seed(t, s, "parent_journey_table",
		testutil.Rec("recJ1", model.Fields{"school_name": "Lindenschule", "booking_date": "2026-03-10", "event_type": "Minimusiker", "class": "3a"}),
		testutil.Rec("recJ2", model.Fields{"school_name": "Lindenschule", "booking_date": "2026-03-10", "event_type": "Minimusiker", "class": "3a"}),
	)
	testutil.Seed(t, s, "Events",
		testutil.Rec("recE1", model.Fields{"event_id": "evt_lindenschule_concert_20260310_aa11bb", "school_name": "Lindenschule", "event_date": "2026-03-10", "event_type": "concert"}),
		testutil.Rec("recE2", model.Fields{"event_id": "evt_lindenschule_minimusiker_20260310_cc22dd", "school_name": "Lindenschule", "event_date": "2026-03-10", "event_type": "Minimusiker"}),
	)
	testutil.Seed(t, s, "Classes",
		testutil.Rec("recC1", model.Fields{"class_id": "cls_lindenschule_3a_20260310_000000", "class_name": "3a", "event": model.LinkIDs("recE2")}),
	)
	testutil.Seed(t, s, "Registrations",
		testutil.Rec("recR1", model.Fields{"event_id": "evt_lindenschule_minimusiker_20260310_cc22dd", "event": model.LinkIDs("recE2"), "class": model.LinkIDs("recC1")}),
	)
}

func newRunner(s *store.Store, phases []string, out io.Writer, mutate func(*Options)) *Runner {
	opts := Options{
		Phases:  phases,
		Out:     out,
		Journal: s,
		RunIDs:  testutil.NewFixedRunIDGenerator(""),
		Now:     testutil.NewFixedClock(time.Time{}).Now,
		Logger:  quietLogger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(s, config.Default(), opts)
}

func TestParsePhase(t *testing.T) {
	phases, err := ParsePhase(PhaseAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"backfill", "fix-duplicates", "validate"}, phases)

	phases, err = ParsePhase("validate")
	require.NoError(t, err)
	assert.Equal(t, []string{"validate"}, phases)

	_, err = ParsePhase("migrate")
	require.Error(t, err)
}

func TestUUIDv7Generator(t *testing.T) {
	a := UUIDv7Generator{}.Generate()
	b := UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}

func TestRun_All(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	seedMigration(t, s)
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")
	reportPath := filepath.Join(dir, "report.json")

	var out bytes.Buffer
	sum, err := newRunner(s, []string{PhaseBackfill, PhaseFixDuplicates, PhaseValidate}, &out, func(o *Options) {
		o.SnapshotPath = snapPath
		o.ReportPath = reportPath
	}).Run(ctx)
	require.NoError(t, err)

	require.NotNil(t, sum.Backfill)
	require.NotNil(t, sum.Reconcile)
	require.NotNil(t, sum.Validation)
	assert.Equal(t, 1, sum.Reconcile.GroupsFound)
	assert.Equal(t, 1, sum.Reconcile.Resolved)
	assert.True(t, sum.Validation.Passed, "errors: %v", sum.Validation.Errors)
	assert.False(t, sum.Failed())
	assert.Equal(t, "success", sum.Outcome())
	assert.Equal(t, "test-run", sum.RunID)
	assert.NotEmpty(t, sum.Actions)

	n, err := s.Count(ctx, "Events", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := snapshot.Read(snapPath)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counts.Events)
	assert.Equal(t, 1, snap.Counts.Classes)
	assert.FileExists(t, reportPath)

	entries, err := s.ReadJournal(ctx, "test-run")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.Contains(t, out.String(), "fix-duplicates delete Events/")
}

func TestRun_ValidateReadsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	seedMigration(t, s)
	snapPath := filepath.Join(t.TempDir(), "snapshot.json")
	withSnapshot := func(o *Options) { o.SnapshotPath = snapPath }

	_, err := newRunner(s, []string{PhaseBackfill, PhaseFixDuplicates}, nil, withSnapshot).Run(ctx)
	require.NoError(t, err)

	sum, err := newRunner(s, []string{PhaseValidate}, nil, withSnapshot).Run(ctx)
	require.NoError(t, err)
	assert.Nil(t, sum.Backfill)
	assert.Nil(t, sum.Reconcile)
	require.NotNil(t, sum.Validation)
	assert.True(t, sum.Validation.Passed, "errors: %v", sum.Validation.Errors)
	assert.Equal(t, 1, sum.Validation.Stats.ExpectedEvents)
}

func TestRun_ValidateWithoutSnapshotFails(t *testing.T) {
	s := testutil.NewStore(t)
	seedMigration(t, s)

	sum, err := newRunner(s, []string{PhaseValidate}, nil, func(o *Options) {
		o.SnapshotPath = filepath.Join(t.TempDir(), "absent.json")
	}).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sum.Validation)
	assert.False(t, sum.Validation.Passed)
	assert.True(t, sum.Failed())
	assert.Equal(t, "failure", sum.Outcome())
}

func TestRun_CorruptSnapshotIsFatal(t *testing.T) {
	s := testutil.NewStore(t)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := newRunner(s, []string{PhaseValidate}, nil, func(o *Options) {
		o.SnapshotPath = path
	}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read snapshot")
}

func TestRun_DryRunMutatesNothing(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	seedMigration(t, s)

	snapPath := filepath.Join(t.TempDir(), "snapshot.json")
	prior := []byte(`{"version":1,"run_id":"live"}`)
	require.NoError(t, os.WriteFile(snapPath, prior, 0o644))

	var out bytes.Buffer
	sum, err := newRunner(s, []string{PhaseBackfill, PhaseFixDuplicates}, &out, func(o *Options) {
		o.DryRun = true
		o.SnapshotPath = snapPath
	}).Run(ctx)
	require.NoError(t, err)
	assert.True(t, sum.DryRun)
	assert.Equal(t, 1, sum.Reconcile.Resolved)

	kept, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	assert.Equal(t, prior, kept, "a dry run leaves the persisted snapshot alone")

	n, err := s.Count(ctx, "Events", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	j1, err := s.Get(ctx, "parent_journey_table", "recJ1")
	require.NoError(t, err)
	assert.Empty(t, j1.String("booking_id"))

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.True(t, strings.HasPrefix(line, executor.DryRunPrefix), line)
	}
}

func TestRun_FatalPhaseErrorStops(t *testing.T) {
	s := testutil.NewStore(t)
	seedMigration(t, s)
	s.Deny("Events")

	sum, err := newRunner(s, []string{PhaseBackfill, PhaseFixDuplicates, PhaseValidate}, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backfill")
	assert.NotNil(t, sum.Backfill)
	assert.Nil(t, sum.Reconcile, "later phases do not run")
	assert.Nil(t, sum.Validation)
}

func TestRun_Cancelled(t *testing.T) {
	s := testutil.NewStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := newRunner(s, []string{PhaseValidate}, nil, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sum.Validation)
}
