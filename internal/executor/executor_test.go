package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/recordstore"
	"github.com/roach88/rekey/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "exec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLive_Mutates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	exec := NewLive(s)
	assert.False(t, exec.DryRun())

	created, err := exec.Create(ctx, "Events", []model.Fields{{"event_id": "evt_a"}})
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.NoError(t, exec.Update(ctx, "Events", []model.Record{{ID: created[0].ID, Fields: model.Fields{"event_id": "evt_b"}}}))
	got, err := s.Get(ctx, "Events", created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "evt_b", got.String("event_id"))

	require.NoError(t, exec.Delete(ctx, "Events", []string{created[0].ID}))
	n, err := s.Count(ctx, "Events", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDryRun_RecordsWithoutMutating(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Seed(ctx, "Events", []model.Record{{ID: "e1", Fields: model.Fields{"event_id": "evt_a"}}}))

	exec := NewDryRun()
	assert.True(t, exec.DryRun())

	created, err := exec.Create(ctx, "Events", []model.Fields{{"event_id": "x"}, {"event_id": "y"}})
	require.NoError(t, err)
	assert.Equal(t, "dry_1", created[0].ID)
	assert.Equal(t, "dry_2", created[1].ID)

	require.NoError(t, exec.Update(ctx, "Events", []model.Record{{ID: "e1", Fields: model.Fields{"event_id": "evt_b"}}}))
	require.NoError(t, exec.Delete(ctx, "Events", []string{"e1"}))

	ops := exec.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, OpCreate, ops[0].Kind)
	assert.Equal(t, OpUpdate, ops[1].Kind)
	assert.Equal(t, OpDelete, ops[2].Kind)
	assert.Equal(t, "e1", ops[2].Records[0].ID)

	got, err := s.Get(ctx, "Events", "e1")
	require.NoError(t, err)
	assert.Equal(t, "evt_a", got.String("event_id"))
}

func TestLive_PropagatesStoreErrors(t *testing.T) {
	s := openStore(t)
	s.Deny("Orders")

	err := NewLive(s).Update(context.Background(), "Orders", []model.Record{{ID: "o1"}})
	assert.True(t, recordstore.IsPermissionDenied(err))
}

type failingJournal struct{ calls int }

func (f *failingJournal) AppendJournal(context.Context, model.JournalEntry) error {
	f.calls++
	return errors.New("disk full")
}

func TestTrail_Lines(t *testing.T) {
	var live, dry bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	NewTrail(&live, nil, logger, "run1", false).Record(context.Background(), "fix-duplicates", model.ActionDelete, "Events", "rec2", "superseded by rec1")
	NewTrail(&dry, nil, logger, "run1", true).Record(context.Background(), "fix-duplicates", model.ActionDelete, "Events", "rec2", "superseded by rec1")

	assert.Equal(t, "fix-duplicates delete Events/rec2 superseded by rec1\n", live.String())
	assert.Equal(t, "[DRY RUN] fix-duplicates delete Events/rec2 superseded by rec1\n", dry.String())
}

func TestTrail_JournalsAndTallies(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	trail := NewTrail(io.Discard, s, nil, "run7", true)

	trail.Record(ctx, "backfill", model.ActionCreate, "Events", "dry_1", "")
	trail.Record(ctx, "backfill", model.ActionSkip, "Events", "e1", "exists")
	trail.Record(ctx, "backfill", model.ActionSkip, "Events", "e2", "exists")

	assert.Equal(t, map[string]int{"create": 1, "skip": 2}, trail.Tally())

	entries, err := s.ReadJournal(ctx, "run7")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].DryRun)
	assert.Equal(t, "exists", entries[2].Detail)
}

func TestTrail_JournalFailureIsNotFatal(t *testing.T) {
	var buf bytes.Buffer
	j := &failingJournal{}
	trail := NewTrail(&buf, j, slog.New(slog.NewTextHandler(io.Discard, nil)), "run1", false)

	trail.Record(context.Background(), "validate", model.ActionError, "", "", "count mismatch")
	assert.Equal(t, 1, j.calls)
	assert.Equal(t, "validate error count mismatch\n", buf.String())
}
