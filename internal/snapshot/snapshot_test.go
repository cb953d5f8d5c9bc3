package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/identity"
	"github.com/roach88/rekey/internal/model"
)

func journeyRow(school, date, typ, class string) model.Record {
	return model.Record{Fields: model.Fields{
		"school_name":  school,
		"booking_date": date,
		"event_type":   typ,
		"class":        class,
	}}
}

func TestExtract(t *testing.T) {
	rows := []model.Record{
		journeyRow("Lindenschule", "2026-03-10", "concert", "3a"),
		journeyRow("Lindenschule", "2026-03-10", "Minimusiker", "3b"),
		journeyRow("lindenschule", "2026-03-10", "Minimusiker", "3A"),
		journeyRow("Eichenschule", "2026-03-11", "", "1a"),
		journeyRow("Eichenschule", "2026-03-11", "", ""),
		journeyRow("", "2026-03-11", "", "1a"),
		journeyRow("Buchenschule", "not a date", "", "1a"),
	}

	events, classes, skipped := Extract(rows, model.DefaultJourneyFields())
	assert.Equal(t, 2, skipped)

	require.Len(t, events, 2)
	assert.Equal(t, identity.EventID("Lindenschule", "concert", "2026-03-10"), events[0].EventID)
	assert.Equal(t, "minimusiker", events[0].Category)
	assert.Equal(t, "concert", events[0].EventType)
	assert.Equal(t, "Eichenschule", events[1].SchoolName)

	require.Len(t, classes, 3)
	assert.Equal(t, "3a", classes[0].ClassName)
	assert.Equal(t, identity.ClassID("Lindenschule", "3a", "2026-03-10"), classes[0].ClassID)
	assert.Equal(t, events[0].EventID, classes[1].EventID)
	assert.Equal(t, events[1].EventID, classes[2].EventID)
}

func TestNew_FingerprintBindsEntitySet(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := New("run1", now, []EventRow{{EventID: "evt_a"}}, []ClassRow{{ClassID: "cls_a"}})
	b := New("run2", now.Add(time.Hour), []EventRow{{EventID: "evt_a"}}, []ClassRow{{ClassID: "cls_a"}})
	c := New("run1", now, []EventRow{{EventID: "evt_b"}}, []ClassRow{{ClassID: "cls_a"}})

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
	assert.Equal(t, Counts{Events: 1, Classes: 1}, a.Counts)
	assert.Equal(t, []string{"cls_a", "evt_a"}, a.IDs())
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "snapshot.json")
	s := New("run1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		[]EventRow{{EventID: "evt_a", SchoolName: "Lindenschule", EventDate: "2026-03-10", Category: "minimusiker"}},
		[]ClassRow{{ClassID: "cls_a", EventID: "evt_a", ClassName: "3a", TotalChildren: 24}},
	)
	require.NoError(t, s.Write(path))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrMissing)
}

func TestRead_BadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o644))
	_, err := Read(path)
	assert.ErrorContains(t, err, "unsupported version")
}
