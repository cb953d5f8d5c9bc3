package grouper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/identity"
	"github.com/roach88/rekey/internal/model"
)

func TestFindDuplicateGroups_ExactlyOneGroup(t *testing.T) {
	events := []model.Event{
		{RecordID: "r1", EventID: "evt_a", SchoolName: "Eichenschule", EventDate: "2026-02-01", EventType: "Minimusiker"},
		{RecordID: "r2", EventID: "evt_lindenschule_concert_20260310_aa11bb", SchoolName: "Lindenschule", EventDate: "2026-03-10", EventType: "concert"},
		{RecordID: "r3", EventID: "evt_c", SchoolName: "Lindenschule", EventDate: "2026-03-11", EventType: "concert"},
		{RecordID: "r4", EventID: "evt_lindenschule_minimusiker_20260310_cc22dd", SchoolName: "Lindenschule", EventDate: "2026-03-10", EventType: "Minimusiker"},
		{RecordID: "r5", EventID: "evt_e", SchoolName: "Buchenschule", EventDate: "2026-03-10", EventType: "Minimusiker"},
	}

	groups := FindDuplicateGroups(events)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, model.NaturalKey{School: "lindenschule", Date: "20260310"}, g.Key)
	require.Len(t, g.Members, 2)
	assert.Equal(t, "r2", g.Members[0].RecordID)
	assert.Equal(t, "r4", g.Members[1].RecordID)
	assert.Equal(t, identity.EventID("Lindenschule", "minimusiker", "2026-03-10"), g.CanonicalID)
}

func TestFindDuplicateGroups_SameIdentifierTwice(t *testing.T) {
	canonical := identity.EventID("Lindenschule", "Minimusiker", "2026-03-10")
	events := []model.Event{
		{RecordID: "r1", EventID: canonical, SchoolName: "Lindenschule", EventDate: "2026-03-10", EventType: "Minimusiker"},
		{RecordID: "r2", EventID: canonical, SchoolName: "Lindenschule", EventDate: "2026-03-10", EventType: "Minimusiker"},
	}

	// One Event per natural key: two records are a group even with one id.
	groups := FindDuplicateGroups(events)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 2)
	assert.Equal(t, canonical, groups[0].CanonicalID)
}

func TestFindDuplicateGroups_NormalizesKey(t *testing.T) {
	events := []model.Event{
		{RecordID: "r1", SchoolName: "Grundschule Grünwald", EventDate: "2026-05-04"},
		{RecordID: "r2", SchoolName: "  grundschule gruenwald ", EventDate: "2026-05-04"},
		{RecordID: "r3", SchoolName: "GRUNDSCHULE GRÜNWALD", EventDate: "2026-05-04T00:00:00Z"},
	}

	groups := FindDuplicateGroups(events)
	require.Len(t, groups, 1)
	// "gruenwald" is a different spelling, not a normalization of "grünwald".
	ids := []string{}
	for _, m := range groups[0].Members {
		ids = append(ids, m.RecordID)
	}
	assert.Equal(t, []string{"r1", "r3"}, ids)
}

func TestFindDuplicateGroups_SkipsInvalidKeys(t *testing.T) {
	events := []model.Event{
		{RecordID: "r1", SchoolName: "Lindenschule"},
		{RecordID: "r2", SchoolName: "Lindenschule"},
		{RecordID: "r3", EventDate: "2026-03-10"},
		{RecordID: "r4", EventDate: "2026-03-10"},
	}
	assert.Empty(t, FindDuplicateGroups(events))
}

func TestFindDuplicateGroups_OrderOfFirstAppearance(t *testing.T) {
	events := []model.Event{
		{RecordID: "b1", SchoolName: "B", EventDate: "2026-01-01"},
		{RecordID: "a1", SchoolName: "A", EventDate: "2026-01-01"},
		{RecordID: "a2", SchoolName: "A", EventDate: "2026-01-01"},
		{RecordID: "b2", SchoolName: "B", EventDate: "2026-01-01"},
	}

	groups := FindDuplicateGroups(events)
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].Key.School)
	assert.Equal(t, "a", groups[1].Key.School)
}

func TestFindDuplicateGroups_CanonicalUsesFirstCategory(t *testing.T) {
	events := []model.Event{
		{RecordID: "r1", SchoolName: "Lindenschule", EventDate: "2026-03-10"},
		{RecordID: "r2", SchoolName: "Lindenschule", EventDate: "2026-03-10", EventType: "Herbstfest"},
	}

	groups := FindDuplicateGroups(events)
	require.Len(t, groups, 1)
	assert.Equal(t, identity.EventID("Lindenschule", "Herbstfest", "2026-03-10"), groups[0].CanonicalID)
}

func TestFindDuplicateGroups_Deterministic(t *testing.T) {
	events := []model.Event{
		{RecordID: "r1", SchoolName: "X", EventDate: "2026-01-01", EventType: "concert"},
		{RecordID: "r2", SchoolName: "X", EventDate: "2026-01-01", EventType: "Konzert"},
	}
	assert.Equal(t, FindDuplicateGroups(events), FindDuplicateGroups(events))
}

func TestFindClassDuplicates(t *testing.T) {
	events := map[string]model.Event{
		"recE": {RecordID: "recE", SchoolName: "Lindenschule", EventDate: "2026-03-10"},
	}
	classes := []model.Class{
		{RecordID: "c1", ClassName: "3a", EventLinks: []string{"recE"}},
		{RecordID: "c2", ClassName: "3b", EventLinks: []string{"recE"}},
		{RecordID: "c3", ClassName: " 3A ", EventLinks: []string{"recE"}},
		{RecordID: "c4", ClassName: "3a", EventLinks: []string{"recOther"}},
		{RecordID: "c5", ClassName: "3a"},
		{RecordID: "c6", ClassName: "3a"},
	}

	groups := FindClassDuplicates(classes, events)
	require.Len(t, groups, 1)
	assert.Equal(t, model.ClassKey{EventRecordID: "recE", Name: "3a"}, groups[0].Key)
	require.Len(t, groups[0].Members, 2)
	assert.Equal(t, "c1", groups[0].Members[0].RecordID)
	assert.Equal(t, "c3", groups[0].Members[1].RecordID)
	assert.Equal(t, identity.ClassID("Lindenschule", "3a", "2026-03-10"), groups[0].CanonicalID)
}

func TestFindClassDuplicates_UnknownEvent(t *testing.T) {
	classes := []model.Class{
		{RecordID: "c1", ClassName: "3a", EventLinks: []string{"recGone"}},
		{RecordID: "c2", ClassName: "3a", EventLinks: []string{"recGone"}},
	}
	groups := FindClassDuplicates(classes, nil)
	require.Len(t, groups, 1)
	assert.Empty(t, groups[0].CanonicalID)
}
