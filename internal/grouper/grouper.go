// Package grouper partitions Event and Class records by natural key and
// reports the keys held by more than one record.
//
// Matching is exact on normalized keys. Two records are never merged on
// partial or fuzzy similarity.
package grouper

import (
	"github.com/roach88/rekey/internal/identity"
	"github.com/roach88/rekey/internal/model"
)

// EventKey returns the natural key of an Event: the unbounded school slug and
// the compact date token. Category is deliberately not part of the key.
func EventKey(e model.Event) model.NaturalKey {
	return model.NaturalKey{
		School: identity.Slug(e.SchoolName, 0),
		Date:   identity.DateToken(e.EventDate),
	}
}

// CanonicalEventID is the identifier every Event of a group converges to.
func CanonicalEventID(e model.Event) string {
	return identity.EventID(e.SchoolName, e.EventType, e.EventDate)
}

// FindDuplicateGroups returns one group per natural key held by more than one
// Event record. Members keep source order; groups are ordered by the first
// appearance of their key. Events without a usable school or date are ignored.
func FindDuplicateGroups(events []model.Event) []model.DuplicateGroup {
	index := make(map[model.NaturalKey][]model.Event)
	var order []model.NaturalKey

	for _, e := range events {
		key := EventKey(e)
		if !key.Valid() {
			continue
		}
		if _, seen := index[key]; !seen {
			order = append(order, key)
		}
		index[key] = append(index[key], e)
	}

	var groups []model.DuplicateGroup
	for _, key := range order {
		members := index[key]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, model.DuplicateGroup{
			Key:         key,
			Members:     members,
			CanonicalID: CanonicalEventID(canonicalSource(members)),
		})
	}
	return groups
}

// canonicalSource picks the member whose attributes seed the canonical id:
// the first one carrying a category, else the first member.
func canonicalSource(members []model.Event) model.Event {
	for _, m := range members {
		if m.EventType != "" {
			return m
		}
	}
	return members[0]
}

// ClassKeyOf returns the grouping key of a Class: its owning Event record and
// the unbounded slug of its name.
func ClassKeyOf(c model.Class) model.ClassKey {
	return model.ClassKey{
		EventRecordID: c.OwningEvent(),
		Name:          identity.Slug(c.ClassName, 0),
	}
}

// FindClassDuplicates returns one group per (owning Event, class name) held by
// more than one Class record. Classes without an owning Event or a name are
// ignored; they are orphans, not duplicates. eventsByRecordID resolves the
// owning Event so the canonical class id can be derived; a group whose Event
// is unknown gets an empty CanonicalID.
func FindClassDuplicates(classes []model.Class, eventsByRecordID map[string]model.Event) []model.ClassGroup {
	index := make(map[model.ClassKey][]model.Class)
	var order []model.ClassKey

	for _, c := range classes {
		key := ClassKeyOf(c)
		if key.EventRecordID == "" || key.Name == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			order = append(order, key)
		}
		index[key] = append(index[key], c)
	}

	var groups []model.ClassGroup
	for _, key := range order {
		members := index[key]
		if len(members) < 2 {
			continue
		}
		g := model.ClassGroup{Key: key, Members: members}
		if ev, ok := eventsByRecordID[key.EventRecordID]; ok {
			g.CanonicalID = identity.ClassID(ev.SchoolName, members[0].ClassName, ev.EventDate)
		}
		groups = append(groups, g)
	}
	return groups
}
