// Package validate checks the record store after a migration: counts against
// the extraction snapshot, orphaned references, remaining duplicates, and a
// sampled field-level comparison. Every check runs; failures accumulate in
// the report instead of stopping the pass.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/rekey/internal/grouper"
	"github.com/roach88/rekey/internal/identity"
	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/recordstore"
	"github.com/roach88/rekey/internal/snapshot"
)

// Reference kinds.
const (
	RefLink = "link"
	RefText = "text"
)

// Reference targets.
const (
	TargetEvents  = "events"
	TargetClasses = "classes"
)

// Reference is one class of reference the orphan scan resolves.
// Required references must be present; optional ones are checked only
// when set. Optional tables that cannot be read produce a warning.
type Reference struct {
	Name          string `yaml:"name" json:"name"`
	Table         string `yaml:"table" json:"table"`
	Field         string `yaml:"field" json:"field"`
	Kind          string `yaml:"kind" json:"kind"`
	Target        string `yaml:"target" json:"target"`
	Required      bool   `yaml:"required,omitempty" json:"required,omitempty"`
	OptionalTable bool   `yaml:"optional_table,omitempty" json:"optional_table,omitempty"`
}

// DefaultReferences lists the references of the production layout.
func DefaultReferences() []Reference {
	return []Reference{
		{Name: "class.event", Table: "Classes", Field: "event", Kind: RefLink, Target: TargetEvents, Required: true},
		{Name: "registration.event", Table: "Registrations", Field: "event", Kind: RefLink, Target: TargetEvents},
		{Name: "registration.class", Table: "Registrations", Field: "class", Kind: RefLink, Target: TargetClasses},
		{Name: "registration.event_id", Table: "Registrations", Field: "event_id", Kind: RefText, Target: TargetEvents},
		{Name: "journey.booking_id", Table: "parent_journey_table", Field: "booking_id", Kind: RefText, Target: TargetEvents},
		{Name: "journey.class_id", Table: "parent_journey_table", Field: "class_id", Kind: RefText, Target: TargetClasses},
		{Name: "order.booking_id", Table: "Orders", Field: "booking_id", Kind: RefText, Target: TargetEvents, OptionalTable: true},
	}
}

// DefaultSampleSize bounds the sampled field comparison.
const DefaultSampleSize = 50

// Options configures a Validator.
type Options struct {
	EventsTable  string
	ClassesTable string
	EventFields  model.EventFields
	ClassFields  model.ClassFields
	References   []Reference
	SampleSize   int
}

// DefaultOptions returns the production table layout.
func DefaultOptions() Options {
	return Options{
		EventsTable:  "Events",
		ClassesTable: "Classes",
		EventFields:  model.DefaultEventFields(),
		ClassFields:  model.DefaultClassFields(),
		References:   DefaultReferences(),
		SampleSize:   DefaultSampleSize,
	}
}

// Validator runs the consistency checks against one store.
type Validator struct {
	client recordstore.Client
	opts   Options
	snap   *snapshot.Snapshot
	logger *slog.Logger
	now    func() time.Time
}

// New creates a validator. snap may be nil: the snapshot-dependent checks
// then record errors rather than being skipped.
func New(client recordstore.Client, opts Options, snap *snapshot.Snapshot, logger *slog.Logger, now func() time.Time) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{client: client, opts: opts, snap: snap, logger: logger, now: now}
}

// state is the store as read once at the start of a pass.
type state struct {
	events        []model.Event
	classes       []model.Class
	eventByRec    map[string]model.Event
	classByRec    map[string]bool
	eventIDs      map[string]bool
	classIDs      map[string]bool
	eventByID     map[string]model.Event
	classByID     map[string]model.Class
	eventsLoaded  bool
	classesLoaded bool
}

// Validate runs every check and returns the report.
func (v *Validator) Validate(ctx context.Context, runID string) Report {
	r := Report{RunID: runID, GeneratedAt: v.now().UTC(), Errors: []Finding{}, Warnings: []Finding{}}

	st := v.load(ctx, &r)

	v.checkCounts(st, &r)
	v.checkOrphans(ctx, st, &r)
	v.checkDuplicates(st, &r)
	v.checkSample(st, &r)

	r.Passed = len(r.Errors) == 0
	v.logger.Info("validation finished", "passed", r.Passed, "errors", len(r.Errors), "warnings", len(r.Warnings))
	return r
}

func (v *Validator) load(ctx context.Context, r *Report) *state {
	st := &state{
		eventByRec: make(map[string]model.Event),
		classByRec: make(map[string]bool),
		eventIDs:   make(map[string]bool),
		classIDs:   make(map[string]bool),
		eventByID:  make(map[string]model.Event),
		classByID:  make(map[string]model.Class),
	}

	recs, err := recordstore.SelectAll(ctx, v.client, v.opts.EventsTable)
	if err != nil {
		r.errorf(CheckRead, nil, "read %s: %v", v.opts.EventsTable, err)
	} else {
		st.eventsLoaded = true
		for _, rec := range recs {
			e := v.opts.EventFields.Decode(rec)
			st.events = append(st.events, e)
			st.eventByRec[e.RecordID] = e
			if e.EventID != "" {
				st.eventIDs[e.EventID] = true
				if _, dup := st.eventByID[e.EventID]; !dup {
					st.eventByID[e.EventID] = e
				}
			}
		}
	}

	recs, err = recordstore.SelectAll(ctx, v.client, v.opts.ClassesTable)
	if err != nil {
		r.errorf(CheckRead, nil, "read %s: %v", v.opts.ClassesTable, err)
	} else {
		st.classesLoaded = true
		for _, rec := range recs {
			c := v.opts.ClassFields.Decode(rec)
			st.classes = append(st.classes, c)
			st.classByRec[c.RecordID] = true
			if c.ClassID != "" {
				st.classIDs[c.ClassID] = true
				if _, dup := st.classByID[c.ClassID]; !dup {
					st.classByID[c.ClassID] = c
				}
			}
		}
	}

	r.Stats.Events = len(st.events)
	r.Stats.Classes = len(st.classes)
	return st
}

// checkCounts compares table cardinality and the entity set with the snapshot.
func (v *Validator) checkCounts(st *state, r *Report) {
	if v.snap == nil {
		r.errorf(CheckCounts, nil, "extraction snapshot missing: cannot reconcile counts")
		return
	}
	r.Stats.ExpectedEvents = v.snap.Counts.Events
	r.Stats.ExpectedClasses = v.snap.Counts.Classes

	if st.eventsLoaded && len(st.events) != v.snap.Counts.Events {
		r.errorf(CheckCounts, nil, "%s: %d records, snapshot expects %d", v.opts.EventsTable, len(st.events), v.snap.Counts.Events)
	}
	if st.classesLoaded && len(st.classes) != v.snap.Counts.Classes {
		r.errorf(CheckCounts, nil, "%s: %d records, snapshot expects %d", v.opts.ClassesTable, len(st.classes), v.snap.Counts.Classes)
	}

	if st.eventsLoaded {
		want := make([]string, len(v.snap.Events))
		for i, e := range v.snap.Events {
			want[i] = e.EventID
		}
		compareSet(r, v.opts.EventsTable, st.eventIDs, want)
	}
	if st.classesLoaded {
		want := make([]string, len(v.snap.Classes))
		for i, c := range v.snap.Classes {
			want[i] = c.ClassID
		}
		compareSet(r, v.opts.ClassesTable, st.classIDs, want)
	}

	if st.eventsLoaded && st.classesLoaded {
		current := make([]string, 0, len(st.eventIDs)+len(st.classIDs))
		for id := range st.eventIDs {
			current = append(current, id)
		}
		for id := range st.classIDs {
			current = append(current, id)
		}
		if identity.Fingerprint(current) != v.snap.Fingerprint {
			r.warnf(CheckSnapshot, nil, "snapshot %s does not describe the current entity set", v.snap.RunID)
		}
	}
}

// compareSet reports snapshot ids absent from the store (error) and store
// ids absent from the snapshot (warning).
func compareSet(r *Report, table string, have map[string]bool, expected []string) {
	want := make(map[string]bool, len(expected))
	var missing []string
	for _, id := range expected {
		want[id] = true
		if !have[id] {
			missing = append(missing, id)
		}
	}
	var extra []string
	for id := range have {
		if !want[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)

	if len(missing) > 0 {
		r.errorf(CheckEntitySet, missing, "%s: %d snapshot ids missing from store", table, len(missing))
	}
	if len(extra) > 0 {
		r.warnf(CheckEntitySet, extra, "%s: %d ids not in snapshot", table, len(extra))
	}
}

// checkOrphans resolves every reference and reports one error per reference
// class with unresolved records.
func (v *Validator) checkOrphans(ctx context.Context, st *state, r *Report) {
	for _, ref := range v.opts.References {
		if !v.targetLoaded(st, ref.Target) {
			continue
		}

		var recs []model.Record
		if ref.Table == v.opts.ClassesTable {
			recs = classRecords(st.classes, v.opts.ClassFields)
		} else {
			var err error
			recs, err = recordstore.SelectAll(ctx, v.client, ref.Table)
			if err != nil {
				if ref.OptionalTable && recordstore.IsPermissionDenied(err) {
					r.warnf(CheckOrphans, nil, "%s: table %s inaccessible, reference not checked", ref.Name, ref.Table)
					continue
				}
				r.errorf(CheckRead, nil, "%s: read %s: %v", ref.Name, ref.Table, err)
				continue
			}
		}

		var orphans []string
		for _, rec := range recs {
			if !v.resolves(st, ref, rec) {
				orphans = append(orphans, rec.ID)
			}
		}
		if len(orphans) > 0 {
			r.Stats.Orphans += len(orphans)
			r.errorf(CheckOrphans, orphans, "%s: %d records reference a missing %s", ref.Name, len(orphans), ref.Target)
		}
	}
}

func (v *Validator) targetLoaded(st *state, target string) bool {
	if target == TargetClasses {
		return st.classesLoaded
	}
	return st.eventsLoaded
}

func (v *Validator) resolves(st *state, ref Reference, rec model.Record) bool {
	switch ref.Kind {
	case RefLink:
		links := rec.Links(ref.Field)
		if len(links) == 0 {
			return !ref.Required
		}
		for _, l := range links {
			if ref.Target == TargetClasses {
				if !st.classByRec[l] {
					return false
				}
			} else if _, ok := st.eventByRec[l]; !ok {
				return false
			}
		}
		return true
	default:
		id := rec.String(ref.Field)
		if id == "" {
			return !ref.Required
		}
		if ref.Target == TargetClasses {
			return st.classIDs[id]
		}
		return st.eventIDs[id]
	}
}

// classRecords re-encodes decoded classes so the orphan scan reads the
// Classes table once.
func classRecords(classes []model.Class, f model.ClassFields) []model.Record {
	out := make([]model.Record, len(classes))
	for i, c := range classes {
		out[i] = model.Record{ID: c.RecordID, Fields: f.Encode(c)}
	}
	return out
}

// checkDuplicates re-runs the groupers against the current state.
func (v *Validator) checkDuplicates(st *state, r *Report) {
	if st.eventsLoaded {
		for _, g := range grouper.FindDuplicateGroups(st.events) {
			ids := make([]string, len(g.Members))
			for i, m := range g.Members {
				ids[i] = m.RecordID
			}
			r.Stats.DuplicateGroups++
			r.errorf(CheckDuplicates, ids, "%s: %d Events share natural key %s", v.opts.EventsTable, len(ids), g.Key)
		}
	}
	if st.classesLoaded {
		for _, g := range grouper.FindClassDuplicates(st.classes, st.eventByRec) {
			ids := make([]string, len(g.Members))
			for i, m := range g.Members {
				ids[i] = m.RecordID
			}
			r.Stats.DuplicateGroups++
			r.errorf(CheckDuplicates, ids, "%s: %d Classes named %q under Event %s", v.opts.ClassesTable, len(ids), g.Key.Name, g.Key.EventRecordID)
		}
	}
}

// checkSample compares a deterministic sample of snapshot entities with the
// store. Every stride-th entity is taken so the same snapshot always yields
// the same sample.
func (v *Validator) checkSample(st *state, r *Report) {
	if v.snap == nil {
		r.errorf(CheckSample, nil, "extraction snapshot missing: cannot sample fields")
		return
	}
	n := v.opts.SampleSize
	if n <= 0 {
		n = DefaultSampleSize
	}

	if st.eventsLoaded {
		for _, idx := range sampleIndexes(len(v.snap.Events), n) {
			want := v.snap.Events[idx]
			r.Stats.Sampled++
			got, ok := st.eventByID[want.EventID]
			if !ok {
				r.Stats.SampleMismatches++
				r.errorf(CheckSample, nil, "event %s: not found", want.EventID)
				continue
			}
			if diffs := compareEvent(want, got); len(diffs) > 0 {
				r.Stats.SampleMismatches++
				r.errorf(CheckSample, []string{got.RecordID}, "event %s: %v", want.EventID, diffs)
			}
		}
	}

	if st.classesLoaded && st.eventsLoaded {
		for _, idx := range sampleIndexes(len(v.snap.Classes), n) {
			want := v.snap.Classes[idx]
			r.Stats.Sampled++
			got, ok := st.classByID[want.ClassID]
			if !ok {
				r.Stats.SampleMismatches++
				r.errorf(CheckSample, nil, "class %s: not found", want.ClassID)
				continue
			}
			if diffs := compareClass(want, got, st.eventByRec); len(diffs) > 0 {
				r.Stats.SampleMismatches++
				r.errorf(CheckSample, []string{got.RecordID}, "class %s: %v", want.ClassID, diffs)
			}
		}
	}
}

// sampleIndexes picks up to n indexes of [0, total) at an even stride.
func sampleIndexes(total, n int) []int {
	if total == 0 {
		return nil
	}
	if n >= total {
		n = total
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i * total / n
	}
	return out
}

func compareEvent(want snapshot.EventRow, got model.Event) []string {
	var diffs []string
	if identity.Slug(want.SchoolName, 0) != identity.Slug(got.SchoolName, 0) {
		diffs = append(diffs, fmt.Sprintf("school_name %q != %q", got.SchoolName, want.SchoolName))
	}
	if identity.DateToken(want.EventDate) != identity.DateToken(got.EventDate) {
		diffs = append(diffs, fmt.Sprintf("event_date %q != %q", got.EventDate, want.EventDate))
	}
	if want.Category != identity.NormalizeCategory(got.EventType) {
		diffs = append(diffs, fmt.Sprintf("category %q != %q", identity.NormalizeCategory(got.EventType), want.Category))
	}
	return diffs
}

func compareClass(want snapshot.ClassRow, got model.Class, eventByRec map[string]model.Event) []string {
	var diffs []string
	if identity.Slug(want.ClassName, 0) != identity.Slug(got.ClassName, 0) {
		diffs = append(diffs, fmt.Sprintf("class_name %q != %q", got.ClassName, want.ClassName))
	}
	owner, ok := eventByRec[got.OwningEvent()]
	if !ok || owner.EventID != want.EventID {
		diffs = append(diffs, fmt.Sprintf("event %q != %q", owner.EventID, want.EventID))
	}
	return diffs
}
