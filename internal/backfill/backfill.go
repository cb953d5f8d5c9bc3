// Package backfill derives canonical Events and Classes from legacy journey
// rows, records them in the extraction snapshot, and brings the store in
// line: missing records are created, missing identifiers are filled in.
// Existing non-empty identifiers are never overwritten here; diverging
// duplicates are the reconciliation engine's job.
package backfill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/grouper"
	"github.com/roach88/rekey/internal/identity"
	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/recordstore"
	"github.com/roach88/rekey/internal/snapshot"
)

// Phase is the audit phase name of backfill.
const Phase = "backfill"

// Options configures a Backfiller.
type Options struct {
	JourneyTable  string
	EventsTable   string
	ClassesTable  string
	JourneyFields model.JourneyFields
	EventFields   model.EventFields
	ClassFields   model.ClassFields
}

// DefaultOptions returns the production table layout.
func DefaultOptions() Options {
	return Options{
		JourneyTable:  "parent_journey_table",
		EventsTable:   "Events",
		ClassesTable:  "Classes",
		JourneyFields: model.DefaultJourneyFields(),
		EventFields:   model.DefaultEventFields(),
		ClassFields:   model.DefaultClassFields(),
	}
}

// Result counts what a backfill did or, in dry-run mode, would do.
type Result struct {
	Snapshot       *snapshot.Snapshot `json:"-"`
	Rows           int                `json:"rows"`
	RowsInvalid    int                `json:"rows_invalid"`
	EventsCreated  int                `json:"events_created"`
	EventsUpdated  int                `json:"events_updated"`
	EventsSkipped  int                `json:"events_skipped"`
	ClassesCreated int                `json:"classes_created"`
	ClassesUpdated int                `json:"classes_updated"`
	ClassesSkipped int                `json:"classes_skipped"`
	RowsUpdated    int                `json:"rows_updated"`
	RowsSkipped    int                `json:"rows_skipped"`
}

// Backfiller runs the backfill phase against one store.
type Backfiller struct {
	client recordstore.Client
	opts   Options
	trail  *executor.Trail
	logger *slog.Logger
	now    func() time.Time
}

// New creates a backfiller. trail, logger and now may be nil.
func New(client recordstore.Client, opts Options, trail *executor.Trail, logger *slog.Logger, now func() time.Time) *Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	if trail == nil {
		trail = executor.NewTrail(io.Discard, nil, logger, "", false)
	}
	if now == nil {
		now = time.Now
	}
	return &Backfiller{client: client, opts: opts, trail: trail, logger: logger, now: now}
}

// Extract reads the journey rows and builds the snapshot without writing anything.
func (b *Backfiller) Extract(ctx context.Context) (*snapshot.Snapshot, []model.Record, int, error) {
	rows, err := recordstore.SelectAll(ctx, b.client, b.opts.JourneyTable)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read journey rows: %w", err)
	}
	events, classes, invalid := snapshot.Extract(rows, b.opts.JourneyFields)
	snap := snapshot.New(b.trail.RunID(), b.now(), events, classes)
	b.logger.Info("extracted", "rows", len(rows), "events", len(events), "classes", len(classes), "invalid", invalid)
	return snap, rows, invalid, nil
}

// Run extracts and applies the backfill through exec.
func (b *Backfiller) Run(ctx context.Context, exec executor.Executor) (Result, error) {
	snap, rows, invalid, err := b.Extract(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Snapshot: snap, Rows: len(rows), RowsInvalid: invalid}

	eventRecs, err := b.syncEvents(ctx, exec, snap, &res)
	if err != nil {
		return res, err
	}
	if err := b.syncClasses(ctx, exec, snap, eventRecs, &res); err != nil {
		return res, err
	}
	if err := b.syncRows(ctx, exec, rows, &res); err != nil {
		return res, err
	}
	return res, nil
}

// syncEvents creates missing Events and fills empty event ids. It returns the
// record id holding each snapshot event id.
func (b *Backfiller) syncEvents(ctx context.Context, exec executor.Executor, snap *snapshot.Snapshot, res *Result) (map[string]string, error) {
	recs, err := recordstore.SelectAll(ctx, b.client, b.opts.EventsTable)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	byKey := make(map[model.NaturalKey]model.Event)
	for _, r := range recs {
		e := b.opts.EventFields.Decode(r)
		if k := grouper.EventKey(e); k.Valid() {
			if _, seen := byKey[k]; !seen {
				byKey[k] = e
			}
		}
	}

	recordOf := make(map[string]string, len(snap.Events))
	var creates []model.Fields
	var createIDs []string
	var updates []model.Record
	for _, row := range snap.Events {
		want := model.Event{
			EventID:         row.EventID,
			SchoolName:      row.SchoolName,
			EventDate:       row.EventDate,
			EventType:       row.EventType,
			LegacyBookingID: row.LegacyBookingID,
		}
		existing, ok := byKey[grouper.EventKey(want)]
		switch {
		case !ok:
			creates = append(creates, b.opts.EventFields.Encode(want))
			createIDs = append(createIDs, row.EventID)
		case existing.EventID == "":
			recordOf[row.EventID] = existing.RecordID
			updates = append(updates, model.Record{ID: existing.RecordID, Fields: model.Fields{b.opts.EventFields.ID: row.EventID}})
		default:
			recordOf[row.EventID] = existing.RecordID
			res.EventsSkipped++
			b.trail.Record(ctx, Phase, model.ActionSkip, b.opts.EventsTable, existing.RecordID, "exists as "+existing.EventID)
		}
	}

	if len(updates) > 0 {
		if err := exec.Update(ctx, b.opts.EventsTable, updates); err != nil {
			return nil, fmt.Errorf("fill event ids: %w", err)
		}
		for _, u := range updates {
			res.EventsUpdated++
			b.trail.Record(ctx, Phase, model.ActionUpdate, b.opts.EventsTable, u.ID, fmt.Sprintf("%s -> %s", b.opts.EventFields.ID, u.Fields[b.opts.EventFields.ID]))
		}
	}
	if len(creates) > 0 {
		created, err := exec.Create(ctx, b.opts.EventsTable, creates)
		for i, c := range created {
			recordOf[createIDs[i]] = c.ID
			res.EventsCreated++
			b.trail.Record(ctx, Phase, model.ActionCreate, b.opts.EventsTable, c.ID, createIDs[i])
		}
		if err != nil {
			return nil, fmt.Errorf("create events: %w", err)
		}
	}
	return recordOf, nil
}

// syncClasses creates missing Classes under their Event and fills empty class ids.
func (b *Backfiller) syncClasses(ctx context.Context, exec executor.Executor, snap *snapshot.Snapshot, eventRecs map[string]string, res *Result) error {
	recs, err := recordstore.SelectAll(ctx, b.client, b.opts.ClassesTable)
	if err != nil {
		return fmt.Errorf("read classes: %w", err)
	}
	byKey := make(map[model.ClassKey]model.Class)
	for _, r := range recs {
		c := b.opts.ClassFields.Decode(r)
		k := grouper.ClassKeyOf(c)
		if _, seen := byKey[k]; !seen {
			byKey[k] = c
		}
	}

	var creates []model.Fields
	var createIDs []string
	var updates []model.Record
	for _, row := range snap.Classes {
		eventRec, ok := eventRecs[row.EventID]
		if !ok {
			// Event creation failed or was skipped; nothing to attach to.
			continue
		}
		want := model.Class{
			ClassID:       row.ClassID,
			ClassName:     row.ClassName,
			MainTeacher:   row.MainTeacher,
			TotalChildren: row.TotalChildren,
			EventLinks:    []string{eventRec},
		}
		existing, found := byKey[grouper.ClassKeyOf(want)]
		switch {
		case !found:
			creates = append(creates, b.opts.ClassFields.Encode(want))
			createIDs = append(createIDs, row.ClassID)
		case existing.ClassID == "":
			updates = append(updates, model.Record{ID: existing.RecordID, Fields: model.Fields{b.opts.ClassFields.ID: row.ClassID}})
		default:
			res.ClassesSkipped++
			b.trail.Record(ctx, Phase, model.ActionSkip, b.opts.ClassesTable, existing.RecordID, "exists as "+existing.ClassID)
		}
	}

	if len(updates) > 0 {
		if err := exec.Update(ctx, b.opts.ClassesTable, updates); err != nil {
			return fmt.Errorf("fill class ids: %w", err)
		}
		for _, u := range updates {
			res.ClassesUpdated++
			b.trail.Record(ctx, Phase, model.ActionUpdate, b.opts.ClassesTable, u.ID, fmt.Sprintf("%s -> %s", b.opts.ClassFields.ID, u.Fields[b.opts.ClassFields.ID]))
		}
	}
	if len(creates) > 0 {
		created, err := exec.Create(ctx, b.opts.ClassesTable, creates)
		for i, c := range created {
			res.ClassesCreated++
			b.trail.Record(ctx, Phase, model.ActionCreate, b.opts.ClassesTable, c.ID, createIDs[i])
		}
		if err != nil {
			return fmt.Errorf("create classes: %w", err)
		}
	}
	return nil
}

// syncRows fills empty booking_id and class_id values on journey rows.
func (b *Backfiller) syncRows(ctx context.Context, exec executor.Executor, rows []model.Record, res *Result) error {
	f := b.opts.JourneyFields

	// Rows of one natural key share the id of the key's first row.
	eventIDs := make(map[model.NaturalKey]model.Event)
	var updates []model.Record
	for _, r := range rows {
		school, date := r.Raw(f.School), r.String(f.Date)
		key := model.NaturalKey{School: identity.Slug(school, 0), Date: identity.DateToken(date)}
		if !key.Valid() {
			continue
		}
		ev, ok := eventIDs[key]
		if !ok {
			ev = model.Event{EventID: identity.EventID(school, r.String(f.Type), date), SchoolName: school, EventDate: date}
			eventIDs[key] = ev
		}

		fields := model.Fields{}
		if r.String(f.BookingID) == "" {
			fields[f.BookingID] = ev.EventID
		}
		if name := r.Raw(f.ClassName); r.String(f.ClassID) == "" && identity.Slug(name, 0) != "" {
			fields[f.ClassID] = identity.ClassID(ev.SchoolName, name, ev.EventDate)
		}
		if len(fields) == 0 {
			res.RowsSkipped++
			continue
		}
		updates = append(updates, model.Record{ID: r.ID, Fields: fields})
	}

	if len(updates) == 0 {
		return nil
	}
	if err := exec.Update(ctx, b.opts.JourneyTable, updates); err != nil {
		return fmt.Errorf("fill journey ids: %w", err)
	}
	for _, u := range updates {
		res.RowsUpdated++
		b.trail.Record(ctx, Phase, model.ActionUpdate, b.opts.JourneyTable, u.ID, describe(u.Fields, f))
	}
	return nil
}

func describe(fields model.Fields, f model.JourneyFields) string {
	out := ""
	for _, name := range []string{f.BookingID, f.ClassID} {
		if v, ok := fields[name]; ok {
			if out != "" {
				out += "; "
			}
			out += fmt.Sprintf("%s -> %v", name, v)
		}
	}
	return out
}
