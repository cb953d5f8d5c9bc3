package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/grouper"
	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/queryir"
	"github.com/roach88/rekey/internal/recordstore"
)

// Engine reconciles duplicate Event groups against one record store.
//
// An Engine holds per-run state (skipped optional dependents) and is not safe
// for concurrent use.
type Engine struct {
	client  recordstore.Client
	opts    Options
	trail   *executor.Trail
	logger  *slog.Logger
	skipped map[string]bool
}

// New creates an engine. Reads go to client; writes go to the Executor passed
// to Run or Reconcile. trail and logger may be nil.
func New(client recordstore.Client, opts Options, trail *executor.Trail, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if trail == nil {
		trail = executor.NewTrail(io.Discard, nil, logger, "", false)
	}
	if opts.Policy.Pick == nil {
		opts.Policy = SelectFirst
	}
	return &Engine{
		client:  client,
		opts:    opts,
		trail:   trail,
		logger:  logger,
		skipped: make(map[string]bool),
	}
}

// LoadEvents reads every Event record.
func (e *Engine) LoadEvents(ctx context.Context) ([]model.Event, error) {
	recs, err := recordstore.SelectAll(ctx, e.client, e.opts.EventsTable)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	events := make([]model.Event, len(recs))
	for i, r := range recs {
		events[i] = e.opts.EventFields.Decode(r)
	}
	return events, nil
}

// FixDuplicates loads Events, groups them, and reconciles every group.
// The returned error is reserved for setup failures; per-group failures are
// counted in the result.
func (e *Engine) FixDuplicates(ctx context.Context, exec executor.Executor) (RunResult, error) {
	events, err := e.LoadEvents(ctx)
	if err != nil {
		return RunResult{}, err
	}
	groups := grouper.FindDuplicateGroups(events)
	e.logger.Info("duplicate groups found", "events", len(events), "groups", len(groups))
	return e.Run(ctx, groups, exec)
}

// Run reconciles groups in order. Cancellation is checked between groups;
// a cancelled run returns what it finished along with ctx.Err().
func (e *Engine) Run(ctx context.Context, groups []model.DuplicateGroup, exec executor.Executor) (RunResult, error) {
	result := RunResult{GroupsFound: len(groups), Relinked: make(map[string]int)}

	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			return e.finish(result), err
		}

		gr, err := e.Reconcile(ctx, g, exec)
		if err != nil {
			gr.Status = StatusErrored
			gr.Error = err.Error()
			e.logger.Error("group errored", "group", i+1, "key", g.Key.String(), "error", err)
			e.trail.Record(ctx, Phase, model.ActionError, e.opts.EventsTable, gr.Decision.Kept, fmt.Sprintf("group %s: %v", g.Key, err))
		} else {
			e.logger.Info("group resolved", "group", i+1, "key", g.Key.String(), "kept", gr.Decision.Kept, "deleted", gr.Deleted)
		}
		result.add(gr)
	}
	return e.finish(result), nil
}

func (e *Engine) finish(r RunResult) RunResult {
	for _, d := range e.opts.Dependents {
		if e.skipped[d.Name] {
			r.Skipped = append(r.Skipped, d.Name)
		}
	}
	for _, d := range e.opts.ClassDependents {
		if e.skipped[d.Name] {
			r.Skipped = append(r.Skipped, d.Name)
		}
	}
	return r
}

// Decide applies the canonical-selection policy to a group:
// a member already holding the canonical id is kept as-is; otherwise the
// policy picks one and its id is rewritten.
func (e *Engine) Decide(g model.DuplicateGroup) Decision {
	keep := -1
	policy := policyCanonical
	for i, m := range g.Members {
		if m.EventID == g.CanonicalID {
			keep = i
			break
		}
	}
	if keep < 0 {
		keep = e.opts.Policy.Pick(g.Members)
		if keep < 0 || keep >= len(g.Members) {
			keep = 0
		}
		policy = e.opts.Policy.Name
	}

	kept := g.Members[keep]
	d := Decision{
		Key:         g.Key,
		CanonicalID: g.CanonicalID,
		Kept:        kept.RecordID,
		KeptEventID: kept.EventID,
		Rewrite:     kept.EventID != g.CanonicalID,
		Policy:      policy,
		Relinks:     make(map[string][]string),
	}
	for i, m := range g.Members {
		if i != keep {
			d.Superseded = append(d.Superseded, m.RecordID)
		}
	}
	return d
}

// Reconcile resolves one group. On error the returned result carries the
// partial decision and no superseded member has been deleted.
func (e *Engine) Reconcile(ctx context.Context, g model.DuplicateGroup, exec executor.Executor) (GroupResult, error) {
	d := e.Decide(g)
	res := GroupResult{Decision: d, Status: StatusResolved}

	e.trail.Record(ctx, Phase, model.ActionKeep, e.opts.EventsTable, d.Kept,
		fmt.Sprintf("%s as %s (%s)", g.Key, d.CanonicalID, d.Policy))

	// Reads happen before the first write so both executors see the same input.
	var classes []model.Class
	if e.opts.MergeClasses {
		var err error
		classes, err = e.loadClasses(ctx, g)
		if err != nil {
			return res, err
		}
	}

	supersededIDs := newOrderedSet()
	oldTextIDs := newOrderedSet()
	for _, m := range g.Members {
		if m.RecordID == d.Kept {
			continue
		}
		supersededIDs.add(m.RecordID)
		oldTextIDs.add(m.EventID)
	}
	if d.Rewrite {
		oldTextIDs.add(d.KeptEventID)
	}
	oldTextIDs.remove(d.CanonicalID)

	plan := relinkPlan{
		oldText: oldTextIDs,
		newText: d.CanonicalID,
		oldLink: supersededIDs,
		newLink: d.Kept,
	}
	for _, dep := range e.opts.Dependents {
		ids, err := e.relink(ctx, exec, dep, plan)
		if err != nil {
			return res, fmt.Errorf("relink %s: %w", dep.Name, err)
		}
		if len(ids) > 0 {
			res.Decision.Relinks[dep.Name] = append(res.Decision.Relinks[dep.Name], ids...)
			res.Updated += len(ids)
		}
	}

	if e.opts.MergeClasses {
		if err := e.mergeClasses(ctx, exec, g, &res, classes, supersededIDs); err != nil {
			return res, err
		}
	}

	if d.Rewrite {
		rec := model.Record{ID: d.Kept, Fields: model.Fields{e.opts.EventFields.ID: d.CanonicalID}}
		if err := exec.Update(ctx, e.opts.EventsTable, []model.Record{rec}); err != nil {
			return res, fmt.Errorf("rewrite %s: %w", d.Kept, err)
		}
		res.Updated++
		e.trail.Record(ctx, Phase, model.ActionUpdate, e.opts.EventsTable, d.Kept,
			fmt.Sprintf("%s %s -> %s", e.opts.EventFields.ID, quoteEmpty(d.KeptEventID), d.CanonicalID))
	}

	if len(d.Superseded) > 0 {
		if err := exec.Delete(ctx, e.opts.EventsTable, d.Superseded); err != nil {
			return res, fmt.Errorf("delete superseded: %w", err)
		}
		res.Deleted += len(d.Superseded)
		for _, id := range d.Superseded {
			e.trail.Record(ctx, Phase, model.ActionDelete, e.opts.EventsTable, id, "superseded by "+d.Kept)
		}
	}
	return res, nil
}

// loadClasses reads the Classes linked to any member of the group.
func (e *Engine) loadClasses(ctx context.Context, g model.DuplicateGroup) ([]model.Class, error) {
	members := newOrderedSet()
	for _, m := range g.Members {
		members.add(m.RecordID)
	}
	q := queryir.Select{
		From:   e.opts.ClassesTable,
		Filter: queryir.AnyLink(e.opts.ClassFields.Event, members.items),
	}
	recs, err := recordstore.Collect(ctx, e.client.Select(ctx, q))
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}

	var classes []model.Class
	for _, r := range recs {
		c := e.opts.ClassFields.Decode(r)
		// The hosted filter is a substring match; re-check exactly.
		if members.containsAny(c.EventLinks) {
			classes = append(classes, c)
		}
	}
	return classes, nil
}

func quoteEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}
