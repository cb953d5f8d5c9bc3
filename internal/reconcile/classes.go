package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/grouper"
	"github.com/roach88/rekey/internal/model"
)

// mergeClasses collapses Classes that share a name once their Events are
// merged. classes were read before the group's first write; their event
// links are remapped in memory so dry-run sees what live would.
func (e *Engine) mergeClasses(ctx context.Context, exec executor.Executor, g model.DuplicateGroup, res *GroupResult, classes []model.Class, supersededEvents *orderedSet) error {
	d := res.Decision
	eventPlan := relinkPlan{oldLink: supersededEvents, newLink: d.Kept}

	remapped := make([]model.Class, len(classes))
	for i, c := range classes {
		c.EventLinks, _ = eventPlan.remapLinks(c.EventLinks)
		remapped[i] = c
	}

	var kept model.Event
	for _, m := range g.Members {
		if m.RecordID == d.Kept {
			kept = m
		}
	}

	for _, cg := range grouper.FindClassDuplicates(remapped, map[string]model.Event{kept.RecordID: kept}) {
		if cg.Key.EventRecordID != d.Kept {
			continue
		}
		merge, err := e.mergeClassGroup(ctx, exec, cg, res)
		res.Decision.ClassMerges = append(res.Decision.ClassMerges, merge)
		if err != nil {
			return fmt.Errorf("merge classes %q: %w", cg.Key.Name, err)
		}
	}
	return nil
}

func (e *Engine) mergeClassGroup(ctx context.Context, exec executor.Executor, cg model.ClassGroup, res *GroupResult) (ClassMerge, error) {
	keep := 0
	for i, c := range cg.Members {
		if c.ClassID == cg.CanonicalID {
			keep = i
			break
		}
	}
	kept := cg.Members[keep]
	merge := ClassMerge{
		Name:        cg.Key.Name,
		CanonicalID: cg.CanonicalID,
		Kept:        kept.RecordID,
		Rewrite:     cg.CanonicalID != "" && kept.ClassID != cg.CanonicalID,
	}

	superseded := newOrderedSet()
	oldText := newOrderedSet()
	for i, c := range cg.Members {
		if i == keep {
			continue
		}
		superseded.add(c.RecordID)
		oldText.add(c.ClassID)
	}
	merge.Superseded = superseded.items

	newText := kept.ClassID
	if merge.Rewrite {
		oldText.add(kept.ClassID)
		newText = cg.CanonicalID
	}
	oldText.remove(newText)

	e.trail.Record(ctx, Phase, model.ActionKeep, e.opts.ClassesTable, kept.RecordID,
		fmt.Sprintf("class %s as %s", cg.Key.Name, quoteEmpty(newText)))

	plan := relinkPlan{oldText: oldText, newText: newText, oldLink: superseded, newLink: kept.RecordID}
	for _, dep := range e.opts.ClassDependents {
		ids, err := e.relink(ctx, exec, dep, plan)
		if err != nil {
			return merge, fmt.Errorf("relink %s: %w", dep.Name, err)
		}
		if len(ids) > 0 {
			res.Decision.Relinks[dep.Name] = append(res.Decision.Relinks[dep.Name], ids...)
			res.Updated += len(ids)
		}
	}

	if merge.Rewrite {
		rec := model.Record{ID: kept.RecordID, Fields: model.Fields{e.opts.ClassFields.ID: cg.CanonicalID}}
		if err := exec.Update(ctx, e.opts.ClassesTable, []model.Record{rec}); err != nil {
			return merge, fmt.Errorf("rewrite class %s: %w", kept.RecordID, err)
		}
		res.Updated++
		e.trail.Record(ctx, Phase, model.ActionUpdate, e.opts.ClassesTable, kept.RecordID,
			fmt.Sprintf("%s %s -> %s", e.opts.ClassFields.ID, quoteEmpty(kept.ClassID), cg.CanonicalID))
	}

	if err := exec.Delete(ctx, e.opts.ClassesTable, superseded.items); err != nil {
		return merge, fmt.Errorf("delete superseded classes: %w", err)
	}
	res.Deleted += superseded.len()
	for _, id := range superseded.items {
		e.trail.Record(ctx, Phase, model.ActionDelete, e.opts.ClassesTable, id, "merged into "+kept.RecordID)
	}
	return merge, nil
}
