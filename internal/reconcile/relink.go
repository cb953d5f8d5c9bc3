package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/rekey/internal/executor"
	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/queryir"
	"github.com/roach88/rekey/internal/recordstore"
)

// orderedSet is a string set that remembers insertion order, so filters and
// audit lines come out the same on every run.
type orderedSet struct {
	items []string
	index map[string]bool
}

func newOrderedSet(items ...string) *orderedSet {
	s := &orderedSet{index: make(map[string]bool)}
	for _, it := range items {
		s.add(it)
	}
	return s
}

func (s *orderedSet) add(v string) {
	if v == "" || s.index[v] {
		return
	}
	s.index[v] = true
	s.items = append(s.items, v)
}

func (s *orderedSet) remove(v string) {
	if !s.index[v] {
		return
	}
	delete(s.index, v)
	for i, it := range s.items {
		if it == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
}

func (s *orderedSet) has(v string) bool {
	return s.index[v]
}

func (s *orderedSet) containsAny(vs []string) bool {
	for _, v := range vs {
		if s.index[v] {
			return true
		}
	}
	return false
}

func (s *orderedSet) len() int {
	return len(s.items)
}

// relinkPlan maps superseded references onto the kept one.
type relinkPlan struct {
	oldText *orderedSet // textual ids to replace
	newText string
	oldLink *orderedSet // record ids to replace in link fields
	newLink string
}

// remapLinks replaces superseded record ids with the kept one, dropping
// duplicates. changed is false when links held no superseded id.
func (p relinkPlan) remapLinks(links []string) (out []string, changed bool) {
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if p.oldLink.has(l) {
			l = p.newLink
			changed = true
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out, changed
}

// relink rewrites every record of dep that references a superseded member.
// It returns the ids of the updated records. A permission-denied error on an
// optional dependent skips the dependent for the rest of the run and is not
// returned.
func (e *Engine) relink(ctx context.Context, exec executor.Executor, dep Dependent, plan relinkPlan) ([]string, error) {
	if e.skipped[dep.Name] {
		return nil, nil
	}

	var preds []queryir.Predicate
	if dep.TextField != "" && plan.oldText.len() > 0 {
		preds = append(preds, queryir.AnyEquals(dep.TextField, plan.oldText.items))
	}
	if dep.LinkField != "" && plan.oldLink.len() > 0 {
		preds = append(preds, queryir.AnyLink(dep.LinkField, plan.oldLink.items))
	}
	if len(preds) == 0 {
		return nil, nil
	}

	q := queryir.Select{From: dep.Table, Filter: queryir.Or{Predicates: preds}}
	recs, err := recordstore.Collect(ctx, e.client.Select(ctx, q))
	if err != nil {
		return nil, e.dependentError(ctx, dep, err)
	}

	var updates []model.Record
	var details []string
	for _, r := range recs {
		fields := model.Fields{}
		var changes []string
		if dep.TextField != "" {
			if old := r.String(dep.TextField); plan.oldText.has(old) {
				fields[dep.TextField] = plan.newText
				changes = append(changes, fmt.Sprintf("%s %s -> %s", dep.TextField, old, plan.newText))
			}
		}
		if dep.LinkField != "" {
			if links, changed := plan.remapLinks(r.Links(dep.LinkField)); changed {
				fields[dep.LinkField] = model.LinkIDs(links...)
				changes = append(changes, fmt.Sprintf("%s -> %s", dep.LinkField, strings.Join(links, ",")))
			}
		}
		if len(fields) == 0 {
			continue
		}
		updates = append(updates, model.Record{ID: r.ID, Fields: fields})
		details = append(details, strings.Join(changes, "; "))
	}
	if len(updates) == 0 {
		return nil, nil
	}

	if err := exec.Update(ctx, dep.Table, updates); err != nil {
		return nil, e.dependentError(ctx, dep, err)
	}

	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
		e.trail.Record(ctx, Phase, model.ActionUpdate, dep.Table, u.ID, details[i])
	}
	return ids, nil
}

// dependentError turns permission-denied on an optional dependent into a skip.
func (e *Engine) dependentError(ctx context.Context, dep Dependent, err error) error {
	if dep.Optional && recordstore.IsPermissionDenied(err) {
		e.skipped[dep.Name] = true
		e.logger.Warn("dependent table inaccessible, skipping for this run", "dependent", dep.Name, "table", dep.Table, "error", err)
		e.trail.Record(ctx, Phase, model.ActionSkip, dep.Table, "", "permission denied; "+dep.Name+" skipped for this run")
		return nil
	}
	return err
}
