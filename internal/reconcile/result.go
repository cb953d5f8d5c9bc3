package reconcile

import (
	"github.com/roach88/rekey/internal/model"
)

// Group outcomes.
const (
	StatusResolved = "resolved"
	StatusErrored  = "errored"
)

// Decision is what the engine decided for one group. Identical input yields
// an identical Decision in dry-run and live mode.
type Decision struct {
	Key         model.NaturalKey    `json:"key"`
	CanonicalID string              `json:"canonical_id"`
	Kept        string              `json:"kept"`
	KeptEventID string              `json:"kept_event_id"`
	Rewrite     bool                `json:"rewrite"`
	Policy      string              `json:"policy"`
	Superseded  []string            `json:"superseded"`
	Relinks     map[string][]string `json:"relinks"`
	ClassMerges []ClassMerge        `json:"class_merges,omitempty"`
}

// ClassMerge is the decision for Classes that collapsed onto the kept Event.
type ClassMerge struct {
	Name        string   `json:"name"`
	CanonicalID string   `json:"canonical_id"`
	Kept        string   `json:"kept"`
	Rewrite     bool     `json:"rewrite"`
	Superseded  []string `json:"superseded"`
}

// GroupResult is the outcome of one group.
type GroupResult struct {
	Decision Decision `json:"decision"`
	Status   string   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Updated  int      `json:"updated"`
	Deleted  int      `json:"deleted"`
}

// RunResult accumulates the outcome of a reconciliation run.
type RunResult struct {
	GroupsFound int            `json:"groups_found"`
	Resolved    int            `json:"resolved"`
	Errored     int            `json:"errored"`
	Updated     int            `json:"updated"`
	Deleted     int            `json:"deleted"`
	Relinked    map[string]int `json:"relinked"`
	Skipped     []string       `json:"skipped_dependents,omitempty"`
	Groups      []GroupResult  `json:"groups"`
}

func (r *RunResult) add(g GroupResult) {
	r.Groups = append(r.Groups, g)
	r.Updated += g.Updated
	r.Deleted += g.Deleted
	for dep, ids := range g.Decision.Relinks {
		r.Relinked[dep] += len(ids)
	}
	if g.Status == StatusErrored {
		r.Errored++
		return
	}
	r.Resolved++
}

// Failed reports whether any group errored.
func (r RunResult) Failed() bool {
	return r.Errored > 0
}
