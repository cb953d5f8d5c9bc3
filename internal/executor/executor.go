// Package executor separates deciding a mutation from performing it.
//
// Engines compute their decisions from store reads and hand every write to an
// Executor. Live forwards writes to a recordstore.Client; DryRun records them
// and touches nothing, so the two modes make identical decisions from
// identical input and differ only in side effects.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/recordstore"
)

// Executor performs (or simulates) store mutations.
type Executor interface {
	DryRun() bool
	Create(ctx context.Context, table string, fields []model.Fields) ([]model.Record, error)
	Update(ctx context.Context, table string, records []model.Record) error
	Delete(ctx context.Context, table string, ids []string) error
}

// Live forwards every mutation to the store.
type Live struct {
	client recordstore.Client
}

// NewLive returns an executor backed by client.
func NewLive(client recordstore.Client) *Live {
	return &Live{client: client}
}

func (l *Live) DryRun() bool { return false }

func (l *Live) Create(ctx context.Context, table string, fields []model.Fields) ([]model.Record, error) {
	return l.client.Create(ctx, table, fields)
}

func (l *Live) Update(ctx context.Context, table string, records []model.Record) error {
	return l.client.Update(ctx, table, records)
}

func (l *Live) Delete(ctx context.Context, table string, ids []string) error {
	return l.client.Delete(ctx, table, ids)
}

// OpKind names a recorded mutation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one mutation captured by DryRun.
type Op struct {
	Kind    OpKind
	Table   string
	Records []model.Record
}

// DryRun captures mutations without performing them. Creates return
// placeholder ids ("dry_1", "dry_2", ...) so callers can keep planning.
//
// Thread-safety: DryRun is safe for concurrent use via internal mutex.
type DryRun struct {
	mu   sync.Mutex
	ops  []Op
	next int
}

// NewDryRun returns an empty dry-run executor.
func NewDryRun() *DryRun {
	return &DryRun{}
}

func (d *DryRun) DryRun() bool { return true }

func (d *DryRun) Create(_ context.Context, table string, fields []model.Fields) ([]model.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	recs := make([]model.Record, len(fields))
	for i, f := range fields {
		d.next++
		recs[i] = model.Record{ID: fmt.Sprintf("dry_%d", d.next), Fields: f}
	}
	d.ops = append(d.ops, Op{Kind: OpCreate, Table: table, Records: recs})
	return recs, nil
}

func (d *DryRun) Update(_ context.Context, table string, records []model.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = append(d.ops, Op{Kind: OpUpdate, Table: table, Records: append([]model.Record(nil), records...)})
	return nil
}

func (d *DryRun) Delete(_ context.Context, table string, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	recs := make([]model.Record, len(ids))
	for i, id := range ids {
		recs[i] = model.Record{ID: id}
	}
	d.ops = append(d.ops, Op{Kind: OpDelete, Table: table, Records: recs})
	return nil
}

// Ops returns the captured mutations in call order.
func (d *DryRun) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Op(nil), d.ops...)
}
