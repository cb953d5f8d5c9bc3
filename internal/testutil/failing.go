package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/queryir"
	"github.com/roach88/rekey/internal/recordstore"
)

// ErrInjected is the error returned by FailingClient for armed operations.
var ErrInjected = errors.New("injected failure")

// FailingClient wraps a recordstore.Client and fails chosen operations.
// Unarmed calls pass through unchanged.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FailingClient struct {
	recordstore.Client

	mu    sync.Mutex
	armed map[string]error // "op table" -> error
	calls map[string]int
}

// NewFailingClient wraps inner.
func NewFailingClient(inner recordstore.Client) *FailingClient {
	return &FailingClient{
		Client: inner,
		armed:  make(map[string]error),
		calls:  make(map[string]int),
	}
}

// FailOn makes op ("select", "create", "update", "delete") on table return err.
// A nil err arms ErrInjected.
func (f *FailingClient) FailOn(op, table string, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[op+" "+table] = err
}

// Calls returns how many times op was invoked on table.
func (f *FailingClient) Calls(op, table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+" "+table]
}

func (f *FailingClient) check(op, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op+" "+table]++
	if err, ok := f.armed[op+" "+table]; ok {
		return &recordstore.TableError{Table: table, Op: op, Err: err}
	}
	return nil
}

func (f *FailingClient) Select(ctx context.Context, q queryir.Select) *recordstore.Iterator {
	if err := f.check("select", q.From); err != nil {
		return recordstore.ErrIterator(err)
	}
	return f.Client.Select(ctx, q)
}

func (f *FailingClient) Create(ctx context.Context, table string, fields []model.Fields) ([]model.Record, error) {
	if err := f.check("create", table); err != nil {
		return nil, err
	}
	return f.Client.Create(ctx, table, fields)
}

func (f *FailingClient) Update(ctx context.Context, table string, records []model.Record) error {
	if err := f.check("update", table); err != nil {
		return err
	}
	return f.Client.Update(ctx, table, records)
}

func (f *FailingClient) Delete(ctx context.Context, table string, ids []string) error {
	if err := f.check("delete", table); err != nil {
		return err
	}
	return f.Client.Delete(ctx, table, ids)
}
