package recordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/queryir"
)

// MaxBatch is the largest number of records a single mutation call may carry.
const MaxBatch = 10

var (
	// ErrPermissionDenied is returned when the credentials cannot access a table.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a table or record does not exist.
	ErrNotFound = errors.New("not found")
)

// Client is the record store contract.
//
// Mutations are chunked internally; a failed chunk aborts the call and earlier
// chunks stay applied. The store offers no multi-record transactions.
type Client interface {
	// Select streams the records matching q in a stable order.
	Select(ctx context.Context, q queryir.Select) *Iterator

	// Create inserts records and returns them with their assigned ids.
	Create(ctx context.Context, table string, fields []model.Fields) ([]model.Record, error)

	// Update merges each record's fields into the stored record.
	Update(ctx context.Context, table string, records []model.Record) error

	// Delete removes records by id.
	Delete(ctx context.Context, table string, ids []string) error
}

// TableError attributes a store failure to a table and operation.
type TableError struct {
	Table string
	Op    string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// IsPermissionDenied reports whether err signals an inaccessible table.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = MaxBatch
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// SelectAll is a convenience for reading every record of a table.
func SelectAll(ctx context.Context, c Client, table string, fields ...string) ([]model.Record, error) {
	return Collect(ctx, c.Select(ctx, queryir.Select{From: table, Fields: fields}))
}
