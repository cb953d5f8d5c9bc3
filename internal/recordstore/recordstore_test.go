package recordstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/model"
)

func pagedFetch(pages [][]model.Record, calls *int) PageFunc {
	return func(_ context.Context, cursor string) ([]model.Record, string, error) {
		*calls++
		idx := 0
		if cursor != "" {
			_, err := fmt.Sscanf(cursor, "p%d", &idx)
			if err != nil {
				return nil, "", err
			}
		}
		next := ""
		if idx+1 < len(pages) {
			next = fmt.Sprintf("p%d", idx+1)
		}
		return pages[idx], next, nil
	}
}

func TestIterator_Pages(t *testing.T) {
	pages := [][]model.Record{
		{{ID: "a"}, {ID: "b"}},
		{},
		{{ID: "c"}},
	}
	calls := 0
	it := NewIterator(pagedFetch(pages, &calls))

	var ids []string
	for it.Next(context.Background()) {
		for _, r := range it.Page() {
			ids = append(ids, r.ID)
		}
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 3, calls)

	// Non-restartable.
	assert.False(t, it.Next(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestIterator_Error(t *testing.T) {
	boom := errors.New("boom")
	it := NewIterator(func(context.Context, string) ([]model.Record, string, error) {
		return nil, "", boom
	})

	assert.False(t, it.Next(context.Background()))
	assert.ErrorIs(t, it.Err(), boom)

	_, err := Collect(context.Background(), ErrIterator(boom))
	assert.ErrorIs(t, err, boom)
}

func TestIterator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	it := NewIterator(pagedFetch([][]model.Record{{{ID: "a"}}}, &calls))
	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), context.Canceled)
	assert.Zero(t, calls)
}

func TestCollect(t *testing.T) {
	calls := 0
	all, err := Collect(context.Background(), NewIterator(pagedFetch([][]model.Record{{{ID: "a"}}, {{ID: "b"}}}, &calls)))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestChunk(t *testing.T) {
	items := make([]int, 23)
	chunks := Chunk(items, MaxBatch)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[2], 3)

	assert.Empty(t, Chunk([]int{}, 10))
	assert.Len(t, Chunk([]int{1, 2}, 0), 1)
}

func TestPermissionDenied(t *testing.T) {
	err := fmt.Errorf("relink orders: %w", &TableError{Table: "Orders", Op: "select", Err: ErrPermissionDenied})
	assert.True(t, IsPermissionDenied(err))
	assert.Equal(t, "relink orders: select Orders: permission denied", err.Error())

	var te *TableError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "Orders", te.Table)

	assert.False(t, IsPermissionDenied(ErrNotFound))
}
