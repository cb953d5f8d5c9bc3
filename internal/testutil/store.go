package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/store"
)

// NewStore opens a temp-dir SQLite store closed at test cleanup.
// Created records get ids rec001, rec002, ... unless opts override it.
func NewStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	opts = append([]store.Option{store.WithIDGenerator(SequentialIDs("rec"))}, opts...)
	s, err := store.Open(filepath.Join(t.TempDir(), "rekey.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Seed loads fixture records into table, failing the test on error.
func Seed(t *testing.T, s *store.Store, table string, records ...model.Record) {
	t.Helper()
	require.NoError(t, s.Seed(context.Background(), table, records))
}

// Rec builds a fixture record.
func Rec(id string, fields model.Fields) model.Record {
	return model.Record{ID: id, Fields: fields}
}
