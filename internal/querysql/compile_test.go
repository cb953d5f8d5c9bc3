package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rekey/internal/queryir"
)

func TestCompile_NoFilter(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(queryir.Select{From: "Events"}, Page{Limit: 100})
	require.NoError(t, err)

	assert.Equal(t, "SELECT seq, id, fields FROM records WHERE table_name = ? AND seq > ? ORDER BY seq ASC LIMIT ?", sql)
	assert.Equal(t, []any{"Events", int64(0), 100}, params)
}

func TestCompile_Equals(t *testing.T) {
	q := queryir.Select{
		From:   "Events",
		Filter: queryir.Equals{Field: "event_id", Value: "evt_a"},
	}

	sql, params, err := NewSQLCompiler().Compile(q, Page{After: 7})
	require.NoError(t, err)

	assert.Contains(t, sql, "json_extract(fields, ?) = ?")
	assert.NotContains(t, sql, "evt_a") // parameterized
	assert.NotContains(t, sql, "LIMIT")
	assert.Equal(t, []any{"Events", int64(7), `$."event_id"`, "evt_a"}, params)
}

func TestCompile_BoolBoundAsInt(t *testing.T) {
	q := queryir.Select{From: "T", Filter: queryir.Equals{Field: "active", Value: true}}

	_, params, err := NewSQLCompiler().Compile(q, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), params[len(params)-1])
}

func TestCompile_ContainsAndHasLink(t *testing.T) {
	q := queryir.Select{
		From: "Registrations",
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Contains{Field: "note", Substring: "linden"},
			queryir.HasLink{Field: "event", RecordID: "recA"},
		}},
	}

	sql, params, err := NewSQLCompiler().Compile(q, Page{})
	require.NoError(t, err)

	assert.Contains(t, sql, "(instr(COALESCE(json_extract(fields, ?), ''), ?) > 0 AND EXISTS (SELECT 1 FROM json_each(records.fields, ?) WHERE json_each.value = ?))")
	assert.Equal(t, []any{"Registrations", int64(0), `$."note"`, "linden", `$."event"`, "recA"}, params)
}

func TestCompile_EmptyJunctions(t *testing.T) {
	c := NewSQLCompiler()

	sql, _, err := c.Compile(queryir.Select{From: "T", Filter: queryir.Or{}}, Page{})
	require.NoError(t, err)
	assert.Contains(t, sql, "AND 1 = 0")

	sql, _, err = c.Compile(queryir.Select{From: "T", Filter: queryir.And{}}, Page{})
	require.NoError(t, err)
	assert.Contains(t, sql, "AND 1 = 1")
}

func TestCompile_Or(t *testing.T) {
	q := queryir.Select{From: "Orders", Filter: queryir.AnyEquals("booking_id", []string{"a", "b"})}

	sql, params, err := NewSQLCompiler().Compile(q, Page{})
	require.NoError(t, err)

	assert.Contains(t, sql, "(json_extract(fields, ?) = ? OR json_extract(fields, ?) = ?)")
	assert.Len(t, params, 6)
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(queryir.Select{From: ""}, Page{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid query")

	_, _, err = NewSQLCompiler().Compile(queryir.Select{From: "T", Filter: queryir.Equals{Field: "x", Value: 2.5}}, Page{})
	require.Error(t, err)
}

func TestCompileCount(t *testing.T) {
	sql, params, err := NewSQLCompiler().CompileCount(queryir.Select{From: "Events"})
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(*) FROM records WHERE table_name = ? AND seq > ?", sql)
	assert.Equal(t, []any{"Events", int64(0)}, params)
}
